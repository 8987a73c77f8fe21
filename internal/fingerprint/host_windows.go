//go:build windows

package fingerprint

import (
	"context"
	"os/exec"
	"strings"
)

type windowsReader struct{}

func newHostReader() hostReader {
	return windowsReader{}
}

func (windowsReader) drives(ctx context.Context) ([]Drive, error) {
	out, err := exec.CommandContext(ctx, "wmic", "diskdrive", "get", "SerialNumber,Model").Output()
	if err != nil {
		return nil, err
	}

	var drives []Drive
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}
		// Model may contain spaces; the serial is the last field.
		idx := strings.LastIndexAny(line, " \t")
		if idx < 0 {
			continue
		}
		drives = append(drives, Drive{
			Model:  strings.TrimSpace(line[:idx]),
			Serial: strings.TrimSpace(line[idx:]),
		})
	}
	return drives, nil
}

func (windowsReader) motherboardSerial(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "wmic", "baseboard", "get", "serialnumber").Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(out), "\n")
	if len(lines) < 2 {
		return "", nil
	}
	return strings.TrimSpace(lines[1]), nil
}
