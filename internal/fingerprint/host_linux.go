//go:build linux

package fingerprint

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

type linuxReader struct{}

func newHostReader() hostReader {
	return linuxReader{}
}

func (linuxReader) drives(ctx context.Context) ([]Drive, error) {
	out, err := exec.CommandContext(ctx, "lsblk", "-d", "-n", "-o", "NAME,SERIAL").Output()
	if err != nil {
		return nil, err
	}

	var drives []Drive
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		drives = append(drives, Drive{Model: fields[0], Serial: fields[1]})
	}
	return drives, nil
}

func (linuxReader) motherboardSerial(ctx context.Context) (string, error) {
	data, err := os.ReadFile("/sys/class/dmi/id/board_serial")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
