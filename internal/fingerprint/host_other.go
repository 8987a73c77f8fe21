//go:build !linux && !windows

package fingerprint

import "context"

// Unsupported platforms still authenticate; drive and board identifiers just
// stay Unknown so fingerprints compare on MACs and location only.
type fallbackReader struct{}

func newHostReader() hostReader {
	return fallbackReader{}
}

func (fallbackReader) drives(ctx context.Context) ([]Drive, error) {
	return nil, nil
}

func (fallbackReader) motherboardSerial(ctx context.Context) (string, error) {
	return "", nil
}
