package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"blackjack-auth/internal/util"
)

// Provider is the capability interface for collecting a host fingerprint.
// Production uses HostProvider; tests and remote callers supply their own.
type Provider interface {
	Collect(ctx context.Context) (Fingerprint, error)
}

// hostReader covers the platform-specific identifiers. One implementation per
// platform, selected by build tags.
type hostReader interface {
	drives(ctx context.Context) ([]Drive, error)
	motherboardSerial(ctx context.Context) (string, error)
}

// HostProvider collects the local machine's fingerprint: MAC addresses from
// the network stack, drive and board serials from the platform reader, and
// coarse geolocation from an IP lookup service.
type HostProvider struct {
	reader     hostReader
	geoURL     string
	httpClient *http.Client
}

// NewHostProvider builds a provider for the current platform.
func NewHostProvider() *HostProvider {
	return &HostProvider{
		reader: newHostReader(),
		geoURL: "https://ipinfo.io/json",
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Collect gathers all identifiers concurrently. Individual lookups degrade to
// empty / Unknown values rather than failing the whole snapshot; only a
// context cancellation aborts collection.
func (p *HostProvider) Collect(ctx context.Context) (Fingerprint, error) {
	fp := Fingerprint{
		MotherboardSerial: Unknown,
		Latitude:          Unknown,
		Longitude:         Unknown,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		macs, err := macAddresses()
		if err != nil {
			util.Warn("Failed to read MAC addresses", zap.Error(err))
			return nil
		}
		fp.MACAddresses = macs
		return nil
	})

	g.Go(func() error {
		drives, err := p.reader.drives(ctx)
		if err != nil {
			util.Warn("Failed to read drive serials", zap.Error(err))
			return nil
		}
		fp.Drives = drives
		return nil
	})

	g.Go(func() error {
		serial, err := p.reader.motherboardSerial(ctx)
		if err != nil {
			util.Warn("Failed to read motherboard serial", zap.Error(err))
			return nil
		}
		if serial != "" {
			fp.MotherboardSerial = serial
		}
		return nil
	})

	g.Go(func() error {
		lat, lon, err := p.geolocate(ctx)
		if err != nil {
			util.Warn("Failed to geolocate host", zap.Error(err))
			return nil
		}
		fp.Latitude = lat
		fp.Longitude = lon
		return nil
	})

	if err := g.Wait(); err != nil {
		return Fingerprint{}, err
	}
	if err := ctx.Err(); err != nil {
		return Fingerprint{}, err
	}

	return fp, nil
}

// macAddresses lists hardware addresses of physical-looking interfaces,
// skipping loopback and interfaces without an address.
func macAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	seen := make(map[string]struct{})
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		mac := strings.ToUpper(iface.HardwareAddr.String())
		if _, ok := seen[mac]; ok {
			continue
		}
		seen[mac] = struct{}{}
		macs = append(macs, mac)
	}
	return macs, nil
}

// geolocate asks the IP lookup service for coarse coordinates. The "loc"
// field is "lat,lon"; anything else maps to Unknown.
func (p *HostProvider) geolocate(ctx context.Context) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.geoURL, nil)
	if err != nil {
		return Unknown, Unknown, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Unknown, Unknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, Unknown, fmt.Errorf("geolocation lookup returned %d", resp.StatusCode)
	}

	var payload struct {
		Loc string `json:"loc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Unknown, Unknown, fmt.Errorf("decode geolocation response: %w", err)
	}

	lat, lon, ok := strings.Cut(payload.Loc, ",")
	if !ok {
		return Unknown, Unknown, nil
	}
	return strings.TrimSpace(lat), strings.TrimSpace(lon), nil
}
