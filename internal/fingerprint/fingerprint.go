package fingerprint

import (
	"math"
	"sort"
	"strconv"
)

// Unknown is the sentinel recorded when a host identifier cannot be collected.
const Unknown = "Unknown"

// Drive identifies one storage device.
type Drive struct {
	Model  string `json:"model"`
	Serial string `json:"serial"`
}

// Fingerprint is a raw host snapshot as collected from the machine: MAC
// addresses, drive identifiers, the motherboard serial and coarse coordinates.
// Raw fingerprints are never persisted; only the normalized form is.
type Fingerprint struct {
	MACAddresses      []string `json:"mac_addresses"`
	Drives            []Drive  `json:"drives"`
	MotherboardSerial string   `json:"motherboard_serial"`
	Latitude          string   `json:"latitude"`
	Longitude         string   `json:"longitude"`
}

// Normalized is the canonical form used for trust comparison: MAC set sorted
// ascending, drives sorted by serial, coordinates rounded to 4 decimals.
type Normalized struct {
	MACAddresses      []string `json:"mac_addresses"`
	Drives            []Drive  `json:"drives"`
	MotherboardSerial string   `json:"motherboard_serial"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
}

// Normalize derives the canonical form of a raw fingerprint. It is pure and
// idempotent: normalizing the raw form of a Normalized yields it unchanged.
func Normalize(fp Fingerprint) Normalized {
	macs := make([]string, len(fp.MACAddresses))
	copy(macs, fp.MACAddresses)
	sort.Strings(macs)

	drives := make([]Drive, len(fp.Drives))
	copy(drives, fp.Drives)
	sort.Slice(drives, func(i, j int) bool {
		if drives[i].Serial != drives[j].Serial {
			return drives[i].Serial < drives[j].Serial
		}
		return drives[i].Model < drives[j].Model
	})

	board := fp.MotherboardSerial
	if board == "" {
		board = Unknown
	}

	return Normalized{
		MACAddresses:      macs,
		Drives:            drives,
		MotherboardSerial: board,
		Latitude:          parseCoordinate(fp.Latitude),
		Longitude:         parseCoordinate(fp.Longitude),
	}
}

// Raw converts a normalized fingerprint back to the raw representation, with
// coordinates formatted to 4 decimals so a re-normalization round-trips.
func (n Normalized) Raw() Fingerprint {
	return Fingerprint{
		MACAddresses:      n.MACAddresses,
		Drives:            n.Drives,
		MotherboardSerial: n.MotherboardSerial,
		Latitude:          strconv.FormatFloat(n.Latitude, 'f', 4, 64),
		Longitude:         strconv.FormatFloat(n.Longitude, 'f', 4, 64),
	}
}

// Equal reports structural equality of two normalized fingerprints. There is
// no partial or fuzzy matching: any difference means "not the trusted device".
func Equal(a, b Normalized) bool {
	if len(a.MACAddresses) != len(b.MACAddresses) || len(a.Drives) != len(b.Drives) {
		return false
	}
	for i := range a.MACAddresses {
		if a.MACAddresses[i] != b.MACAddresses[i] {
			return false
		}
	}
	for i := range a.Drives {
		if a.Drives[i] != b.Drives[i] {
			return false
		}
	}
	return a.MotherboardSerial == b.MotherboardSerial &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude
}

// parseCoordinate parses a latitude or longitude string, rounding to 4 decimal
// places. Unparsable or absent values collapse to 0 so repeated normalization
// stays stable.
func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10000) / 10000
}
