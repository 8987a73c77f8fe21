package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSortsIdentifiers(t *testing.T) {
	fp := Fingerprint{
		MACAddresses: []string{"cc:cc:cc:cc:cc:cc", "aa:aa:aa:aa:aa:aa", "bb:bb:bb:bb:bb:bb"},
		Drives: []Drive{
			{Model: "Samsung 980", Serial: "S2"},
			{Model: "WD Blue", Serial: "S1"},
		},
		MotherboardSerial: "MB-123",
		Latitude:          "52.52001",
		Longitude:         "13.40495",
	}

	n := Normalize(fp)

	assert.Equal(t, []string{"aa:aa:aa:aa:aa:aa", "bb:bb:bb:bb:bb:bb", "cc:cc:cc:cc:cc:cc"}, n.MACAddresses)
	assert.Equal(t, "S1", n.Drives[0].Serial)
	assert.Equal(t, "S2", n.Drives[1].Serial)
	assert.Equal(t, 52.52, n.Latitude)
	assert.Equal(t, 13.4050, n.Longitude)
}

func TestNormalizeIsOrderIndependent(t *testing.T) {
	a := Normalize(Fingerprint{
		MACAddresses: []string{"aa", "bb"},
		Drives:       []Drive{{Model: "M1", Serial: "S1"}, {Model: "M2", Serial: "S2"}},
	})
	b := Normalize(Fingerprint{
		MACAddresses: []string{"bb", "aa"},
		Drives:       []Drive{{Model: "M2", Serial: "S2"}, {Model: "M1", Serial: "S1"}},
	})

	assert.True(t, Equal(a, b))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	fp := Fingerprint{
		MACAddresses:      []string{"b", "a"},
		Drives:            []Drive{{Model: "M", Serial: "S"}},
		MotherboardSerial: "",
		Latitude:          "41.406399999",
		Longitude:         "-74.00601",
	}

	once := Normalize(fp)
	twice := Normalize(once.Raw())

	assert.True(t, Equal(once, twice))
}

func TestNormalizeEmptyBoardBecomesUnknown(t *testing.T) {
	n := Normalize(Fingerprint{})
	assert.Equal(t, Unknown, n.MotherboardSerial)
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"rounds up", "1.00006", 1.0001},
		{"rounds down", "1.00004", 1.0},
		{"negative", "-74.006012", -74.0060},
		{"unparsable", "not-a-number", 0},
		{"empty", "", 0},
		{"nan", "NaN", 0},
		{"infinity", "+Inf", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCoordinate(tt.in))
		})
	}
}

func TestEqualRejectsAnyDifference(t *testing.T) {
	base := Normalize(Fingerprint{
		MACAddresses:      []string{"aa"},
		Drives:            []Drive{{Model: "M", Serial: "S"}},
		MotherboardSerial: "MB",
		Latitude:          "1.0",
		Longitude:         "2.0",
	})

	require.True(t, Equal(base, base))

	changed := base
	changed.MotherboardSerial = "MB-2"
	assert.False(t, Equal(base, changed))

	moved := Normalize(Fingerprint{
		MACAddresses:      []string{"aa"},
		Drives:            []Drive{{Model: "M", Serial: "S"}},
		MotherboardSerial: "MB",
		Latitude:          "1.0001",
		Longitude:         "2.0",
	})
	assert.False(t, Equal(base, moved))

	extra := Normalize(Fingerprint{
		MACAddresses:      []string{"aa", "bb"},
		Drives:            []Drive{{Model: "M", Serial: "S"}},
		MotherboardSerial: "MB",
		Latitude:          "1.0",
		Longitude:         "2.0",
	})
	assert.False(t, Equal(base, extra))
}
