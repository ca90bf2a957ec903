package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = `
services:
  speech:
    operations:
      transcribe:
        unit: minute
        unit_price_cents: 4
  vision:
    operations:
      analyze_image:
        unit: call
        unit_price_cents: 2
      analyze_video:
        unit: minute
        unit_price_cents: 10
  language:
    operations:
      sentiment:
        unit: kilochar
        unit_price_cents: 1
`

func TestParseAndLookup(t *testing.T) {
	table, err := Parse([]byte(testTable))
	require.NoError(t, err)

	price, ok := table.Lookup("speech", "transcribe")
	require.True(t, ok)
	assert.Equal(t, UnitMinute, price.Unit)
	assert.Equal(t, int64(4), price.UnitPriceCents)

	_, ok = table.Lookup("speech", "translate")
	assert.False(t, ok)
	_, ok = table.Lookup("unknown", "transcribe")
	assert.False(t, ok)
}

func TestCostRoundsUp(t *testing.T) {
	table, err := Parse([]byte(testTable))
	require.NoError(t, err)

	tests := []struct {
		name      string
		service   string
		operation string
		units     float64
		want      int64
		wantOK    bool
	}{
		{"whole units", "speech", "transcribe", 10, 40, true},
		{"fractional units round up", "speech", "transcribe", 2.1, 9, true},
		{"sub-unit rounds up to one cent", "language", "sentiment", 0.2, 1, true},
		{"zero units", "vision", "analyze_image", 0, 0, true},
		{"negative units", "vision", "analyze_image", -5, 0, true},
		{"unknown operation", "vision", "detect_faces", 3, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Cost(tt.service, tt.operation, tt.units)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no services", "services: {}"},
		{"service without operations", "services:\n  speech:\n    operations: {}"},
		{"negative price", "services:\n  speech:\n    operations:\n      transcribe: {unit: minute, unit_price_cents: -1}"},
		{"missing unit", "services:\n  speech:\n    operations:\n      transcribe: {unit_price_cents: 4}"},
		{"malformed yaml", "services: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testTable), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"language", "speech", "vision"}, table.Services())
	assert.Equal(t, []string{"analyze_image", "analyze_video"}, table.Operations("vision"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/prices.yaml")
	assert.Error(t, err)
}
