package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
  "default": 8.00,
  "failed_attempt_factor": 0.2,
  "flat_zones": {
    "Trindade": 20.00,
    "Senador Canedo": 18.00
  },
  "metro_zones": {
    "Goiânia": [
      {"max_km": 7, "amount": 5.00},
      {"max_km": 999, "amount": 10.00}
    ]
  }
}`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, int64(800), table.DefaultCentavos)
	assert.Equal(t, 0.2, table.FailedAttemptFactor)

	flat, ok := table.FlatAmount("  TRINDADE ")
	require.True(t, ok)
	assert.Equal(t, int64(2000), flat)

	tiers, ok := table.Tiers("goiânia")
	require.True(t, ok)
	require.Len(t, tiers, 2)
	assert.Equal(t, int64(500), tiers[0].Centavos)
	assert.Equal(t, int64(1000), tiers[1].Centavos)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, table.FlatZones)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "broken json",
			data: `{`,
		},
		{
			name: "zero default",
			data: `{"default": 0, "failed_attempt_factor": 0.2}`,
		},
		{
			name: "factor above one",
			data: `{"default": 8, "failed_attempt_factor": 1.5}`,
		},
		{
			name: "empty tier list",
			data: `{"default": 8, "failed_attempt_factor": 0.2, "metro_zones": {"goiânia": []}}`,
		},
		{
			name: "tiers not ascending",
			data: `{"default": 8, "failed_attempt_factor": 0.2, "metro_zones": {"goiânia": [
				{"max_km": 10, "amount": 5}, {"max_km": 7, "amount": 10}]}}`,
		},
		{
			name: "negative flat amount",
			data: `{"default": 8, "failed_attempt_factor": 0.2, "flat_zones": {"trindade": -1}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "trindade", Normalize(" Trindade "))
	assert.Equal(t, "goiânia", Normalize("GOIÂNIA"))
}
