package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blotquant/pkg/geometry"
	"blotquant/pkg/preprocess"
	"blotquant/pkg/quanterr"
	"blotquant/pkg/stats"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.2, cfg.Quantification.Sensitivity)
	assert.Positive(t, cfg.Quantification.Workers)
	assert.Equal(t, geometry.PairingBlock, cfg.Pairing())
	assert.Equal(t, stats.WelchT, cfg.Test())
	assert.Equal(t, preprocess.FillReplicate, cfg.Fill().Policy)
	assert.Equal(t, 0.05, cfg.StatOptions().Alpha)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Statistics, cfg.Statistics)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "blotquant.yaml")
	cfg := DefaultConfig()
	cfg.Quantification.Sensitivity = 0.35
	cfg.Geometry.Pairing = "interleaved"
	cfg.Geometry.Groups = []string{"Vehicle", "Drug"}
	cfg.Preprocess.FillPolicy = "constant"
	cfg.Preprocess.FillValue = 12
	cfg.Statistics.Test = "two_way_anova"
	cfg.Statistics.Reference = "Vehicle"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, geometry.PairingInterleaved, loaded.Pairing())
	assert.Equal(t, stats.TwoWayANOVA, loaded.Test())
	assert.Equal(t, preprocess.Fill{Policy: preprocess.FillConstant, Value: 12}, loaded.Fill())
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sensitivity: 0.2")
	assert.Contains(t, string(data), "fillPolicy: replicate")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quantification:\n  sensitivity: 0.4\nstatistics:\n  alpha: 0.01\n"), 0644))

	t.Setenv("BLOTQUANT_QUANTIFICATION_SENSITIVITY", "0.5")
	t.Setenv("BLOTQUANT_GEOMETRY_GROUPS", "A,B,C")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Quantification.Sensitivity)
	assert.Equal(t, 0.01, cfg.Statistics.Alpha, "file value survives when no variable is set")
	assert.Equal(t, []string{"A", "B", "C"}, cfg.Geometry.Groups)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"negative sensitivity": "quantification:\n  sensitivity: -1\n",
		"alpha out of range":   "statistics:\n  alpha: 1.5\n",
		"unknown test":         "statistics:\n  test: kruskal\n",
		"unknown pairing":      "geometry:\n  pairing: zigzag\n",
		"unknown fill":         "preprocess:\n  fillPolicy: wrap\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, quanterr.ErrInvalidParameter)
		})
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quantification: [1, 2"), 0644))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "error parsing config file")
}
