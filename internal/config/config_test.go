package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"printer_ip": "10.0.0.7",
		"mainboard_id": "board-42",
		"api_key": "key",
		"mqtt_broker": "broker.local",
		"read_interval": 0
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", cfg.PrinterIP)
	assert.Equal(t, 3030, cfg.PrinterPort)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, 5, cfg.ReadInterval)
	assert.Equal(t, 20, cfg.MaxFiles)
	assert.Equal(t, "10.0.0.7:3030", cfg.PrinterAddr())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
printer_ip = "10.0.0.8"
printer_port = 3031
mainboard_id = "abc"
max_files_to_mqtt = 5
metrics_addr = ":9108"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.8", cfg.PrinterIP)
	assert.Equal(t, 3031, cfg.PrinterPort)
	assert.Equal(t, "abc", cfg.MainboardID)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.Equal(t, ":9108", cfg.MetricsAddr)
	assert.Equal(t, 1883, cfg.MQTTPort)
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"printer_port": "nope"`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.MainboardID = "board-1"
			cfg.APIKey = "k"

			require.NoError(t, Save(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadOrCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadOrCreateDefault(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.FileExists(t, path)
}

func TestValidate(t *testing.T) {
	cfg := Default()

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "mainboard_id")
	assert.Contains(t, err.Error(), "api_key")
	assert.NotContains(t, err.Error(), "printer_ip")
}
