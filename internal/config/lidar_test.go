package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	if len(cfg.Channels) != 18 {
		t.Fatalf("expected 18 channels, got %d", len(cfg.Channels))
	}
	if got := cfg.DoubleChannelCount(); got != 6 {
		t.Errorf("DoubleChannelCount() = %d, want 6", got)
	}
	if cfg.Channels[12].RawPosition != 0 || !cfg.Channels[12].Double {
		t.Errorf("channel 12 should re-expose raw position 0, got %+v", cfg.Channels[12])
	}
	assert.Equal(t, 4, cfg.ChannelIndex("wa_532p"))
	assert.Equal(t, -1, cfg.ChannelIndex("nope"))
}

func TestDefaultsFileMatchesBuiltIn(t *testing.T) {
	fromFile := MustLoadDefault()
	if diff := cmp.Diff(Default(), fromFile); diff != "" {
		t.Errorf("defaults file differs from Default() (-want +got):\n%s", diff)
	}
}

func TestLoadLidarConfigYAMLPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	doc := `
instrument: PollyXT_TROPOS
first_valid_bin: 250
calibration_order: ascending
telecover:
  station_name: Dushanbe
  channels: [0, 4]
  channel_names: ["355 p", "532 p"]
  ratios:
    - name: "355p/532p"
      nominator: 0
      denominator: 4
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadLidarConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "PollyXT_TROPOS", cfg.Instrument)
	assert.Equal(t, 250, cfg.FirstValidBin)
	assert.Equal(t, OrderAscendingAngle, cfg.GetCalibrationOrder())
	assert.Equal(t, "Dushanbe", cfg.Telecover.StationName)
	assert.Equal(t, []int{0, 4}, cfg.Telecover.Channels)
	// untouched fields keep defaults
	assert.Equal(t, 3e8, cfg.LightSpeed)
	assert.Len(t, cfg.Channels, 18)
}

func TestLoadLidarConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"station_id": "oh", "ground_pressure": 980.5}`), 0644))

	cfg, err := LoadLidarConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "oh", cfg.StationID)
	assert.Equal(t, 980.5, cfg.GroundPressure)
}

func TestLoadLidarConfigErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "site.toml")
		require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))
		_, err := LoadLidarConfig(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadLidarConfig(filepath.Join(dir, "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"first_valid_bin": "x"`), 0644))
		_, err := LoadLidarConfig(path)
		assert.Error(t, err)
	})

	t.Run("fails validation", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"light_speed": -1}`), 0644))
		_, err := LoadLidarConfig(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *LidarConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *LidarConfig) {}},
		{name: "no channels", mutate: func(c *LidarConfig) { c.Channels = nil }, wantErr: true},
		{name: "duplicate name", mutate: func(c *LidarConfig) { c.Channels[1].Name = c.Channels[0].Name }, wantErr: true},
		{name: "empty background window", mutate: func(c *LidarConfig) { c.Channels[0].BGLast = 0 }, wantErr: true},
		{name: "bad calibration position", mutate: func(c *LidarConfig) { c.CalibrationChannels[0].Position = 2 }, wantErr: true},
		{name: "calibration source out of range", mutate: func(c *LidarConfig) { c.CalibrationChannels[0].SourceChannel = 99 }, wantErr: true},
		{name: "unknown calibration order", mutate: func(c *LidarConfig) { c.CalibrationOrder = "random" }, wantErr: true},
		{name: "telecover channel out of range", mutate: func(c *LidarConfig) { c.Telecover.Channels = []int{42} }, wantErr: true},
		{name: "ratio on unanalysed channel", mutate: func(c *LidarConfig) { c.Telecover.Ratios[0].Denominator = 3 }, wantErr: true},
		{name: "inverted normalization", mutate: func(c *LidarConfig) { c.Telecover.NormalizationRange = [2]float64{3000, 1000} }, wantErr: true},
		{name: "cloud mask channel out of range", mutate: func(c *LidarConfig) { c.CloudMaskChannel = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStationLookup(t *testing.T) {
	cfg := Default()
	st, ok := cfg.Station("10868")
	require.True(t, ok)
	assert.Equal(t, "Oberschleissheim", st.Name)
	assert.Equal(t, 492.0, st.Altitude)

	_, ok = cfg.Station("00000")
	assert.False(t, ok)
}

func TestTelecoverChannelName(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "532 p", cfg.TelecoverChannelName(4))
	assert.Equal(t, "wa_407", cfg.TelecoverChannelName(3))
	assert.Equal(t, "chan_99", cfg.TelecoverChannelName(99))
}
