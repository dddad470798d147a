package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical instrument defaults file.
const DefaultConfigPath = "config/lidar.defaults.json"

// Calibration position ordering modes.
const (
	OrderByFrequency      = "frequency"
	OrderAscendingAngle   = "ascending"
	OrderDescendingAngle  = "descending"
	maxConfigFileSize     = 1 * 1024 * 1024 // 1MB
	defaultLightSpeed     = 3e8
	defaultFirstValidBin  = 249
	defaultMeasurementCal = 20
)

// ChannelConfig describes one logical channel. Several logical channels may
// share a raw position; all but the first are marked Double.
type ChannelConfig struct {
	Name        string `json:"name" yaml:"name"`
	RawPosition int    `json:"raw_position" yaml:"raw_position"`
	ChannelID   int    `json:"channel_id" yaml:"channel_id"`
	RangeID     int    `json:"range_id" yaml:"range_id"`
	BGFirst     int    `json:"bg_first" yaml:"bg_first"`
	BGLast      int    `json:"bg_last" yaml:"bg_last"`
	Double      bool   `json:"double,omitempty" yaml:"double,omitempty"`
}

// CalibrationChannelConfig maps an exported depolarization calibration
// channel to its source channel and calibration position (0 or 1).
type CalibrationChannelConfig struct {
	Name          string `json:"name" yaml:"name"`
	ChannelID     int    `json:"channel_id" yaml:"channel_id"`
	SourceChannel int    `json:"source_channel" yaml:"source_channel"`
	Position      int    `json:"position" yaml:"position"`
}

// RatioConfig is a telecover cross-channel ratio.
type RatioConfig struct {
	Name        string `json:"name" yaml:"name"`
	Nominator   int    `json:"nominator" yaml:"nominator"`
	Denominator int    `json:"denominator" yaml:"denominator"`
}

// TelecoverConfig holds the telecover analysis parameters.
type TelecoverConfig struct {
	StationName        string        `json:"station_name" yaml:"station_name"`
	Channels           []int         `json:"channels" yaml:"channels"`
	ChannelNames       []string      `json:"channel_names" yaml:"channel_names"`
	Sectors            []string      `json:"sectors" yaml:"sectors"`
	AverageSectors     []string      `json:"average_sectors" yaml:"average_sectors"`
	NormalizationRange [2]float64    `json:"normalization_range" yaml:"normalization_range"`
	SmoothBins         int           `json:"smooth_bins" yaml:"smooth_bins"`
	Ratios             []RatioConfig `json:"ratios" yaml:"ratios"`
	MaxOutputHeight    float64       `json:"max_output_height" yaml:"max_output_height"`
	// MaxPlotHeight is indexed by range id (0 near, 1 far).
	MaxPlotHeight [2]float64 `json:"max_plot_height" yaml:"max_plot_height"`
}

// SondeStation is a radiosonde launch site, used when the sounding file
// does not carry its own coordinates.
type SondeStation struct {
	WMOID     string  `json:"wmo_id" yaml:"wmo_id"`
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
}

// SondeConfig configures radiosonde parsing.
type SondeConfig struct {
	HeaderMarker  string         `json:"header_marker" yaml:"header_marker"`
	BottomMarker  string         `json:"bottom_marker" yaml:"bottom_marker"`
	MaxDistanceKm float64        `json:"max_distance_km" yaml:"max_distance_km"`
	Stations      []SondeStation `json:"stations" yaml:"stations"`
}

// PathsConfig holds the working directories.
type PathsConfig struct {
	Temp      string `json:"temp" yaml:"temp"`
	Output    string `json:"output" yaml:"output"`
	Sonde     string `json:"sonde" yaml:"sonde"`
	Telecover string `json:"telecover" yaml:"telecover"`
	Catalog   string `json:"catalog" yaml:"catalog"`
}

// LidarConfig is the static per-instrument configuration. It is read once
// and treated as read-only by every component.
type LidarConfig struct {
	Instrument           string                     `json:"instrument" yaml:"instrument"`
	StationID            string                     `json:"station_id" yaml:"station_id"`
	FirstValidBin        int                        `json:"first_valid_bin" yaml:"first_valid_bin"`
	LightSpeed           float64                    `json:"light_speed" yaml:"light_speed"`
	MeasurementCalAngle  float64                    `json:"measurement_cal_angle" yaml:"measurement_cal_angle"`
	GroundPressure       float64                    `json:"ground_pressure" yaml:"ground_pressure"`
	GroundTemperature    float64                    `json:"ground_temperature" yaml:"ground_temperature"`
	CloudMaskChannel     int                        `json:"cloud_mask_channel" yaml:"cloud_mask_channel"`
	CalibrationRange     [2]float64                 `json:"calibration_range" yaml:"calibration_range"`
	CalibrationOrder     string                     `json:"calibration_order" yaml:"calibration_order"`
	DepolCalFilenameBody string                     `json:"depolcal_filename_body" yaml:"depolcal_filename_body"`
	QuicklookChannel     int                        `json:"quicklook_channel" yaml:"quicklook_channel"`
	MaxPlotAltitude      float64                    `json:"max_plot_altitude" yaml:"max_plot_altitude"`
	Channels             []ChannelConfig            `json:"channels" yaml:"channels"`
	CalibrationChannels  []CalibrationChannelConfig `json:"calibration_channels" yaml:"calibration_channels"`
	Telecover            TelecoverConfig            `json:"telecover" yaml:"telecover"`
	Sonde                SondeConfig                `json:"sonde" yaml:"sonde"`
	Paths                PathsConfig                `json:"paths" yaml:"paths"`
}

// LoadLidarConfig loads a LidarConfig from a JSON or YAML file.
// Fields omitted from the file keep the values from Default, so partial
// configs are safe. Lists replace the defaults wholesale.
func LoadLidarConfig(path string) (*LidarConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefault loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefault() *LidarConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/<pkg>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadLidarConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are consistent.
func (c *LidarConfig) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel must be configured")
	}
	if c.FirstValidBin < 0 {
		return fmt.Errorf("first_valid_bin must be non-negative, got %d", c.FirstValidBin)
	}
	if c.LightSpeed <= 0 {
		return fmt.Errorf("light_speed must be positive, got %g", c.LightSpeed)
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel %d has no name", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true
		if ch.RawPosition < 0 {
			return fmt.Errorf("channel %q: raw_position must be non-negative, got %d", ch.Name, ch.RawPosition)
		}
		if ch.BGFirst < 0 || ch.BGLast <= ch.BGFirst {
			return fmt.Errorf("channel %q: background window [%d,%d) is empty", ch.Name, ch.BGFirst, ch.BGLast)
		}
	}

	for _, cal := range c.CalibrationChannels {
		if cal.SourceChannel < 0 || cal.SourceChannel >= len(c.Channels) {
			return fmt.Errorf("calibration channel %q: source_channel %d out of range", cal.Name, cal.SourceChannel)
		}
		if cal.Position != 0 && cal.Position != 1 {
			return fmt.Errorf("calibration channel %q: position must be 0 or 1, got %d", cal.Name, cal.Position)
		}
	}

	switch c.CalibrationOrder {
	case "", OrderByFrequency, OrderAscendingAngle, OrderDescendingAngle:
	default:
		return fmt.Errorf("invalid calibration_order %q", c.CalibrationOrder)
	}

	if c.CloudMaskChannel < 0 || c.CloudMaskChannel >= len(c.Channels) {
		return fmt.Errorf("cloud_mask_channel %d out of range", c.CloudMaskChannel)
	}

	tc := c.Telecover
	if tc.SmoothBins < 0 {
		return fmt.Errorf("telecover smooth_bins must be non-negative, got %d", tc.SmoothBins)
	}
	for _, ch := range tc.Channels {
		if ch < 0 || ch >= len(c.Channels) {
			return fmt.Errorf("telecover channel %d out of range", ch)
		}
	}
	if len(tc.ChannelNames) != 0 && len(tc.ChannelNames) != len(tc.Channels) {
		return fmt.Errorf("telecover channel_names has %d entries, channels has %d", len(tc.ChannelNames), len(tc.Channels))
	}
	for _, r := range tc.Ratios {
		if !containsInt(tc.Channels, r.Nominator) || !containsInt(tc.Channels, r.Denominator) {
			return fmt.Errorf("telecover ratio %q uses a channel that is not analysed", r.Name)
		}
	}
	if tc.NormalizationRange[1] < tc.NormalizationRange[0] {
		return fmt.Errorf("telecover normalization_range is inverted: %v", tc.NormalizationRange)
	}
	return nil
}

// ChannelIndex returns the index of the named channel, or -1.
func (c *LidarConfig) ChannelIndex(name string) int {
	for i, ch := range c.Channels {
		if ch.Name == name {
			return i
		}
	}
	return -1
}

// DoubleChannelCount returns the number of logical channels that re-expose
// a raw position already used by an earlier channel.
func (c *LidarConfig) DoubleChannelCount() int {
	n := 0
	for _, ch := range c.Channels {
		if ch.Double {
			n++
		}
	}
	return n
}

// Station returns the sonde station with the given WMO id.
func (c *LidarConfig) Station(wmoID string) (SondeStation, bool) {
	for _, st := range c.Sonde.Stations {
		if st.WMOID == wmoID {
			return st, true
		}
	}
	return SondeStation{}, false
}

// GetCalibrationOrder returns the calibration ordering mode or the default.
func (c *LidarConfig) GetCalibrationOrder() string {
	if c.CalibrationOrder == "" {
		return OrderByFrequency
	}
	return c.CalibrationOrder
}

// GetSmoothBins returns the telecover block size or the default.
func (c *LidarConfig) GetSmoothBins() int {
	if c.Telecover.SmoothBins <= 0 {
		return 8
	}
	return c.Telecover.SmoothBins
}

// TelecoverChannelName returns the display name of a telecover channel.
func (c *LidarConfig) TelecoverChannelName(ch int) string {
	for i, tc := range c.Telecover.Channels {
		if tc == ch && i < len(c.Telecover.ChannelNames) {
			return c.Telecover.ChannelNames[i]
		}
	}
	if ch >= 0 && ch < len(c.Channels) {
		return c.Channels[ch].Name
	}
	return fmt.Sprintf("chan_%d", ch)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
