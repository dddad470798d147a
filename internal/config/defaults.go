package config

var defaultChannelNames = []string{
	"wa_355p", "wa_355s", "wa_387_fr", "wa_407", "wa_532p", "wa_532s",
	"wa_607_fr", "wa_1064", "wa_355total_nr", "wa_387_nr", "wa_532total_nr",
	"wa_607_nr", "wa_355total_fr", "wa_532total_fr", "wa_387", "wa_355total",
	"wa_607", "wa_532total",
}

var (
	defaultRawPositions = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 0, 4, 2, 0, 6, 4}
	defaultChannelIDs   = []int{387, 388, 389, 390, 395, 398, 397, 396, 445, 999, 999, 999, 999, 999, 999, 999, 999, 999}
	defaultRangeIDs     = []int{1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}
)

// Default returns the built-in instrument configuration. It matches
// config/lidar.defaults.json.
func Default() *LidarConfig {
	channels := make([]ChannelConfig, len(defaultChannelNames))
	used := make(map[int]bool)
	for i, name := range defaultChannelNames {
		pos := defaultRawPositions[i]
		channels[i] = ChannelConfig{
			Name:        name,
			RawPosition: pos,
			ChannelID:   defaultChannelIDs[i],
			RangeID:     defaultRangeIDs[i],
			BGFirst:     0,
			BGLast:      240,
			Double:      used[pos],
		}
		used[pos] = true
	}

	return &LidarConfig{
		Instrument:           "PollyXT",
		StationID:            "wa",
		FirstValidBin:        defaultFirstValidBin,
		LightSpeed:           defaultLightSpeed,
		MeasurementCalAngle:  defaultMeasurementCal,
		GroundPressure:       1000,
		GroundTemperature:    15,
		CloudMaskChannel:     7,
		CalibrationRange:     [2]float64{1000, 3000},
		CalibrationOrder:     OrderByFrequency,
		DepolCalFilenameBody: "wa_ADR",
		QuicklookChannel:     7,
		MaxPlotAltitude:      15000,
		Channels:             channels,
		CalibrationChannels: []CalibrationChannelConfig{
			{Name: "wa_532p_p45", ChannelID: 905, SourceChannel: 4, Position: 1},
			{Name: "wa_532p_m45", ChannelID: 906, SourceChannel: 4, Position: 0},
			{Name: "wa_532s_p45", ChannelID: 907, SourceChannel: 5, Position: 1},
			{Name: "wa_532s_m45", ChannelID: 908, SourceChannel: 5, Position: 0},
			{Name: "wa_355p_p45", ChannelID: 909, SourceChannel: 0, Position: 1},
			{Name: "wa_355p_m45", ChannelID: 910, SourceChannel: 0, Position: 0},
			{Name: "wa_355s_p45", ChannelID: 911, SourceChannel: 1, Position: 1},
			{Name: "wa_355s_m45", ChannelID: 912, SourceChannel: 1, Position: 0},
		},
		Telecover: TelecoverConfig{
			StationName:        "Leipzig",
			Channels:           []int{0, 1, 4, 5, 7},
			ChannelNames:       []string{"355 p", "355 s", "532 p", "532 s", "1064"},
			Sectors:            []string{"north", "east", "south", "west", "north2"},
			AverageSectors:     []string{"north", "east", "south", "west"},
			NormalizationRange: [2]float64{1500, 2500},
			SmoothBins:         8,
			Ratios: []RatioConfig{
				{Name: "355p/532p", Nominator: 0, Denominator: 4},
				{Name: "532p/1064", Nominator: 4, Denominator: 7},
			},
			MaxOutputHeight: 5000,
			MaxPlotHeight:   [2]float64{2000, 5000},
		},
		Sonde: SondeConfig{
			HeaderMarker:  "hPa",
			BottomMarker:  "Station",
			MaxDistanceKm: 150,
			Stations: []SondeStation{
				{WMOID: "10954", Name: "Altenstadt", Latitude: 47.50, Longitude: 10.52, Altitude: 756},
				{WMOID: "10962", Name: "Hohenpeissenberg", Latitude: 47.8, Longitude: 11.01, Altitude: 977},
				{WMOID: "11120", Name: "Innsbruck", Latitude: 47.16, Longitude: 11.21, Altitude: 593},
				{WMOID: "10868", Name: "Oberschleissheim", Latitude: 48.25, Longitude: 11.55, Altitude: 492},
				{WMOID: "12374", Name: "Legionowo", Latitude: 52.40, Longitude: 20.96, Altitude: 96},
			},
		},
		Paths: PathsConfig{
			Temp:      "tmp",
			Output:    "out",
			Sonde:     "sonde",
			Telecover: "telecover",
			Catalog:   "out/exports.db",
		},
	}
}
