package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the pipeline counters. It is separate from the default
// registry so a textfile dump only contains lidar metrics.
var Registry = prometheus.NewRegistry()

var (
	FilesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lidar_scc",
		Name:      "files_ingested_total",
		Help:      "Raw lidar files ingested or appended into a measurement.",
	})
	FilesRefused = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lidar_scc",
		Name:      "files_refused_total",
		Help:      "Raw lidar files that could not be merged, by reason.",
	}, []string{"reason"})
	SondeRowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lidar_scc",
		Name:      "sonde_rows_skipped_total",
		Help:      "Radiosonde rows discarded because they could not be parsed.",
	}, []string{"format"})
	ExportsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lidar_scc",
		Name:      "exports_written_total",
		Help:      "Files written for the retrieval service, by kind.",
	}, []string{"kind"})
	TimeBinsMasked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lidar_scc",
		Name:      "time_bins_masked_total",
		Help:      "Time bins excluded from a raw export.",
	})
)

func init() {
	Registry.MustRegister(FilesIngested, FilesRefused, SondeRowsSkipped, ExportsWritten, TimeBinsMasked)
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
