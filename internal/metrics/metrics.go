package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xxxsen/feedhub/internal/model"
)

// Metrics holds the import pipeline collectors.
type Metrics struct {
	ImportRuns      *prometheus.CounterVec
	ImportRecords   *prometheus.CounterVec
	RemotePages     *prometheus.CounterVec
	RateLimitDenied *prometheus.CounterVec
	VaultRekeys     prometheus.Counter
	ImportDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ImportRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedhub_import_runs_total",
			Help: "Import runs by source and outcome",
		}, []string{"source", "outcome"}),
		ImportRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedhub_import_records_total",
			Help: "Imported records by source and result",
		}, []string{"source", "result"}),
		RemotePages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedhub_import_remote_pages_total",
			Help: "Pages fetched from remote providers",
		}, []string{"provider"}),
		RateLimitDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedhub_rate_limit_denied_total",
			Help: "Requests denied by the rate gate",
		}, []string{"action"}),
		VaultRekeys: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedhub_vault_rekeys_total",
			Help: "Stored credentials re-encrypted under the current key version",
		}),
		ImportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedhub_import_duration_seconds",
			Help:    "Wall time of import runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
	}
}

// ObserveFile records the counts of a finished file run.
func (m *Metrics) ObserveFile(summary *model.FileImportSummary) {
	if m == nil || summary == nil {
		return
	}
	m.addRecords(model.ImportSourceCSV, summary.CreatedCount, summary.UpdatedCount, summary.SkippedCount, summary.ErrorCount)
}

func (m *Metrics) ObserveRemote(source string, summary *model.RemoteImportSummary) {
	if m == nil || summary == nil {
		return
	}
	m.addRecords(source, summary.CreatedCount, summary.UpdatedCount, summary.SkippedCount, len(summary.Errors))
	m.RemotePages.WithLabelValues(source).Add(float64(summary.PagesFetched))
}

func (m *Metrics) addRecords(source string, created, updated, skipped, errored int) {
	m.ImportRecords.WithLabelValues(source, "created").Add(float64(created))
	m.ImportRecords.WithLabelValues(source, "updated").Add(float64(updated))
	m.ImportRecords.WithLabelValues(source, "skipped").Add(float64(skipped))
	m.ImportRecords.WithLabelValues(source, "error").Add(float64(errored))
}

func (m *Metrics) RunFinished(source, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ImportRuns.WithLabelValues(source, outcome).Inc()
	m.ImportDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.RateLimitDenied.WithLabelValues(action).Inc()
}

func (m *Metrics) Rekeyed() {
	if m == nil {
		return
	}
	m.VaultRekeys.Inc()
}
