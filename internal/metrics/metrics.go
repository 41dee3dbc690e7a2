package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"appleroulette/internal/models"
)

const namespace = "appleroulette"

// Run holds the gauges describing one scan-classify cycle.
type Run struct {
	registry *prometheus.Registry

	hostsDiscovered prometheus.Gauge
	records         *prometheus.GaugeVec
	matched         prometheus.Gauge
	threshold       prometheus.Gauge
	scanDuration    prometheus.Gauge
	framesSent      prometheus.Gauge
	sendFailures    prometheus.Gauge
	haltTriggered   prometheus.Gauge
}

// New registers every gauge on a private registry.
func New() *Run {
	reg := prometheus.NewRegistry()
	return &Run{
		registry:        reg,
		hostsDiscovered: newGauge(reg, "scan", "hosts_discovered", "Distinct hosts that answered the ARP sweep."),
		records:         newGaugeVec(reg, "classify", "records", "Classified hosts by outcome.", "outcome"),
		matched:         newGauge(reg, "classify", "matched", "Hosts matched by address or service."),
		threshold:       newGauge(reg, "", "threshold", "Configured match threshold."),
		scanDuration:    newGauge(reg, "scan", "duration_seconds", "Wall time of the ARP sweep."),
		framesSent:      newGauge(reg, "scan", "frames_sent", "ARP requests transmitted."),
		sendFailures:    newGauge(reg, "scan", "send_failures", "ARP requests that could not be transmitted."),
		haltTriggered:   newGauge(reg, "", "halt_triggered", "1 if the match count exceeded the threshold."),
	}
}

func newGauge(reg *prometheus.Registry, subsystem, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	reg.MustRegister(g)
	return g
}

func newGaugeVec(reg *prometheus.Registry, subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	reg.MustRegister(g)
	return g
}

// Registry exposes the private registry, e.g. for testutil or an HTTP handler.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveScan records sweep statistics.
func (r *Run) ObserveScan(hosts, sent, failures int, duration time.Duration) {
	r.hostsDiscovered.Set(float64(hosts))
	r.framesSent.Set(float64(sent))
	r.sendFailures.Set(float64(failures))
	r.scanDuration.Set(duration.Seconds())
}

// ObserveRecords records classification results.
func (r *Run) ObserveRecords(records []models.ScanRecord, threshold int) {
	counts := make(map[models.Outcome]int, len(models.Outcomes))
	matched := 0
	for _, rec := range records {
		counts[rec.Outcome]++
		if rec.Outcome.Matched() {
			matched++
		}
	}
	for _, o := range models.Outcomes {
		r.records.WithLabelValues(o.String()).Set(float64(counts[o]))
	}
	r.matched.Set(float64(matched))
	r.threshold.Set(float64(threshold))
}

// ObserveHalt records whether the halt action fired.
func (r *Run) ObserveHalt(fired bool) {
	if fired {
		r.haltTriggered.Set(1)
		return
	}
	r.haltTriggered.Set(0)
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
