package gpucmd

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/gpucmd/gpucore"
)

// Copy directions reported by gpucmd_copies_total.
const (
	copyBufferToTexture = "buffer_to_texture"
	copyTextureToBuffer = "texture_to_buffer"
	copyBufferToBuffer  = "buffer_to_buffer"
	copyFill            = "fill"
)

// Metrics holds the Prometheus collectors of a Context.
type Metrics struct {
	// Submissions counts successful Submit calls.
	Submissions prometheus.Counter

	// Passes counts submitted passes by kind.
	Passes *prometheus.CounterVec

	// Dispatches counts submitted dispatches.
	Dispatches prometheus.Counter

	// Copies counts submitted transfer commands by direction.
	Copies *prometheus.CounterVec

	// WaitTimeouts counts WaitFor calls that returned false.
	WaitTimeouts prometheus.Counter

	// WaitSeconds observes the time spent in WaitFor.
	WaitSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with r.
// A nil r creates unregistered collectors.
func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpucmd_submissions_total",
			Help: "Command streams submitted to the device",
		}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpucmd_passes_total",
			Help: "Passes submitted by kind",
		}, []string{"kind"}),
		Dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpucmd_dispatches_total",
			Help: "Compute dispatches submitted",
		}),
		Copies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpucmd_copies_total",
			Help: "Transfer commands submitted by direction",
		}, []string{"direction"}),
		WaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpucmd_wait_timeouts_total",
			Help: "Waits on a sync point that timed out",
		}),
		WaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpucmd_wait_seconds",
			Help:    "Time spent waiting on sync points in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if r == nil {
		return m, nil
	}
	for _, c := range m.Collectors() {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Collectors returns every collector in m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Submissions, m.Passes, m.Dispatches, m.Copies, m.WaitTimeouts, m.WaitSeconds}
}

func (m *Metrics) observeSubmit(list *gpucore.CommandList) {
	if m == nil {
		return
	}
	m.Submissions.Inc()
	for _, p := range list.Passes {
		m.Passes.WithLabelValues(p.Kind.String()).Inc()
		for _, cmd := range p.Commands {
			switch cmd.(type) {
			case gpucore.Dispatch:
				m.Dispatches.Inc()
			case gpucore.CopyBufferToTexture:
				m.Copies.WithLabelValues(copyBufferToTexture).Inc()
			case gpucore.CopyTextureToBuffer:
				m.Copies.WithLabelValues(copyTextureToBuffer).Inc()
			case gpucore.CopyBufferToBuffer:
				m.Copies.WithLabelValues(copyBufferToBuffer).Inc()
			case gpucore.FillBuffer:
				m.Copies.WithLabelValues(copyFill).Inc()
			}
		}
	}
}

func (m *Metrics) observeWait(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.WaitSeconds.Observe(d.Seconds())
	if !ok {
		m.WaitTimeouts.Inc()
	}
}
