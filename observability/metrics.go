package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	framesBuffered      prometheus.Counter
	framesDropped       prometheus.Counter
	activeGroupAdvances prometheus.Counter
	catalogParseErrors  prometheus.Counter
	decoderErrors       prometheus.Counter
	underruns           prometheus.Counter
	liveTracks          prometheus.Gauge
	bufferedFrames      *prometheus.GaugeVec
	latencyHist         *prometheus.HistogramVec
)

// registerMetrics creates and registers every Prometheus collector
// exactly once per process, the way promauto.With would but without
// that extra dependency — mirrors the teacher's use of
// promhttp.Handler() for exposition without promauto for registration.
func registerMetrics() {
	metricsOnce.Do(func() {
		framesBuffered = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hang_frames_buffered_total",
			Help: "Frames enqueued into a jitter buffer.",
		})
		framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hang_frames_dropped_total",
			Help: "Frames dropped as stale (group superseded by an active-group advance).",
		})
		activeGroupAdvances = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hang_active_group_advances_total",
			Help: "Times a jitter buffer's active group advanced.",
		})
		catalogParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hang_catalog_parse_errors_total",
			Help: "Malformed catalog.json frames encountered.",
		})
		decoderErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hang_decoder_errors_total",
			Help: "Decoder errors reported by a pipeline's decoder (the frame is dropped).",
		})
		underruns = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hang_audio_underruns_total",
			Help: "Times the audio ring buffer re-entered refill mode.",
		})
		liveTracks = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hang_live_tracks",
			Help: "Tracks with a live jitter.Consumer.",
		})
		bufferedFrames = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hang_buffered_frames",
			Help: "Frames currently queued in a track's jitter buffer.",
		}, []string{"track"})
		latencyHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hang_pipeline_latency_seconds",
			Help:    "Observed latency by pipeline phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"track", "phase"})

		prometheus.MustRegister(
			framesBuffered, framesDropped, activeGroupAdvances,
			catalogParseErrors, decoderErrors, underruns,
			liveTracks, bufferedFrames, latencyHist,
		)
	})
}

// IncTracks increments the live-track gauge; call once per started
// jitter.Consumer.
func IncTracks() {
	if !metricsOn {
		return
	}
	liveTracks.Inc()
}

// DecTracks decrements the live-track gauge; call once per
// jitter.Consumer.Close.
func DecTracks() {
	if !metricsOn {
		return
	}
	liveTracks.Dec()
}

// Recorder records per-track metrics. The zero value is not usable;
// construct with NewRecorder. Every method is a safe noop when
// metrics are disabled.
type Recorder struct {
	track string
}

// NewRecorder returns a Recorder scoped to track.
func NewRecorder(track string) *Recorder {
	return &Recorder{track: track}
}

// FrameBuffered records a frame entering the jitter queue.
func (r *Recorder) FrameBuffered() {
	if !metricsOn {
		return
	}
	framesBuffered.Inc()
}

// FrameDropped records a frame dropped as stale.
func (r *Recorder) FrameDropped() {
	if !metricsOn {
		return
	}
	framesDropped.Inc()
}

// ActiveGroupAdvanced records the jitter buffer's active group moving
// forward.
func (r *Recorder) ActiveGroupAdvanced() {
	if !metricsOn {
		return
	}
	activeGroupAdvances.Inc()
}

// CatalogParseError records a malformed catalog.json frame.
func (r *Recorder) CatalogParseError() {
	if !metricsOn {
		return
	}
	catalogParseErrors.Inc()
}

// DecoderError records a fatal decoder error.
func (r *Recorder) DecoderError() {
	if !metricsOn {
		return
	}
	decoderErrors.Inc()
}

// Underrun records the audio ring buffer re-entering refill mode.
func (r *Recorder) Underrun() {
	if !metricsOn {
		return
	}
	underruns.Inc()
}

// SetBufferedFrames sets the current queue depth gauge for this track.
func (r *Recorder) SetBufferedFrames(n int) {
	if !metricsOn {
		return
	}
	bufferedFrames.WithLabelValues(r.track).Set(float64(n))
}

// LatencyObs returns an Observer for the named phase ("decode",
// "render", ...), or nil when metrics are disabled.
func (r *Recorder) LatencyObs(phase string) prometheus.Observer {
	if !metricsOn {
		return nil
	}
	return latencyHist.WithLabelValues(r.track, phase)
}

// Observe is a convenience wrapper around LatencyObs for callers that
// already hold a time.Duration rather than a started timer.
func (r *Recorder) Observe(phase string, d time.Duration) {
	obs := r.LatencyObs(phase)
	if obs == nil {
		return
	}
	obs.Observe(d.Seconds())
}
