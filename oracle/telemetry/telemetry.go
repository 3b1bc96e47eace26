package telemetry

import (
	"strings"
	"time"

	metrics "github.com/armon/go-metrics"
)

// ServiceName is attached to every metric as the "service" label.
const ServiceName = "oracled"

// metric keys
var (
	KeyRegistrationSuccess = []string{"oracle", "registration", "success"}
	KeyRegistrationFailure = []string{"oracle", "registration", "failure"}
	KeyRequestReceived     = []string{"oracle", "request", "received"}
	KeyRequestMatched      = []string{"oracle", "request", "matched"}
	KeySubmissionSuccess   = []string{"oracle", "submission", "success"}
	KeySubmissionFailure   = []string{"oracle", "submission", "failure"}
	KeySubmissionLatency   = []string{"oracle", "submission", "latency"}
	KeySubscriptionError   = []string{"oracle", "subscription", "error"}
	KeyStatusConsensus     = []string{"oracle", "status", "consensus"}
	KeyRegistrySize        = []string{"oracle", "registry", "size"}
)

const (
	DefaultInterval = 10 * time.Second
	DefaultRetain   = time.Minute
)

// Init installs an in-memory sink as the process-wide metrics backend and returns it.
func Init(interval, retain time.Duration) (*metrics.InmemSink, error) {
	sink := metrics.NewInmemSink(interval, retain)

	cfg := metrics.DefaultConfig(ServiceName)
	cfg.EnableHostname = false
	cfg.EnableServiceLabel = true
	cfg.EnableRuntimeMetrics = false

	if _, err := metrics.NewGlobal(cfg, sink); err != nil {
		return nil, err
	}

	return sink, nil
}

func IncrCounter(key []string) {
	metrics.IncrCounter(key, 1)
}

func IncrCounterBy(key []string, n int) {
	metrics.IncrCounter(key, float32(n))
}

func IncrCounterWithLabels(key []string, labels ...metrics.Label) {
	metrics.IncrCounterWithLabels(key, 1, labels)
}

func SetGauge(key []string, val float32) {
	metrics.SetGauge(key, val)
}

func MeasureSince(key []string, start time.Time) {
	metrics.MeasureSince(key, start)
}

// Counter sums a counter over every interval the sink still retains.
func Counter(sink *metrics.InmemSink, key []string) float64 {
	name := strings.Join(key, ".")

	var total float64
	for _, intv := range sink.Data() {
		intv.RLock()
		for _, v := range intv.Counters {
			if v.Name == name && v.AggregateSample != nil {
				total += v.Sum
			}
		}
		intv.RUnlock()
	}

	return total
}

// Gauge returns the latest value set for key, or zero.
func Gauge(sink *metrics.InmemSink, key []string) float32 {
	name := strings.Join(key, ".")

	var (
		val float32
		set bool
	)
	data := sink.Data()
	for i := len(data) - 1; i >= 0 && !set; i-- {
		data[i].RLock()
		for _, g := range data[i].Gauges {
			if g.Name == name {
				val, set = g.Value, true
			}
		}
		data[i].RUnlock()
	}

	return val
}
