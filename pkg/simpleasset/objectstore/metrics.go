package objectstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for object store operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
	RecordPresign(duration time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) RecordUpload(time.Duration, int64, error) {}
func (noopObserver) RecordPresign(time.Duration, error)       {}

// PrometheusObserver exports object store metrics to Prometheus.
type PrometheusObserver struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	uploadBytes prometheus.Counter
}

// NewPrometheusObserver registers upload and presign metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "simpleasset_objectstore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency for object store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of object store failures.",
	}, []string{"operation"})
	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Declared size of content successfully uploaded to the object store.",
	})

	o := &PrometheusObserver{duration: duration, errors: errs, uploadBytes: uploadBytes}
	if err := register(reg, &o.duration); err != nil {
		return nil, err
	}
	if err := register(reg, &o.errors); err != nil {
		return nil, err
	}
	if err := register(reg, &o.uploadBytes); err != nil {
		return nil, err
	}
	return o, nil
}

// register registers c, swapping in the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return fmt.Errorf("register object store metric: %w", err)
	}
	return nil
}

// RecordUpload tracks upload duration, size and failures.
func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues("upload").Inc()
		return
	}
	if sizeBytes > 0 {
		o.uploadBytes.Add(float64(sizeBytes))
	}
}

// RecordPresign tracks presign duration and failures.
func (o *PrometheusObserver) RecordPresign(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("presign").Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues("presign").Inc()
	}
}
