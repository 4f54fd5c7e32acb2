package connection

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/socketgate/socketgate/internal/domain/connection"

// Observer receives connection lifecycle and request outcomes. Metrics
// adapters implement it.
type Observer interface {
	ConnectionOpened(version string)
	ConnectionClosed(lifetime time.Duration)
	RequestCompleted(method string, status int, elapsed time.Duration)
	ResponseDropped()
	RequestRejected(reason string)
	CookieParseFailed(field string)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ConnectionOpened(string) {}
func (NopObserver) ConnectionClosed(time.Duration) {}
func (NopObserver) RequestCompleted(string, int, time.Duration) {}
func (NopObserver) ResponseDropped() {}
func (NopObserver) RequestRejected(string) {}
func (NopObserver) CookieParseFailed(string) {}

var _ Observer = NopObserver{}

var (
	lifetimeOnce      sync.Once
	lifetimeHistogram metric.Float64Histogram
)

// recordLifetime reports a closed connection's lifetime to the global
// OpenTelemetry meter provider.
func recordLifetime(ctx context.Context, version string, lifetime time.Duration) {
	lifetimeOnce.Do(func() {
		h, err := otel.Meter(instrumentationName).Float64Histogram(
			"socketgate.connection.duration",
			metric.WithDescription("Lifetime of socket connections"),
			metric.WithUnit("s"),
		)
		if err == nil {
			lifetimeHistogram = h
		}
	})
	if lifetimeHistogram == nil {
		return
	}
	lifetimeHistogram.Record(ctx, lifetime.Seconds(),
		metric.WithAttributes(attribute.String("protocol", version)))
}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (obs Observers) ConnectionOpened(version string) {
	for _, o := range obs {
		o.ConnectionOpened(version)
	}
}

func (obs Observers) ConnectionClosed(lifetime time.Duration) {
	for _, o := range obs {
		o.ConnectionClosed(lifetime)
	}
}

func (obs Observers) RequestCompleted(method string, status int, elapsed time.Duration) {
	for _, o := range obs {
		o.RequestCompleted(method, status, elapsed)
	}
}

func (obs Observers) ResponseDropped() {
	for _, o := range obs {
		o.ResponseDropped()
	}
}

func (obs Observers) RequestRejected(reason string) {
	for _, o := range obs {
		o.RequestRejected(reason)
	}
}

func (obs Observers) CookieParseFailed(field string) {
	for _, o := range obs {
		o.CookieParseFailed(field)
	}
}

var _ Observer = Observers(nil)
