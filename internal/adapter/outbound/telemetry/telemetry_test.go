package telemetry

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

// syncBuffer is a bytes.Buffer safe for the exporters' goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetup_ExportsOnShutdown(t *testing.T) {
	out := &syncBuffer{}
	shutdown, err := Setup(Config{
		Traces:          true,
		Metrics:         true,
		MetricsInterval: time.Hour,
		ServiceVersion:  "test",
		Writer:          out,
	}, nil)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	ctx := context.Background()
	_, span := otel.Tracer("telemetry_test").Start(ctx, "socketgate.test")
	span.End()

	counter, err := otel.Meter("telemetry_test").Int64Counter("socketgate.test.count")
	if err != nil {
		t.Fatalf("Int64Counter() error: %v", err)
	}
	counter.Add(ctx, 3)

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown() error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"socketgate.test", "socketgate.test.count", ServiceName} {
		if !strings.Contains(got, want) {
			t.Errorf("exported telemetry missing %q", want)
		}
	}
}

func TestSetup_Disabled(t *testing.T) {
	out := &syncBuffer{}
	shutdown, err := Setup(Config{Writer: out}, nil)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error: %v", err)
	}
	if out.String() != "" {
		t.Errorf("disabled telemetry wrote %q", out.String())
	}
}
