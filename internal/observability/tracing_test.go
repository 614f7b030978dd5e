package observability

import (
	"context"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	// The gRPC connection is lazy. An unreachable collector should not fail
	// initialization; some environments reject immediately, which is fine too.
	shutdown, err := InitTracer(context.Background(), "tenon-controller", "localhost:4317")
	if err != nil {
		t.Logf("InitTracer returned error in this environment: %v", err)
		return
	}
	if shutdown == nil {
		t.Fatal("expected a non-nil shutdown function")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestInitTracer_UnresolvableEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "tenon-controller", "no-such-host:9999")
	if err != nil {
		t.Logf("InitTracer failed eagerly: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
