package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChecker_ReadinessAllHealthy(t *testing.T) {
	c := New(time.Second)
	c.Register("records", func(ctx context.Context) error { return nil })
	c.Register("audit", func(ctx context.Context) error { return nil })

	status := c.Readiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("status = %q", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Errorf("check count = %d", len(status.Checks))
	}
}

func TestChecker_ReadinessDegraded(t *testing.T) {
	c := New(time.Second)
	c.Register("records", func(ctx context.Context) error { return nil })
	c.Register("audit", func(ctx context.Context) error { return errors.New("db locked") })

	status := c.Readiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q", status.Status)
	}
	if status.Checks["audit"].Message != "db locked" {
		t.Errorf("audit check = %+v", status.Checks["audit"])
	}
}

func TestChecker_CheckTimeout(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})

	status := c.Readiness(context.Background())
	if status.Checks["slow"].Status != "unhealthy" {
		t.Errorf("slow check = %+v", status.Checks["slow"])
	}
}

func TestEndpoints(t *testing.T) {
	c := New(time.Second)

	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Errorf("liveness status = %d", rec.Code)
	}

	c.Register("audit", func(ctx context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Errorf("readiness status = %d, want 503", rec.Code)
	}
}
