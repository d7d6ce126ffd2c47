package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetComponent(t *testing.T) {
	health = newHealthRegistry()

	SetComponent("store", true, "open")

	if len(health.components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(health.components))
	}
	comp := health.components["store"]
	if !comp.healthy {
		t.Error("component should be healthy")
	}
	if comp.message != "open" {
		t.Errorf("expected message 'open', got '%s'", comp.message)
	}
}

func TestHealthAllHealthy(t *testing.T) {
	health = newHealthRegistry()
	SetVersion("1.0.0")

	SetComponent("store", true, "")
	SetComponent("pool", true, "")

	status := Health()
	if status.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", status.Status)
	}
	if len(status.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(status.Components))
	}
	if status.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", status.Version)
	}
}

func TestHealthOneUnhealthy(t *testing.T) {
	health = newHealthRegistry()

	SetComponent("store", true, "")
	SetComponent("pool", false, "dispatcher stopped")

	status := Health()
	if status.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", status.Status)
	}
	if status.Components["pool"] != "unhealthy: dispatcher stopped" {
		t.Errorf("unexpected pool status: %s", status.Components["pool"])
	}
}

func TestReadinessAllReady(t *testing.T) {
	health = newHealthRegistry()

	SetComponent("store", true, "")
	SetComponent("pool", true, "")
	SetComponent("api", true, "")

	readiness := Readiness()
	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestReadinessMissingCriticalComponent(t *testing.T) {
	health = newHealthRegistry()

	SetComponent("store", true, "")
	SetComponent("api", true, "")

	readiness := Readiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
	if readiness.Components["pool"] != "not registered" {
		t.Errorf("unexpected pool status: %s", readiness.Components["pool"])
	}
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	health = newHealthRegistry()

	rr := httptest.NewRecorder()
	ReadyHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before components register, got %d", rr.Code)
	}

	SetComponent("store", true, "")
	SetComponent("pool", true, "")
	SetComponent("api", true, "")

	rr = httptest.NewRecorder()
	ReadyHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 once critical components register, got %d", rr.Code)
	}

	var body HealthStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode readiness body: %v", err)
	}
	if body.Status != "ready" {
		t.Errorf("expected body status 'ready', got '%s'", body.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	health = newHealthRegistry()

	rr := httptest.NewRecorder()
	LivenessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode liveness body: %v", err)
	}
	if body["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", body["status"])
	}
}
