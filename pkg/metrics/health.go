package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CriticalComponents are the pieces the daemon cannot serve without.
// Readiness stays not_ready until every one of them reports healthy.
var CriticalComponents = []string{"store", "pool", "api"}

// HealthStatus is the wire form of the health and readiness routes.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentHealth struct {
	healthy bool
	message string
	updated time.Time
}

type healthRegistry struct {
	mu         sync.RWMutex
	components map[string]componentHealth
	startTime  time.Time
	version    string
}

func newHealthRegistry() *healthRegistry {
	return &healthRegistry{
		components: make(map[string]componentHealth),
		startTime:  time.Now(),
	}
}

var health = newHealthRegistry()

// SetVersion sets the version string for health responses.
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// SetComponent records the health of a named component. Components
// report themselves as they come up, degrade, and shut down.
func SetComponent(name string, healthy bool, message string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components[name] = componentHealth{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
}

// Health returns the overall picture: unhealthy as soon as any
// registered component is unhealthy.
func Health() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(health.components))
	for name, comp := range health.components {
		if comp.healthy {
			components[name] = "healthy"
			continue
		}
		status = "unhealthy"
		components[name] = "unhealthy: " + comp.message
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    health.version,
		Uptime:     time.Since(health.startTime).String(),
	}
}

// Readiness reports whether every critical component has come up.
func Readiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(CriticalComponents))
	for _, name := range CriticalComponents {
		comp, ok := health.components[name]
		switch {
		case !ok:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.message
		default:
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    health.version,
		Uptime:     time.Since(health.startTime).String(),
	}
}

// HealthHandler serves the overall health picture, 503 when unhealthy.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, Health(), func(s HealthStatus) bool { return s.Status == "healthy" })
	}
}

// ReadyHandler serves readiness, 503 until every critical component is up.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, Readiness(), func(s HealthStatus) bool { return s.Status == "ready" })
	}
}

// LivenessHandler answers 200 whenever the process can still serve HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(health.startTime).String(),
		})
	}
}

func writeStatus(w http.ResponseWriter, status HealthStatus, ok func(HealthStatus) bool) {
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if !ok(status) {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
