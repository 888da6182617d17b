// Package health отдаёт liveness/readiness пробы и сводный статус зависимостей витрины.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status - состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusDegraded - сервис принимает заказы, но вспомогательная подсистема отстаёт.
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Check - результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Checker проверяет один компонент. Реализации сами ограничивают время проверки.
type Checker interface {
	Check() Check
}

// BuildInfo попадает в ответ /healthz.
type BuildInfo struct {
	Service string
	Version string
	Commit  string
}

// Response - тело /healthz.
type Response struct {
	Service       string           `json:"service"`
	Status        Status           `json:"status"`
	Version       string           `json:"version,omitempty"`
	Commit        string           `json:"commit,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks,omitempty"`
}

type Handler struct {
	build   BuildInfo
	started time.Time

	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewHandler(build BuildInfo) *Handler {
	return &Handler{
		build:    build,
		started:  time.Now(),
		checkers: map[string]Checker{},
	}
}

// RegisterChecker добавляет проверку; повторная регистрация имени заменяет прежнюю.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Report опрашивает все зависимости параллельно.
func (h *Handler) Report() Response {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[string]Check, len(checkers))
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check := c.Check()
			resMu.Lock()
			results[name] = check
			resMu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range results {
		overall = worse(overall, check.Status)
	}

	return Response{
		Service:       h.build.Service,
		Status:        overall,
		Version:       h.build.Version,
		Commit:        h.build.Commit,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.started) / time.Second),
		Checks:        results,
	}
}

// ServeHTTP отвечает 503 только при unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := h.Report()

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler снимает под с балансировки, пока хоть одна зависимость unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if h.Report().Status == StatusUnhealthy {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

// LivenessHandler отвечает, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
