// Package health отдаёт liveness/readiness и сводку по зависимостям сервиса.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/version"
)

// Status: состояние компонента или сервиса в целом.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded: упала некритичная зависимость (например, Kafka): оформление работает.
	StatusDegraded Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело /healthz.
type Response struct {
	Status        Status        `json:"status"`
	Timestamp     time.Time     `json:"timestamp"`
	Checks        []Check       `json:"checks,omitempty"`
	Build         version.Build `json:"build"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

// PingFunc проверяет доступность зависимости.
type PingFunc func(ctx context.Context) error

type probe struct {
	name     string
	ping     PingFunc
	critical bool
}

// Handler выполняет зарегистрированные проверки параллельно.
type Handler struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
	started time.Time
}

func NewHandler() *Handler {
	return &Handler{timeout: defaultCheckTimeout, started: time.Now()}
}

// Critical регистрирует зависимость, без которой сервис не готов (база, сессии).
func (h *Handler) Critical(name string, ping PingFunc) {
	h.register(probe{name: name, ping: ping, critical: true})
}

// Optional регистрирует зависимость, падение которой даёт degraded.
func (h *Handler) Optional(name string, ping PingFunc) {
	h.register(probe{name: name, ping: ping})
}

func (h *Handler) register(p probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, p)
}

// Run выполняет все проверки и сводит статус.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	probes := append([]probe(nil), h.probes...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := make([]Check, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checks[i] = run(ctx, p)
		}()
	}
	wg.Wait()
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	overall := StatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case c.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Build:         version.Get(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

func run(ctx context.Context, p probe) Check {
	start := time.Now()
	err := p.ping(ctx)
	c := Check{Name: p.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		c.Message = err.Error()
		c.Status = StatusDegraded
		if p.critical {
			c.Status = StatusUnhealthy
		}
	}
	return c
}

// ServeHTTP отдаёт полную сводку; 503 только при отказе критичной зависимости.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Ready: readiness probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Run(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// Live: liveness probe, всегда 200.
func Live(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}
