// Package health собирает проверки зависимостей сервиса в probes /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Status: состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы для сведения в общий.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler хранит зарегистрированные проверки и отдаёт их результат по HTTP.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
	now      func() time.Time
}

// NewHandler создаёт handler без проверок.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
		now:      time.Now,
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		out[name] = c
	}
	return out
}

// Evaluate запускает проверки параллельно, каждую со своим таймаутом.
// Общий статус равен худшему из статусов проверок.
func (h *Handler) Evaluate(ctx context.Context) Response {
	checkers := h.snapshot()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			result := checker.Check(checkCtx)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, result := range results {
		if result.Status.severity() > overall.severity() {
			overall = result.Status
		}
	}

	now := h.now()
	return Response{
		Status:        overall,
		Timestamp:     now,
		Checks:        results,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}
}

// ServeHTTP отдаёт подробный JSON; 503 только для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.Evaluate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(response.Status))
	_ = json.NewEncoder(w).Encode(response)
}

// ReadinessHandler отвечает коротким текстом. Degraded сервис остаётся в балансировке.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	code := statusCode(h.Evaluate(r.Context()).Status)
	body := "ready"
	if code != http.StatusOK {
		body = "not ready"
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// SimpleChecker считает компонент unhealthy, если функция вернула ошибку.
type SimpleChecker struct {
	name  string
	probe func(ctx context.Context) error
}

// NewSimpleChecker оборачивает ping-функцию, например Store.Ping.
func NewSimpleChecker(name string, probe func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, probe: probe}
}

func (c *SimpleChecker) Check(ctx context.Context) Check {
	start := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.probe(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

// BacklogChecker переводит компонент в degraded, когда самый старый элемент
// очереди ждёт дольше maxAge. Ошибка чтения делает его unhealthy.
type BacklogChecker struct {
	name   string
	oldest func(ctx context.Context) (time.Time, error)
	maxAge time.Duration
	now    func() time.Time
}

// NewBacklogChecker создаёт проверку возраста очереди. oldest возвращает
// нулевое время, если очередь пуста.
func NewBacklogChecker(name string, oldest func(ctx context.Context) (time.Time, error), maxAge time.Duration) *BacklogChecker {
	return &BacklogChecker{name: name, oldest: oldest, maxAge: maxAge, now: time.Now}
}

func (c *BacklogChecker) Check(ctx context.Context) Check {
	start := c.now()
	check := Check{Name: c.name, Status: StatusHealthy}

	oldest, err := c.oldest(ctx)
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.maxAge > 0 && !oldest.IsZero():
		if age := start.Sub(oldest); age > c.maxAge {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("oldest pending item waits %s (limit %s)", age.Truncate(time.Second), c.maxAge)
		}
	}
	check.DurationMs = c.now().Sub(start).Milliseconds()
	return check
}
