// health.go — health endpoints API закупок.
// /health/live — процесс жив
// /health/ready — готовность по списку проверок зависимостей
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/acme-procurement/internal/config"
)

const serviceName = "procurement-api"

// Статусы readiness.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// ReadinessCheck — именованная проверка в /health/ready.
// Отказ critical-проверки даёт 503, остальных — только degraded.
type ReadinessCheck struct {
	Name     string
	Checker  ReadinessChecker
	Critical bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checks      []ReadinessCheck
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// Проверка с nil Checker считается отказавшей.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks:      checks,
		promHandler: promhttp.Handler(),
	}
}

// WithCheck добавляет проверку после создания обработчика
// (например, когда мониторинг зависимостей запустился).
func (h *HealthHandler) WithCheck(c ReadinessCheck) *HealthHandler {
	h.checks = append(h.checks, c)
	return h
}

type healthCheckResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Critical bool   `json:"critical"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — 200, пока процесс отвечает.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.checks)),
	}

	for _, c := range h.checks {
		res := runCheck(c)
		resp.Checks[c.Name] = res
		resp.Status = combineStatus(resp.Status, res)
	}

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func runCheck(c ReadinessCheck) healthCheckResult {
	if c.Checker == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован", Critical: c.Critical}
	}
	status, msg := c.Checker.CheckReady()
	return healthCheckResult{Status: status, Message: msg, Critical: c.Critical}
}

// combineStatus: fail только от critical-проверки, любой другой
// не-ok результат понижает итог до degraded.
func combineStatus(current string, res healthCheckResult) string {
	switch {
	case current == statusFail:
		return statusFail
	case res.Status == statusFail && res.Critical:
		return statusFail
	case res.Status != statusOK:
		return statusDegraded
	default:
		return current
	}
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
