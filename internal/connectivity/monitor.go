// Пакет connectivity — Connectivity Monitor: флаг доступности сети с опросом по интервалу.
//
// Monitor выполняет проверку сразу при Start, затем повторяет её каждые interval
// (по умолчанию 5 секунд). Подписчики получают каждое изменение флага по порядку.
// Stop останавливает опрос детерминированно и дожидается завершения горутины.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bigkaa/acme-procurement/internal/notify"
)

// DefaultInterval — интервал опроса по умолчанию.
const DefaultInterval = 5 * time.Second

// Probe — проверка доступности.
type Probe interface {
	Check(ctx context.Context) bool
}

// ProbeFunc — адаптер функции к Probe.
type ProbeFunc func(ctx context.Context) bool

// Check вызывает f(ctx).
func (f ProbeFunc) Check(ctx context.Context) bool {
	return f(ctx)
}

// HTTPProbe проверяет доступность GET-запросом к URL.
// Любой HTTP-ответ с кодом < 500 означает, что сеть доступна;
// ошибка транспорта или 5xx — недоступна.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe создаёт HTTPProbe с тайм-аутом одного запроса.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Check выполняет запрос.
func (p *HTTPProbe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Monitor — Connectivity Monitor.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *slog.Logger
	dispatch *notify.Dispatcher[bool]

	mu     sync.Mutex
	online bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor создаёт монитор. interval <= 0 заменяется на DefaultInterval.
// До первой проверки сеть считается доступной.
func NewMonitor(probe Probe, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logger.With(slog.String("component", "connectivity")),
		dispatch: notify.New[bool](),
		online:   true,
	}
}

// Start запускает фоновый опрос. Первая проверка выполняется сразу.
// Повторный вызов без Stop ничего не делает.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.dispatch.Start()

	go func() {
		defer close(done)

		m.logger.Info("Мониторинг сети запущен",
			slog.String("interval", m.interval.String()),
		)

		m.check(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("Мониторинг сети остановлен")
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop останавливает опрос, ждёт завершения горутины и доставки уведомлений.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.dispatch.Stop()
}

// Current возвращает текущее значение флага.
func (m *Monitor) Current() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange подписывает listener на изменения флага.
func (m *Monitor) OnChange(listener func(online bool)) (unsubscribe func()) {
	return m.dispatch.Subscribe(listener)
}

func (m *Monitor) check(ctx context.Context) {
	online := m.probe.Check(ctx)
	if ctx.Err() != nil {
		// Результат проверки, прерванной остановкой, не применяется.
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if online == m.online {
		return
	}
	m.online = online
	m.dispatch.Publish(online)

	if online {
		m.logger.Info("Сеть доступна")
	} else {
		m.logger.Warn("Сеть недоступна")
	}
}
