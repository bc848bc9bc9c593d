package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type flagProbe struct {
	online atomic.Bool
	calls  atomic.Int64
}

func (p *flagProbe) Check(context.Context) bool {
	p.calls.Add(1)
	return p.online.Load()
}

type flips struct {
	mu     sync.Mutex
	values []bool
}

func (f *flips) listen(v bool) {
	f.mu.Lock()
	f.values = append(f.values, v)
	f.mu.Unlock()
}

func (f *flips) snapshot() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.values...)
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(ProbeFunc(func(context.Context) bool { return true }), 0, testLogger())
	if m.interval != DefaultInterval {
		t.Errorf("interval = %v, ожидалось %v", m.interval, DefaultInterval)
	}
	if !m.Current() {
		t.Error("до первой проверки сеть должна считаться доступной")
	}
}

func TestMonitor_ImmediateCheck(t *testing.T) {
	probe := &flagProbe{}
	// Интервал больше времени теста: сработать может только первая проверка.
	m := NewMonitor(probe, time.Hour, testLogger())
	m.Start(context.Background())
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for m.Current() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Current() {
		t.Fatal("первая проверка не выполнена сразу при Start")
	}
	if n := probe.calls.Load(); n != 1 {
		t.Errorf("проверок = %d, ожидалась 1", n)
	}
}

// Флаг false → true переключается не позже чем через два интервала.
func TestMonitor_FlipWithinTwoIntervals(t *testing.T) {
	const interval = 30 * time.Millisecond

	probe := &flagProbe{}
	m := NewMonitor(probe, interval, testLogger())
	f := &flips{}
	m.OnChange(f.listen)
	m.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for m.Current() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.Current() {
		t.Fatal("монитор не перешёл в offline")
	}

	probe.online.Store(true)
	flippedAt := time.Now()
	for !m.Current() && time.Since(flippedAt) < 2*interval+50*time.Millisecond {
		time.Sleep(time.Millisecond)
	}
	if !m.Current() {
		t.Fatal("монитор не вернулся в online за два интервала")
	}

	m.Stop()

	got := f.snapshot()
	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("переходы = %v, ожидалось [false true]", got)
	}
}

func TestMonitor_NoNotificationWithoutChange(t *testing.T) {
	probe := &flagProbe{}
	probe.online.Store(true)
	m := NewMonitor(probe, 5*time.Millisecond, testLogger())
	f := &flips{}
	m.OnChange(f.listen)
	m.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for probe.calls.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	m.Stop()

	if got := f.snapshot(); len(got) != 0 {
		t.Errorf("уведомления без изменения флага: %v", got)
	}
}

// После Stop опрос прекращается.
func TestMonitor_StopHaltsPolling(t *testing.T) {
	probe := &flagProbe{}
	m := NewMonitor(probe, 5*time.Millisecond, testLogger())
	m.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for probe.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	m.Stop()
	select {
	case <-m.done:
	default:
		t.Fatal("горутина опроса не завершилась после Stop")
	}

	calls := probe.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if n := probe.calls.Load(); n != calls {
		t.Errorf("опрос продолжился после Stop: %d → %d", calls, n)
	}

	m.Stop() // повторный вызов безопасен
}

func TestMonitor_ParentContextCancel(t *testing.T) {
	probe := &flagProbe{}
	m := NewMonitor(probe, 5*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("опрос не остановился при отмене родительского контекста")
	}
	m.Stop()
}

func TestHTTPProbe(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"200", http.StatusOK, true},
		{"204", http.StatusNoContent, true},
		{"404 — сеть есть", http.StatusNotFound, true},
		{"401 — сеть есть", http.StatusUnauthorized, true},
		{"503", http.StatusServiceUnavailable, false},
		{"500", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewHTTPProbe(srv.URL, time.Second)
			if got := p.Check(context.Background()); got != tt.want {
				t.Errorf("Check() = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

func TestHTTPProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewHTTPProbe(url, time.Second)
	if p.Check(context.Background()) {
		t.Error("Check() = true для закрытого сервера")
	}
}

func TestHTTPProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProbe(srv.URL, 20*time.Millisecond)
	if p.Check(context.Background()) {
		t.Error("Check() = true при тайм-ауте")
	}
}

func TestHTTPProbe_BadURL(t *testing.T) {
	p := NewHTTPProbe("://bad", time.Second)
	if p.Check(context.Background()) {
		t.Error("Check() = true для некорректного URL")
	}
}
