// Пакет shell — оболочка приложения: сводит сессию, набор доступных
// экранов и состояние сети в одно представление View.
//
// При каждой смене сессии набор экранов вычисляется заново через Route Gate;
// текущий экран сохраняется, только если он остался в наборе, иначе
// оболочка переходит на начальный экран набора. Пометка Offline
// накладывается поверх любого экрана и не меняет набор.
package shell

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/bigkaa/acme-procurement/internal/notify"
	"github.com/bigkaa/acme-procurement/internal/routegate"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// SessionSource — источник сессии (session.Resolver).
type SessionSource interface {
	Current() session.Session
	OnChange(listener session.Listener) (unsubscribe func())
}

// ConnectivitySource — источник состояния сети (connectivity.Monitor).
type ConnectivitySource interface {
	Current() bool
	OnChange(listener func(online bool)) (unsubscribe func())
}

// View — то, что оболочка показывает пользователю.
type View struct {
	Session session.Session
	Routes  routegate.RouteSet
	// Screen — открытый экран, всегда входит в Routes.
	Screen routegate.Screen
	// Offline — поверх экрана показывается пометка об отсутствии сети.
	Offline bool
}

// Equal сравнивает представления.
func (v View) Equal(other View) bool {
	return v.Session == other.Session &&
		v.Routes.Equal(other.Routes) &&
		v.Screen == other.Screen &&
		v.Offline == other.Offline
}

// App — оболочка приложения.
type App struct {
	sessions SessionSource
	network  ConnectivitySource
	logger   *slog.Logger
	dispatch *notify.Dispatcher[View]

	mu      sync.Mutex
	view    View
	unsubs  []func()
	started bool
	stopped bool
}

// New создаёт оболочку. До Start представление соответствует загрузке.
func New(sessions SessionSource, network ConnectivitySource, logger *slog.Logger) *App {
	initial := session.Unresolved()
	routes := routegate.Resolve(initial)
	return &App{
		sessions: sessions,
		network:  network,
		logger:   logger.With(slog.String("component", "shell")),
		dispatch: notify.New[View](),
		view: View{
			Session: initial,
			Routes:  routes,
			Screen:  routes.Initial,
		},
	}
}

// Start подписывается на источники и публикует начальное представление.
// Повторный вызов ничего не делает.
func (a *App) Start() {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	a.dispatch.Start()

	unsubSession := a.sessions.OnChange(a.handleSession)
	unsubNetwork := a.network.OnChange(a.handleNetwork)

	a.mu.Lock()
	a.unsubs = []func(){unsubSession, unsubNetwork}
	next := a.view
	next.Offline = !a.network.Current()
	a.applySessionLocked(&next, a.sessions.Current())
	a.view = next
	a.publishLocked()
	a.mu.Unlock()

	a.logView("Оболочка запущена", next)
}

// Stop отписывается от источников и доставляет накопленные представления.
// Нельзя вызывать из подписчика.
func (a *App) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	a.dispatch.Stop()
	a.logger.Info("Оболочка остановлена")
}

// Current возвращает текущее представление.
func (a *App) Current() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.view
	v.Routes.Screens = slices.Clone(v.Routes.Screens)
	return v
}

// Subscribe подписывает fn на каждое изменение представления.
func (a *App) Subscribe(fn func(View)) (unsubscribe func()) {
	return a.dispatch.Subscribe(fn)
}

// Navigate открывает экран. Недоступный экран не открывается:
// возвращается false, представление не меняется.
func (a *App) Navigate(screen routegate.Screen) bool {
	a.mu.Lock()
	if !a.view.Routes.Contains(screen) {
		current := a.view.Screen
		a.mu.Unlock()
		a.logger.Warn("Переход на недоступный экран отклонён",
			slog.String("screen", string(screen)),
			slog.String("current", string(current)),
		)
		return false
	}
	next := a.view
	next.Screen = screen
	changed := a.setLocked(next)
	a.mu.Unlock()

	if changed {
		a.logger.Debug("Переход на экран", slog.String("screen", string(screen)))
	}
	return true
}

func (a *App) handleSession(s session.Session) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	next := a.view
	a.applySessionLocked(&next, s)
	changed := a.setLocked(next)
	a.mu.Unlock()

	if changed {
		a.logView("Сессия изменилась", next)
	}
}

func (a *App) handleNetwork(online bool) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	next := a.view
	next.Offline = !online
	changed := a.setLocked(next)
	a.mu.Unlock()

	if !changed {
		return
	}
	if online {
		a.logger.Info("Сеть восстановлена", slog.String("screen", string(next.Screen)))
	} else {
		a.logger.Warn("Нет сети", slog.String("screen", string(next.Screen)))
	}
}

// applySessionLocked пересчитывает набор экранов для s. Открытый экран
// сохраняется, если он остался доступен тому же пользователю в том же статусе.
func (a *App) applySessionLocked(v *View, s session.Session) {
	routes := routegate.Resolve(s)
	screen := v.Screen
	if !routes.Contains(screen) || v.Session.Status != s.Status || v.Session.Identity != s.Identity {
		screen = routes.Initial
	}
	v.Session = s
	v.Routes = routes
	v.Screen = screen
}

// setLocked заменяет представление и публикует его, если оно изменилось.
func (a *App) setLocked(next View) bool {
	if next.Equal(a.view) {
		return false
	}
	a.view = next
	a.publishLocked()
	return true
}

// publishLocked публикует копию представления: подписчик не может
// изменить набор экранов оболочки.
func (a *App) publishLocked() {
	v := a.view
	v.Routes.Screens = slices.Clone(v.Routes.Screens)
	a.dispatch.Publish(v)
}

func (a *App) logView(msg string, v View) {
	a.logger.Info(msg,
		slog.String("session", v.Session.String()),
		slog.String("screen", string(v.Screen)),
		slog.Any("screens", v.Routes.Screens),
		slog.Bool("offline", v.Offline),
	)
}
