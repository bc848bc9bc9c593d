// resolver.go — Session Resolver: единственный владелец текущей сессии процесса.
//
// Resolver подписывается на уведомления провайдера идентификации и на каждое
// уведомление с identity запрашивает запись роли. Каждое уведомление увеличивает
// номер поколения; результат запроса применяется, только если его поколение
// всё ещё текущее. Результаты устаревших запросов отбрасываются.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/acme-procurement/internal/notify"
)

// BlockedPolicy — что делать с токеном заблокированного пользователя.
type BlockedPolicy int

const (
	// BlockedKeepToken — токен сохраняется до следующего запуска или выхода.
	BlockedKeepToken BlockedPolicy = iota
	// BlockedRevokeToken — токен аннулируется сразу (нужен SessionRevoker).
	BlockedRevokeToken
)

// String возвращает имя политики (используется в конфигурации).
func (p BlockedPolicy) String() string {
	if p == BlockedRevokeToken {
		return "revoke"
	}
	return "keep"
}

// ParseBlockedPolicy разбирает значение из конфигурации: "keep" или "revoke".
func ParseBlockedPolicy(s string) (BlockedPolicy, error) {
	switch s {
	case "", "keep":
		return BlockedKeepToken, nil
	case "revoke":
		return BlockedRevokeToken, nil
	default:
		return BlockedKeepToken, fmt.Errorf("неизвестная политика блокировки: %q (допустимо: keep, revoke)", s)
	}
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithRetry задаёт число повторов запроса роли при сбое хранилища и паузу между ними.
// По умолчанию повторов нет: сессия остаётся прежней, ошибка отдаётся наружу.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *Resolver) {
		if attempts < 0 {
			attempts = 0
		}
		r.retries = attempts
		r.backoff = backoff
	}
}

// WithFetchTimeout ограничивает время одного запроса роли. 0 — без ограничения.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.fetchTimeout = d
	}
}

// WithBlockedPolicy задаёт политику для токена заблокированного пользователя.
func WithBlockedPolicy(p BlockedPolicy) Option {
	return func(r *Resolver) {
		r.blockedPolicy = p
	}
}

// WithErrorHandler задаёт обработчик ошибок запроса роли.
// Вызывается только для ошибок текущего поколения.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Resolver) {
		r.onError = fn
	}
}

// Resolver — Session Resolver.
type Resolver struct {
	auth   AuthProvider
	store  RoleStore
	logger *slog.Logger

	retries       int
	backoff       time.Duration
	fetchTimeout  time.Duration
	blockedPolicy BlockedPolicy
	onError       func(error)

	dispatch *notify.Dispatcher[Session]

	mu          sync.Mutex
	current     Session
	identity    string
	notified    bool
	gen         uint64
	lastErr     error
	started     bool
	closed      bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewResolver создаёт Resolver в состоянии Unresolved.
func NewResolver(auth AuthProvider, store RoleStore, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		auth:     auth,
		store:    store,
		logger:   logger.With(slog.String("component", "session_resolver")),
		dispatch: notify.New[Session](),
		current:  Unresolved(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start переводит сессию в Unresolved и подписывается на провайдер идентификации.
// ctx ограничивает время жизни фоновых запросов роли.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrResolverClosed
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.current = Unresolved()
	r.mu.Unlock()

	r.dispatch.Start()

	// Провайдер может доставить текущее состояние синхронно внутри Subscribe,
	// поэтому подписка выполняется без удержания mu.
	unsubscribe := r.auth.Subscribe(r.handleIdentity)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsubscribe()
		return ErrResolverClosed
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	r.logger.Info("Резолвер сессии запущен",
		slog.Int("retries", r.retries),
		slog.String("fetch_timeout", r.fetchTimeout.String()),
		slog.String("blocked_policy", r.blockedPolicy.String()),
	)
	return nil
}

// Close отписывается от провайдера, отменяет запросы роли, доставляет
// накопленные уведомления и останавливает рассылку.
// Нельзя вызывать из подписчика OnChange.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	cancel := r.cancel
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.dispatch.Stop()

	r.logger.Info("Резолвер сессии остановлен")
}

// Current возвращает текущую сессию.
func (r *Resolver) Current() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// LastError возвращает последнюю ошибку запроса роли текущего поколения
// или nil, если последний запрос был успешным.
func (r *Resolver) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// OnChange подписывает listener на каждый переход сессии.
// Переходы доставляются по порядку, из отдельной горутины.
func (r *Resolver) OnChange(listener Listener) (unsubscribe func()) {
	return r.dispatch.Subscribe(listener)
}

// SignIn открывает сессию у провайдера. Сессия меняется по уведомлению
// провайдера, а не по результату этого вызова.
func (r *Resolver) SignIn(ctx context.Context, cred Credential) (string, error) {
	if r.isClosed() {
		return "", ErrResolverClosed
	}
	identity, err := r.auth.SignIn(ctx, cred)
	if err != nil {
		r.logger.Warn("Вход не выполнен",
			slog.String("email", cred.Email),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	r.logger.Info("Вход выполнен", slog.String("identity", identity))
	return identity, nil
}

// SignOut закрывает сессию у провайдера.
func (r *Resolver) SignOut(ctx context.Context) error {
	if r.isClosed() {
		return ErrResolverClosed
	}
	if err := r.auth.SignOut(ctx); err != nil {
		r.logger.Warn("Ошибка выхода", slog.String("error", err.Error()))
		return err
	}
	r.logger.Info("Выход выполнен")
	return nil
}

// Refresh повторно запрашивает запись роли для текущего identity в новом
// поколении и возвращает ошибку запроса. До первого уведомления провайдера
// ничего не делает.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrResolverClosed
	}
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if !r.notified {
		r.mu.Unlock()
		return nil
	}
	r.gen++
	gen := r.gen
	identity := r.identity
	if identity == "" {
		r.lastErr = nil
		r.setLocked(Anonymous())
		r.mu.Unlock()
		return nil
	}
	r.wg.Add(1)
	rctx := r.ctx
	r.mu.Unlock()
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(rctx, cancel)
	defer stop()

	r.logger.Debug("Обновление сессии по запросу", slog.String("identity", identity))
	return r.resolve(ctx, gen, identity)
}

// handleIdentity — обработчик уведомлений провайдера.
func (r *Resolver) handleIdentity(identity string) {
	r.mu.Lock()
	if r.closed || !r.started {
		r.mu.Unlock()
		return
	}
	r.gen++
	gen := r.gen
	r.identity = identity
	r.notified = true

	r.logger.Debug("Уведомление провайдера",
		slog.String("identity", identity),
		slog.Uint64("generation", gen),
	)

	if identity == "" {
		r.lastErr = nil
		r.setLocked(Anonymous())
		r.mu.Unlock()
		return
	}

	// Сессия другого пользователя не переживает смену identity: до ответа
	// хранилища (или при его сбое) новый пользователь видит загрузку.
	if r.current.Identity != "" && r.current.Identity != identity {
		r.setLocked(Unresolved())
	}

	r.wg.Add(1)
	ctx := r.ctx
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_ = r.resolve(ctx, gen, identity)
	}()
}

// resolve запрашивает запись роли и применяет результат, если поколение gen
// всё ещё текущее. Возвращает ошибку хранилища (и для устаревшего поколения).
func (r *Resolver) resolve(ctx context.Context, gen uint64, identity string) error {
	rec, err := r.fetch(ctx, gen, identity)

	var next Session
	switch {
	case errors.Is(err, ErrRoleNotFound):
		r.logger.Info("Запись роли не найдена, пользователь не подготовлен",
			slog.String("identity", identity),
		)
		next = Anonymous()
	case err != nil:
		r.reportError(gen, identity, err)
		return err
	default:
		next = FromRecord(identity, rec)
	}

	r.mu.Lock()
	if gen != r.gen || r.closed {
		r.mu.Unlock()
		r.logger.Debug("Устаревший результат отброшен",
			slog.String("identity", identity),
			slog.Uint64("generation", gen),
		)
		return nil
	}
	r.lastErr = nil
	r.setLocked(next)
	r.mu.Unlock()

	if next.Status == StatusBlocked && r.blockedPolicy == BlockedRevokeToken {
		r.revoke(ctx, identity)
	}
	return nil
}

// fetch выполняет запрос роли с повторами. Повторы прекращаются, если
// поколение устарело, контекст отменён или записи нет.
func (r *Resolver) fetch(ctx context.Context, gen uint64, identity string) (*RoleRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			if !r.isCurrent(gen) {
				return nil, lastErr
			}
			r.logger.Debug("Повтор запроса роли",
				slog.String("identity", identity),
				slog.Int("attempt", attempt),
			)
			if err := sleepCtx(ctx, r.backoff); err != nil {
				return nil, lastErr
			}
		}

		rec, err := r.fetchOnce(ctx, identity)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrRoleNotFound) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *Resolver) fetchOnce(ctx context.Context, identity string) (*RoleRecord, error) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	rec, err := r.store.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) || errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if rec == nil {
		return nil, ErrRoleNotFound
	}
	return rec, nil
}

// reportError сохраняет ошибку и вызывает обработчик, если поколение текущее.
// Сессия не меняется.
func (r *Resolver) reportError(gen uint64, identity string, err error) {
	r.mu.Lock()
	if gen != r.gen || r.closed {
		r.mu.Unlock()
		return
	}
	r.lastErr = err
	current := r.current
	r.mu.Unlock()

	r.logger.Warn("Ошибка запроса роли, сессия не изменена",
		slog.String("identity", identity),
		slog.String("session", current.String()),
		slog.String("error", err.Error()),
	)
	if r.onError != nil {
		r.onError(err)
	}
}

func (r *Resolver) revoke(ctx context.Context, identity string) {
	revoker, ok := r.auth.(SessionRevoker)
	if !ok {
		r.logger.Warn("Провайдер не поддерживает аннулирование токена",
			slog.String("identity", identity),
		)
		return
	}
	if err := revoker.RevokeSession(ctx); err != nil {
		r.logger.Error("Ошибка аннулирования токена заблокированного пользователя",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Info("Токен заблокированного пользователя аннулирован",
		slog.String("identity", identity),
	)
}

// setLocked заменяет текущую сессию и публикует переход. Вызывается под mu,
// поэтому порядок публикаций совпадает с порядком переходов.
func (r *Resolver) setLocked(next Session) {
	if next == r.current {
		return
	}
	prev := r.current
	r.current = next
	r.dispatch.Publish(next)
	r.logger.Info("Сессия изменена",
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
	)
}

func (r *Resolver) isCurrent(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen == r.gen && !r.closed
}

func (r *Resolver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
