package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
)

const waitTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Фейковый провайдер идентификации ---

type fakeAuth struct {
	mu       sync.Mutex
	identity string
	subs     map[int]func(string)
	nextSub  int
	accounts map[string]string // email → identity
}

func newFakeAuth(identity string) *fakeAuth {
	return &fakeAuth{
		identity: identity,
		subs:     make(map[int]func(string)),
		accounts: map[string]string{
			"a@x.com": "u-admin",
			"c@x.com": "u-collab",
			"b@x.com": "u-blocked",
			"n@x.com": "u-new",
		},
	}
}

func (a *fakeAuth) Subscribe(fn func(string)) func() {
	a.mu.Lock()
	a.nextSub++
	id := a.nextSub
	a.subs[id] = fn
	current := a.identity
	a.mu.Unlock()

	fn(current)

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *fakeAuth) SignIn(_ context.Context, cred Credential) (string, error) {
	a.mu.Lock()
	identity, ok := a.accounts[cred.Email]
	a.mu.Unlock()
	if !ok || cred.Password != "pw" {
		return "", ErrInvalidCredential
	}
	a.emit(identity)
	return identity, nil
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.emit("")
	return nil
}

func (a *fakeAuth) emit(identity string) {
	a.mu.Lock()
	a.identity = identity
	subs := make([]func(string), 0, len(a.subs))
	for i := 1; i <= a.nextSub; i++ {
		if fn, ok := a.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(identity)
	}
}

func (a *fakeAuth) subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

// revokingAuth дополнительно поддерживает SessionRevoker.
type revokingAuth struct {
	*fakeAuth
	revokeMu sync.Mutex
	revoked  int
}

func (a *revokingAuth) RevokeSession(context.Context) error {
	a.revokeMu.Lock()
	a.revoked++
	a.revokeMu.Unlock()
	return nil
}

func (a *revokingAuth) revokedCount() int {
	a.revokeMu.Lock()
	defer a.revokeMu.Unlock()
	return a.revoked
}

// --- Фейковое хранилище ролей ---

type fetchResult struct {
	rec  *RoleRecord
	err  error
	gate chan struct{} // если не nil — ответ задерживается до закрытия
}

type fakeStore struct {
	mu        sync.Mutex
	results   map[string][]fetchResult // очередь ответов; последний повторяется
	calls     map[string]int
	completed map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results:   make(map[string][]fetchResult),
		calls:     make(map[string]int),
		completed: make(map[string]int),
	}
}

func (s *fakeStore) set(identity string, results ...fetchResult) {
	s.mu.Lock()
	s.results[identity] = results
	s.mu.Unlock()
}

func (s *fakeStore) Get(ctx context.Context, identity string) (*RoleRecord, error) {
	s.mu.Lock()
	s.calls[identity]++
	queue := s.results[identity]
	var res fetchResult
	switch len(queue) {
	case 0:
		res = fetchResult{err: ErrRoleNotFound}
	case 1:
		res = queue[0]
	default:
		res = queue[0]
		s.results[identity] = queue[1:]
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.completed[identity]++
		s.mu.Unlock()
	}()

	if res.gate != nil {
		select {
		case <-res.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res.rec, res.err
}

func (s *fakeStore) callCount(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[identity]
}

func (s *fakeStore) completedCount(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[identity]
}

// --- Запись переходов ---

type recorder struct {
	mu       sync.Mutex
	sessions []Session
}

func (r *recorder) listen(s Session) {
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("не дождались: %s", what)
}

func waitSession(t *testing.T, r *Resolver, want Session) {
	t.Helper()
	waitFor(t, "сессия "+want.String(), func() bool { return r.Current() == want })
}

func startResolver(t *testing.T, auth AuthProvider, store RoleStore, opts ...Option) *Resolver {
	t.Helper()
	r := NewResolver(auth, store, testLogger(), opts...)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

// --- Тесты ---

func TestResolver_NewIsUnresolved(t *testing.T) {
	r := NewResolver(newFakeAuth(""), newFakeStore(), testLogger())
	if got := r.Current(); got != Unresolved() {
		t.Errorf("Current() = %v, ожидалось unresolved", got)
	}
}

func TestResolver_NoIdentityIsAnonymous(t *testing.T) {
	store := newFakeStore()
	r := startResolver(t, newFakeAuth(""), store)

	// Переход в Anonymous синхронный: провайдер доставляет состояние при подписке.
	if got := r.Current(); got != Anonymous() {
		t.Errorf("Current() = %v, ожидалось anonymous", got)
	}
	if n := store.callCount(""); n != 0 {
		t.Errorf("запрос роли без identity выполнен %d раз", n)
	}
}

func TestResolver_SignInAdmin(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-admin", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}})
	r := startResolver(t, auth, store)

	identity, err := r.SignIn(context.Background(), Credential{Email: "a@x.com", Password: "pw"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if identity != "u-admin" {
		t.Errorf("identity = %q, ожидалось u-admin", identity)
	}

	waitSession(t, r, Session{Identity: "u-admin", Status: StatusActive, Role: rbac.RoleAdmin})
	if n := store.callCount("u-admin"); n != 1 {
		t.Errorf("запросов роли = %d, ожидался 1", n)
	}
}

func TestResolver_SignInBlocked(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-blocked", fetchResult{rec: &RoleRecord{Role: rbac.RoleCollaborator, IsBlocked: true}})
	r := startResolver(t, auth, store)

	if _, err := r.SignIn(context.Background(), Credential{Email: "b@x.com", Password: "pw"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	waitSession(t, r, Blocked("u-blocked"))
	if got := r.Current(); got.Role != rbac.RoleNone {
		t.Errorf("роль заблокированного пользователя раскрыта: %q", got.Role)
	}
}

func TestResolver_SignInNotProvisioned(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore() // для u-new записи нет
	rec := &recorder{}
	r := startResolver(t, auth, store)
	r.OnChange(rec.listen)

	if _, err := r.SignIn(context.Background(), Credential{Email: "n@x.com", Password: "pw"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	waitFor(t, "запрос роли завершён", func() bool { return store.completedCount("u-new") == 1 })
	if got := r.Current(); got != Anonymous() {
		t.Errorf("Current() = %v, ожидалось anonymous", got)
	}
	if err := r.LastError(); err != nil {
		t.Errorf("отсутствие записи не должно быть ошибкой: %v", err)
	}
}

func TestResolver_NilRecordIsNotFound(t *testing.T) {
	store := newFakeStore()
	store.set("u-1", fetchResult{rec: nil, err: nil})
	r := startResolver(t, newFakeAuth("u-1"), store)

	waitFor(t, "запрос роли завершён", func() bool { return store.completedCount("u-1") == 1 })
	waitSession(t, r, Anonymous())
}

func TestResolver_InvalidCredential(t *testing.T) {
	auth := newFakeAuth("")
	r := startResolver(t, auth, newFakeStore())

	_, err := r.SignIn(context.Background(), Credential{Email: "a@x.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("SignIn: ожидалась ErrInvalidCredential, получено %v", err)
	}
	if got := r.Current(); got != Anonymous() {
		t.Errorf("Current() = %v, ожидалось anonymous", got)
	}
}

func TestResolver_StoreFailureOnFirstLoad(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("connection refused")
	store.set("u-1", fetchResult{err: boom})

	var mu sync.Mutex
	var handled []error
	r := startResolver(t, newFakeAuth("u-1"), store, WithErrorHandler(func(err error) {
		mu.Lock()
		handled = append(handled, err)
		mu.Unlock()
	}))

	waitFor(t, "ошибка запроса роли", func() bool { return r.LastError() != nil })

	if got := r.Current(); got != Unresolved() {
		t.Errorf("Current() = %v, сессия должна остаться unresolved", got)
	}
	err := r.LastError()
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, boom) {
		t.Errorf("LastError() = %v, ожидалась обёртка ErrStoreUnavailable над исходной ошибкой", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 {
		t.Errorf("обработчик ошибок вызван %d раз, ожидался 1", len(handled))
	}
}

func TestResolver_StoreFailureKeepsPreviousSession(t *testing.T) {
	store := newFakeStore()
	store.set("u-admin",
		fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}},
		fetchResult{err: ErrStoreUnavailable},
	)
	r := startResolver(t, newFakeAuth("u-admin"), store)
	want := Active("u-admin", rbac.RoleAdmin)
	waitSession(t, r, want)

	err := r.Refresh(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Refresh: ожидалась ErrStoreUnavailable, получено %v", err)
	}
	if got := r.Current(); got != want {
		t.Errorf("Current() = %v, сессия не должна меняться при сбое", got)
	}
}

// Смена пользователя при сбое хранилища не оставляет права предыдущего.
func TestResolver_IdentitySwitchWithStoreFailure(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-admin", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}})
	store.set("u-collab", fetchResult{err: ErrStoreUnavailable})

	rec := &recorder{}
	r := startResolver(t, auth, store)
	r.OnChange(rec.listen)

	auth.emit("u-admin")
	waitSession(t, r, Active("u-admin", rbac.RoleAdmin))

	auth.emit("u-collab")
	waitFor(t, "ошибка запроса роли", func() bool { return r.LastError() != nil })

	if got := r.Current(); got != Unresolved() {
		t.Fatalf("Current() = %v, ожидалась unresolved после смены пользователя", got)
	}
	waitFor(t, "переход в unresolved опубликован", func() bool {
		got := rec.snapshot()
		return len(got) > 0 && got[len(got)-1] == Unresolved()
	})
}

// Повторное уведомление о том же пользователе сохраняет сессию при сбое.
func TestResolver_SameIdentityRenotifiedKeepsSession(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-admin",
		fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}},
		fetchResult{err: ErrStoreUnavailable},
	)
	r := startResolver(t, auth, store)

	auth.emit("u-admin")
	want := Active("u-admin", rbac.RoleAdmin)
	waitSession(t, r, want)

	auth.emit("u-admin")
	waitFor(t, "ошибка запроса роли", func() bool { return r.LastError() != nil })
	if got := r.Current(); got != want {
		t.Errorf("Current() = %v, ожидалось %v", got, want)
	}
}

// Уведомления N1, N2; запрос N2 завершается раньше N1 — сессия отражает N2.
func TestResolver_StaleResultRejected(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	gate := make(chan struct{})
	store.set("u-admin", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}, gate: gate})
	store.set("u-collab", fetchResult{rec: &RoleRecord{Role: rbac.RoleCollaborator}})

	rec := &recorder{}
	r := startResolver(t, auth, store)
	r.OnChange(rec.listen)

	auth.emit("u-admin")
	waitFor(t, "запрос N1 начат", func() bool { return store.callCount("u-admin") == 1 })
	auth.emit("u-collab")

	want := Active("u-collab", rbac.RoleCollaborator)
	waitSession(t, r, want)

	close(gate)
	waitFor(t, "запрос N1 завершён", func() bool { return store.completedCount("u-admin") == 1 })
	// Даём горутине N1 время применить результат, если бы проверка поколения не работала.
	time.Sleep(20 * time.Millisecond)

	if got := r.Current(); got != want {
		t.Errorf("Current() = %v, ожидалось %v (результат N1 должен быть отброшен)", got, want)
	}
	for _, s := range rec.snapshot() {
		if s.Identity == "u-admin" {
			t.Errorf("подписчик получил устаревшую сессию %v", s)
		}
	}
}

// Устаревшая ошибка не попадает в LastError.
func TestResolver_StaleErrorIgnored(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	gate := make(chan struct{})
	store.set("u-1", fetchResult{err: ErrStoreUnavailable, gate: gate})
	store.set("u-2", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}})

	r := startResolver(t, auth, store)

	auth.emit("u-1")
	waitFor(t, "запрос u-1 начат", func() bool { return store.callCount("u-1") == 1 })
	auth.emit("u-2")
	waitSession(t, r, Active("u-2", rbac.RoleAdmin))

	close(gate)
	waitFor(t, "запрос u-1 завершён", func() bool { return store.completedCount("u-1") == 1 })
	time.Sleep(20 * time.Millisecond)

	if err := r.LastError(); err != nil {
		t.Errorf("LastError() = %v, устаревшая ошибка должна быть отброшена", err)
	}
}

// Подписчики получают каждый переход по порядку, без схлопывания.
func TestResolver_ListenersReceiveEveryTransition(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-admin", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}})
	store.set("u-collab", fetchResult{rec: &RoleRecord{Role: rbac.RoleCollaborator}})

	r := NewResolver(auth, store, testLogger())
	first, second := &recorder{}, &recorder{}
	r.OnChange(first.listen)
	r.OnChange(second.listen)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx := context.Background()
	if _, err := r.SignIn(ctx, Credential{Email: "a@x.com", Password: "pw"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitSession(t, r, Active("u-admin", rbac.RoleAdmin))
	if err := r.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := r.SignIn(ctx, Credential{Email: "c@x.com", Password: "pw"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitSession(t, r, Active("u-collab", rbac.RoleCollaborator))

	// Close доставляет накопленные уведомления.
	r.Close()

	want := []Session{
		Anonymous(),
		Active("u-admin", rbac.RoleAdmin),
		Anonymous(),
		Active("u-collab", rbac.RoleCollaborator),
	}
	for name, got := range map[string][]Session{"first": first.snapshot(), "second": second.snapshot()} {
		if len(got) != len(want) {
			t.Fatalf("%s: получено %v, ожидалось %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %v, ожидалось %v", name, i, got[i], want[i])
			}
		}
	}
}

func TestResolver_ListenerMayCallBack(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-admin", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}})
	r := startResolver(t, auth, store)

	seen := make(chan Session, 4)
	r.OnChange(func(Session) {
		seen <- r.Current()
	})

	auth.emit("u-admin")

	select {
	case s := <-seen:
		if s != Active("u-admin", rbac.RoleAdmin) {
			t.Errorf("подписчик увидел %v", s)
		}
	case <-time.After(waitTimeout):
		t.Fatal("подписчик не вызван: возможна взаимоблокировка")
	}
}

func TestResolver_RetryRecovers(t *testing.T) {
	store := newFakeStore()
	store.set("u-1",
		fetchResult{err: ErrStoreUnavailable},
		fetchResult{err: ErrStoreUnavailable},
		fetchResult{rec: &RoleRecord{Role: rbac.RoleCollaborator}},
	)
	r := startResolver(t, newFakeAuth("u-1"), store, WithRetry(2, time.Millisecond))

	waitSession(t, r, Active("u-1", rbac.RoleCollaborator))
	if n := store.callCount("u-1"); n != 3 {
		t.Errorf("запросов роли = %d, ожидалось 3", n)
	}
	if err := r.LastError(); err != nil {
		t.Errorf("LastError() = %v, ожидался nil", err)
	}
}

func TestResolver_RetryStopsOnNotFound(t *testing.T) {
	store := newFakeStore() // записи нет
	r := startResolver(t, newFakeAuth("u-1"), store, WithRetry(5, time.Millisecond))

	waitSession(t, r, Anonymous())
	time.Sleep(20 * time.Millisecond)
	if n := store.callCount("u-1"); n != 1 {
		t.Errorf("запросов роли = %d, отсутствие записи не повторяется", n)
	}
}

func TestResolver_NoRetryByDefault(t *testing.T) {
	store := newFakeStore()
	store.set("u-1",
		fetchResult{err: ErrStoreUnavailable},
		fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}},
	)
	r := startResolver(t, newFakeAuth("u-1"), store)

	waitFor(t, "ошибка запроса роли", func() bool { return r.LastError() != nil })
	time.Sleep(20 * time.Millisecond)
	if n := store.callCount("u-1"); n != 1 {
		t.Fatalf("запросов роли = %d, без WithRetry повторов быть не должно", n)
	}
	if got := r.Current(); got != Unresolved() {
		t.Fatalf("Current() = %v, ожидалось unresolved", got)
	}

	// Повтор по запросу пользователя.
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := r.Current(); got != Active("u-1", rbac.RoleAdmin) {
		t.Errorf("Current() = %v после Refresh", got)
	}
	if err := r.LastError(); err != nil {
		t.Errorf("LastError() = %v после успешного Refresh", err)
	}
}

func TestResolver_FetchTimeout(t *testing.T) {
	store := newFakeStore()
	store.set("u-1", fetchResult{gate: make(chan struct{})}) // никогда не отвечает
	r := startResolver(t, newFakeAuth("u-1"), store, WithFetchTimeout(20*time.Millisecond))

	waitFor(t, "тайм-аут запроса роли", func() bool { return r.LastError() != nil })
	err := r.LastError()
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("LastError() = %v, ожидался тайм-аут, обёрнутый в ErrStoreUnavailable", err)
	}
	if got := r.Current(); got != Unresolved() {
		t.Errorf("Current() = %v, ожидалось unresolved", got)
	}
}

func TestResolver_BlockedPolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      BlockedPolicy
		wantRevoked int
	}{
		{"keep", BlockedKeepToken, 0},
		{"revoke", BlockedRevokeToken, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &revokingAuth{fakeAuth: newFakeAuth("u-blocked")}
			store := newFakeStore()
			store.set("u-blocked", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin, IsBlocked: true}})
			r := startResolver(t, auth, store, WithBlockedPolicy(tt.policy))

			waitSession(t, r, Blocked("u-blocked"))
			waitFor(t, "политика применена", func() bool { return auth.revokedCount() == tt.wantRevoked })
			time.Sleep(10 * time.Millisecond)

			if got := auth.revokedCount(); got != tt.wantRevoked {
				t.Errorf("RevokeSession вызван %d раз, ожидалось %d", got, tt.wantRevoked)
			}
			// Аннулирование токена не превращается в выход: экран блокировки остаётся.
			if got := r.Current(); got != Blocked("u-blocked") {
				t.Errorf("Current() = %v, ожидалось blocked", got)
			}
		})
	}
}

func TestResolver_RevokeWithoutRevoker(t *testing.T) {
	store := newFakeStore()
	store.set("u-blocked", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin, IsBlocked: true}})
	r := startResolver(t, newFakeAuth("u-blocked"), store, WithBlockedPolicy(BlockedRevokeToken))

	waitSession(t, r, Blocked("u-blocked"))
}

func TestResolver_CloseUnsubscribes(t *testing.T) {
	auth := newFakeAuth("")
	store := newFakeStore()
	store.set("u-admin", fetchResult{rec: &RoleRecord{Role: rbac.RoleAdmin}})

	r := NewResolver(auth, store, testLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := auth.subscribers(); n != 1 {
		t.Fatalf("подписок = %d, ожидалась 1", n)
	}

	r.Close()
	r.Close() // повторный вызов безопасен

	if n := auth.subscribers(); n != 0 {
		t.Errorf("после Close осталось подписок: %d", n)
	}
	auth.emit("u-admin")
	if got := r.Current(); got != Anonymous() {
		t.Errorf("Current() = %v, уведомления после Close не должны применяться", got)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("Start после Close: %v, ожидалась ErrResolverClosed", err)
	}
	if err := r.Refresh(context.Background()); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("Refresh после Close: %v, ожидалась ErrResolverClosed", err)
	}
	if _, err := r.SignIn(context.Background(), Credential{Email: "a@x.com", Password: "pw"}); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("SignIn после Close: %v, ожидалась ErrResolverClosed", err)
	}
}

func TestResolver_CloseCancelsInFlightFetch(t *testing.T) {
	store := newFakeStore()
	store.set("u-1", fetchResult{gate: make(chan struct{})})

	r := NewResolver(newFakeAuth("u-1"), store, testLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "запрос роли начат", func() bool { return store.callCount("u-1") == 1 })

	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Close не дождался отмены запроса роли")
	}
	if got := r.Current(); got != Unresolved() {
		t.Errorf("Current() = %v, ожидалось unresolved", got)
	}
}

func TestResolver_RefreshBeforeStart(t *testing.T) {
	r := NewResolver(newFakeAuth(""), newFakeStore(), testLogger())
	if err := r.Refresh(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Refresh до Start: %v, ожидалась ErrNotStarted", err)
	}
}

func TestResolver_RefreshPicksUpBlock(t *testing.T) {
	store := newFakeStore()
	store.set("u-1",
		fetchResult{rec: &RoleRecord{Role: rbac.RoleCollaborator}},
		fetchResult{rec: &RoleRecord{Role: rbac.RoleCollaborator, IsBlocked: true}},
	)
	r := startResolver(t, newFakeAuth("u-1"), store)
	waitSession(t, r, Active("u-1", rbac.RoleCollaborator))

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := r.Current(); got != Blocked("u-1") {
		t.Errorf("Current() = %v, ожидалось blocked", got)
	}
}

func TestParseBlockedPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    BlockedPolicy
		wantErr bool
	}{
		{"", BlockedKeepToken, false},
		{"keep", BlockedKeepToken, false},
		{"revoke", BlockedRevokeToken, false},
		{"drop", BlockedKeepToken, true},
	}
	for _, tt := range tests {
		got, err := ParseBlockedPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBlockedPolicy(%q) = (%v, %v)", tt.in, got, err)
		}
	}
}
