package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/keycloak"
	"github.com/bigkaa/acme-procurement/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Keycloak ---

type fakeIDP struct {
	mu        sync.Mutex
	users     map[string]keycloak.KeycloakUser
	nextID    int
	createErr error
	deleted   []string
	emails    []string
	findErr   error
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{users: make(map[string]keycloak.KeycloakUser)}
}

func (f *fakeIDP) CreateUser(_ context.Context, u keycloak.NewUser) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return "", keycloak.ErrUserExists
		}
	}
	f.nextID++
	id := "kc-" + strconv.Itoa(f.nextID)
	f.users[id] = keycloak.KeycloakUser{ID: id, Email: u.Email, FirstName: u.Name, Enabled: true}
	return id, nil
}

func (f *fakeIDP) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIDP) FindUserByEmail(_ context.Context, email string) (*keycloak.KeycloakUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, keycloak.ErrUserNotFound
}

func (f *fakeIDP) ExecuteActionsEmail(_ context.Context, id, _ string, actions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return keycloak.ErrUserNotFound
	}
	f.emails = append(f.emails, id+":"+strings.Join(actions, ","))
	return nil
}

// --- Кэш ролей ---

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(identity string) {
	f.invalidated = append(f.invalidated, identity)
}

// --- Сотрудники ---

type fakeCollaborators struct {
	mu        sync.Mutex
	items     map[string]*model.Collaborator
	createErr error
}

func newFakeCollaborators(cs ...*model.Collaborator) *fakeCollaborators {
	f := &fakeCollaborators{items: make(map[string]*model.Collaborator)}
	for _, c := range cs {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeCollaborators) Create(_ context.Context, c *model.Collaborator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.items[c.ID]; ok {
		return repository.ErrConflict
	}
	c.CreatedAt = time.Now()
	cp := *c
	f.items[c.ID] = &cp
	return nil
}

func (f *fakeCollaborators) GetByID(_ context.Context, id string) (*model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCollaborators) List(_ context.Context, limit, offset int) ([]*model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Collaborator
	for _, c := range f.items {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f *fakeCollaborators) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items), nil
}

func (f *fakeCollaborators) UpdateProfile(_ context.Context, id string, p model.CollaboratorProfile) (*model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCollaborators) SetBlocked(_ context.Context, id string, blocked bool) (*model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.IsBlocked = blocked
	cp := *c
	return &cp, nil
}

func (f *fakeCollaborators) SetRole(_ context.Context, id string, role rbac.Role) (*model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.Role = role
	cp := *c
	return &cp, nil
}

func (f *fakeCollaborators) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

// --- Заявки ---

type fakeRequisitions struct {
	mu    sync.Mutex
	items []*model.Requisition
}

func (f *fakeRequisitions) find(id string) (*model.Requisition, int) {
	for i, r := range f.items {
		if r.ID == id {
			return r, i
		}
	}
	return nil, -1
}

func (f *fakeRequisitions) Create(_ context.Context, r *model.Requisition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.RequestedAt = time.Now()
	cp := *r
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeRequisitions) GetByID(_ context.Context, id string) (*model.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, _ := f.find(id)
	if r == nil {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequisitions) List(_ context.Context, status *model.RequisitionStatus, _, _ int) ([]*model.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Requisition
	for _, r := range f.items {
		if status == nil || r.Status == *status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequisitions) ListByCollaborator(_ context.Context, collaboratorID string) ([]*model.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Requisition
	for _, r := range f.items {
		if r.CollaboratorID == collaboratorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequisitions) UpdateOwned(_ context.Context, r *model.Requisition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, _ := f.find(r.ID)
	if cur == nil || cur.CollaboratorID != r.CollaboratorID {
		return repository.ErrNotFound
	}
	cur.ProductName, cur.Description, cur.Brand, cur.Quantity = r.ProductName, r.Description, r.Brand, r.Quantity
	cur.State = model.RequisitionStatePending
	*r = *cur
	return nil
}

func (f *fakeRequisitions) UpdateStatus(_ context.Context, id string, status model.RequisitionStatus) (*model.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, _ := f.find(id)
	if cur == nil {
		return nil, repository.ErrNotFound
	}
	cur.Status = status
	cp := *cur
	return &cp, nil
}

func (f *fakeRequisitions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, i := f.find(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	f.items = slices.Delete(f.items, i, i+1)
	return nil
}

func (f *fakeRequisitions) DeleteOwned(_ context.Context, id, collaboratorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, i := f.find(id)
	if cur == nil || cur.CollaboratorID != collaboratorID {
		return repository.ErrNotFound
	}
	f.items = slices.Delete(f.items, i, i+1)
	return nil
}

func (f *fakeRequisitions) CountByStatus(_ context.Context, status model.RequisitionStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.items {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

// --- Котировки ---

type fakeQuotations struct {
	items []*model.Quotation
}

func (f *fakeQuotations) Create(_ context.Context, q *model.Quotation) error {
	cp := *q
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeQuotations) List(_ context.Context, _, _ int) ([]*model.Quotation, error) {
	return f.items, nil
}

func (f *fakeQuotations) ListByRequisition(_ context.Context, requisitionID string) ([]*model.Quotation, error) {
	var out []*model.Quotation
	for _, q := range f.items {
		if q.RequisitionID == requisitionID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuotations) Count(_ context.Context) (int, error) {
	return len(f.items), nil
}

// --- Справочники ---

type fakeContacts struct {
	items map[string]*model.Contact
}

func (f *fakeContacts) Create(_ context.Context, c *model.Contact) error {
	if f.items == nil {
		f.items = make(map[string]*model.Contact)
	}
	cp := *c
	f.items[c.ID] = &cp
	return nil
}

func (f *fakeContacts) GetByID(_ context.Context, id string) (*model.Contact, error) {
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeContacts) List(_ context.Context, _, _ int) ([]*model.Contact, error) {
	var out []*model.Contact
	for _, c := range f.items {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeContacts) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeSuppliers struct {
	items map[string]*model.Supplier
}

func (f *fakeSuppliers) Create(_ context.Context, s *model.Supplier) error {
	if f.items == nil {
		f.items = make(map[string]*model.Supplier)
	}
	for _, existing := range f.items {
		if existing.CNPJ == s.CNPJ {
			return repository.ErrConflict
		}
	}
	cp := *s
	f.items[s.ID] = &cp
	return nil
}

func (f *fakeSuppliers) GetByID(_ context.Context, id string) (*model.Supplier, error) {
	s, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeSuppliers) List(_ context.Context, _, _ int) ([]*model.Supplier, error) {
	var out []*model.Supplier
	for _, s := range f.items {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSuppliers) Update(_ context.Context, s *model.Supplier) error {
	if _, ok := f.items[s.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	f.items[s.ID] = &cp
	return nil
}

func (f *fakeSuppliers) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeProducts struct {
	items []*model.Product
}

func (f *fakeProducts) Create(_ context.Context, p *model.Product) error {
	cp := *p
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeProducts) List(_ context.Context, _, _ int) ([]*model.Product, error) {
	return f.items, nil
}

func (f *fakeProducts) Count(_ context.Context) (int, error) {
	return len(f.items), nil
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	for i, p := range f.items {
		if p.ID == id {
			f.items = slices.Delete(f.items, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

var errBoom = errors.New("boom")

func keycloakUser(email string) keycloak.NewUser {
	return keycloak.NewUser{Email: email, Name: email, Password: "x"}
}
