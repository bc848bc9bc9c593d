package handlers

import (
	"context"
	"log/slog"
	"os"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/service"
	"github.com/bigkaa/acme-procurement/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCollaborators записывает аргументы и возвращает заданный результат.
type fakeCollaborators struct {
	c     *model.Collaborator
	items []*model.Collaborator
	total int
	err   error

	gotReg     service.Registration
	gotProfile model.CollaboratorProfile
	gotActor   string
	gotID      string
	gotBlocked bool
	gotRole    string
	gotEmail   string
}

func (f *fakeCollaborators) Register(_ context.Context, r service.Registration) (*model.Collaborator, error) {
	f.gotReg = r
	return f.c, f.err
}

func (f *fakeCollaborators) Get(_ context.Context, id string) (*model.Collaborator, error) {
	f.gotID = id
	return f.c, f.err
}

func (f *fakeCollaborators) List(_ context.Context, _, _ int) ([]*model.Collaborator, int, error) {
	return f.items, f.total, f.err
}

func (f *fakeCollaborators) UpdateProfile(_ context.Context, id string, p model.CollaboratorProfile) (*model.Collaborator, error) {
	f.gotID, f.gotProfile = id, p
	return f.c, f.err
}

func (f *fakeCollaborators) SetBlocked(_ context.Context, actorID, id string, blocked bool) (*model.Collaborator, error) {
	f.gotActor, f.gotID, f.gotBlocked = actorID, id, blocked
	return f.c, f.err
}

func (f *fakeCollaborators) SetRole(_ context.Context, actorID, id, role string) (*model.Collaborator, error) {
	f.gotActor, f.gotID, f.gotRole = actorID, id, role
	return f.c, f.err
}

func (f *fakeCollaborators) RequestPasswordReset(_ context.Context, email string) error {
	f.gotEmail = email
	return f.err
}

// fakeCatalog — каталог в памяти с одной ошибкой на все операции.
type fakeCatalog struct {
	suppliers map[string]*model.Supplier
	err       error
	deleted   []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{suppliers: make(map[string]*model.Supplier)}
}

func (f *fakeCatalog) CreateSupplier(_ context.Context, s *model.Supplier) error {
	if f.err != nil {
		return f.err
	}
	s.ID = "6f1c2c1e-3b4a-4c55-9d59-0e6f5a1d2b3c"
	f.suppliers[s.ID] = s
	return nil
}

func (f *fakeCatalog) GetSupplier(_ context.Context, id string) (*model.Supplier, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.suppliers[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return s, nil
}

func (f *fakeCatalog) ListSuppliers(_ context.Context, _, _ int) ([]*model.Supplier, error) {
	out := make([]*model.Supplier, 0, len(f.suppliers))
	for _, s := range f.suppliers {
		out = append(out, s)
	}
	return out, f.err
}

func (f *fakeCatalog) UpdateSupplier(_ context.Context, s *model.Supplier) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.suppliers[s.ID]; !ok {
		return service.ErrNotFound
	}
	f.suppliers[s.ID] = s
	return nil
}

func (f *fakeCatalog) DeleteSupplier(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeCatalog) CreateContact(_ context.Context, c *model.Contact) error {
	c.ID = "c0ffee00-0000-4000-8000-000000000001"
	return f.err
}

func (f *fakeCatalog) ListContacts(_ context.Context, _, _ int) ([]*model.Contact, error) {
	return nil, f.err
}

func (f *fakeCatalog) DeleteContact(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeCatalog) CreateProduct(_ context.Context, p *model.Product) error {
	p.ID = "c0ffee00-0000-4000-8000-000000000002"
	return f.err
}

func (f *fakeCatalog) ListProducts(_ context.Context, _, _ int) ([]*model.Product, error) {
	return []*model.Product{{ID: "p1", Name: "Papel A4"}}, f.err
}

func (f *fakeCatalog) DeleteProduct(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

// fakeRequisitions записывает аргументы вызовов.
type fakeRequisitions struct {
	r     *model.Requisition
	items []*model.Requisition
	q     *model.Quotation
	err   error

	gotCollaborator string
	gotID           string
	gotInput        service.RequisitionInput
	gotStatus       string
	gotQuotation    service.QuotationInput
}

func (f *fakeRequisitions) Submit(_ context.Context, collaboratorID string, in service.RequisitionInput) (*model.Requisition, error) {
	f.gotCollaborator, f.gotInput = collaboratorID, in
	return f.r, f.err
}

func (f *fakeRequisitions) UpdateOwn(_ context.Context, collaboratorID, id string, in service.RequisitionInput) (*model.Requisition, error) {
	f.gotCollaborator, f.gotID, f.gotInput = collaboratorID, id, in
	return f.r, f.err
}

func (f *fakeRequisitions) ListOwn(_ context.Context, collaboratorID string) ([]*model.Requisition, error) {
	f.gotCollaborator = collaboratorID
	return f.items, f.err
}

func (f *fakeRequisitions) DeleteOwn(_ context.Context, collaboratorID, id string) error {
	f.gotCollaborator, f.gotID = collaboratorID, id
	return f.err
}

func (f *fakeRequisitions) List(_ context.Context, status string, _, _ int) ([]*model.Requisition, error) {
	f.gotStatus = status
	return f.items, f.err
}

func (f *fakeRequisitions) SetStatus(_ context.Context, id, status string) (*model.Requisition, error) {
	f.gotID, f.gotStatus = id, status
	return f.r, f.err
}

func (f *fakeRequisitions) Delete(_ context.Context, id string) error {
	f.gotID = id
	return f.err
}

func (f *fakeRequisitions) ListQuotations(_ context.Context, _, _ int) ([]*model.Quotation, error) {
	return nil, f.err
}

func (f *fakeRequisitions) ListQuotationsFor(_ context.Context, requisitionID string) ([]*model.Quotation, error) {
	f.gotID = requisitionID
	return nil, f.err
}

func (f *fakeRequisitions) AddQuotation(_ context.Context, requisitionID string, in service.QuotationInput) (*model.Quotation, error) {
	f.gotID, f.gotQuotation = requisitionID, in
	return f.q, f.err
}

type fakeHome struct {
	summary *model.HomeSummary
	items   []*model.Requisition
	gotID   string
}

func (f *fakeHome) AdminSummary(context.Context) (*model.HomeSummary, error) {
	return f.summary, nil
}

func (f *fakeHome) CollaboratorRequisitions(_ context.Context, collaboratorID string) ([]*model.Requisition, error) {
	f.gotID = collaboratorID
	return f.items, nil
}

// fakeRoles — хранилище записей ролей в памяти.
type fakeRoles struct {
	records map[string]session.RoleRecord
	err     error
}

func (f *fakeRoles) Get(_ context.Context, identity string) (*session.RoleRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[identity]
	if !ok {
		return nil, session.ErrRoleNotFound
	}
	return &rec, nil
}
