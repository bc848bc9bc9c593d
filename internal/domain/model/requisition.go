package model

import "time"

// Состояние заявки в процессе закупки.
const (
	// RequisitionStatePending — заявка ожидает обработки.
	RequisitionStatePending = "Pendente"
)

// RequisitionStatus — решение администратора по заявке.
type RequisitionStatus string

// Допустимые решения.
const (
	RequisitionPending  RequisitionStatus = "pendente"
	RequisitionApproved RequisitionStatus = "aprovado"
	RequisitionRejected RequisitionStatus = "rejeitado"
)

// IsValid проверяет допустимость статуса.
func (s RequisitionStatus) IsValid() bool {
	switch s {
	case RequisitionPending, RequisitionApproved, RequisitionRejected:
		return true
	}
	return false
}

// Label — подпись статуса для отображения. Ожидающая заявка показывается как «A esperar».
func (s RequisitionStatus) Label() string {
	switch s {
	case RequisitionPending:
		return "A esperar"
	case RequisitionApproved:
		return "Aprovado"
	case RequisitionRejected:
		return "Rejeitado"
	}
	return string(s)
}

// Requisition — заявка сотрудника на закупку товара.
type Requisition struct {
	// ID — UUID заявки
	ID string
	// CollaboratorID — автор заявки (Keycloak user ID)
	CollaboratorID string
	// CollaboratorName — имя автора на момент создания
	CollaboratorName string
	// ProductName — наименование товара
	ProductName string
	// Description — описание
	Description string
	// Brand — марка
	Brand string
	// Quantity — количество, > 0
	Quantity int
	// State — состояние процесса (Pendente)
	State string
	// Status — решение администратора
	Status RequisitionStatus
	// RequestedAt — время подачи
	RequestedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// Quotation — котировка поставщика по заявке.
type Quotation struct {
	ID            string
	RequisitionID string
	CompanyName   string
	EmployeeName  string
	Price         float64
	Product       string
	Contact       string
	CreatedAt     time.Time
}

// HomeSummary — сводка главного экрана администратора.
type HomeSummary struct {
	Products            int
	Quotations          int
	PendingRequisitions int
}
