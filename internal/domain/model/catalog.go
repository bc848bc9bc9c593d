package model

import "time"

// Supplier — поставщик.
type Supplier struct {
	// ID — UUID записи
	ID string
	// CompanyName — наименование компании
	CompanyName string
	// CNPJ — регистрационный номер юрлица, уникален
	CNPJ string
	// Address — адрес
	Address string
	// Phone — телефон
	Phone string
	// Email — адрес электронной почты
	Email string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// Contact — контактное лицо поставщика.
type Contact struct {
	ID           string
	Name         string
	SupplierName string
	Phone        string
	Email        string
	CreatedAt    time.Time
}

// Product — товар из каталога.
type Product struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}
