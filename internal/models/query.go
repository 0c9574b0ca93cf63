package models

import (
	"strconv"

	"github.com/go-playground/validator/v10"
)

// TransactionQuery is the validated filter for listing a user's transactions.
type TransactionQuery struct {
	UserId    string            `validate:"required"`
	Page      int               `form:"page" validate:"min=1"`
	Limit     int               `form:"limit" validate:"min=1"`
	SortBy    string            `form:"sortBy" validate:"oneof=createdAt amount type status"`
	SortOrder string            `form:"sortOrder" validate:"oneof=asc desc"`
	Type      TransactionType   `form:"type" validate:"omitempty,oneof=deposit withdrawal lock unlock order bonus"`
	Status    TransactionStatus `form:"status" validate:"omitempty,oneof=pending completed failed"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxPage keeps (Page-1)*Limit far from int overflow.
	MaxPage = 1_000_000
)

// ApplyDefaults fills unset paging and sort fields.
func (q *TransactionQuery) ApplyDefaults() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.SortBy == "" {
		q.SortBy = "createdAt"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

func (q *TransactionQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ValidateTransactionQuery bounds paging. Register it with
// validator.RegisterStructValidation for TransactionQuery.
func ValidateTransactionQuery(sl validator.StructLevel) {
	q := sl.Current().Interface().(TransactionQuery)
	if q.Limit > MaxPageLimit {
		sl.ReportError(q.Limit, "Limit", "Limit", "max", strconv.Itoa(MaxPageLimit))
	}
	if q.Page > MaxPage {
		sl.ReportError(q.Page, "Page", "Page", "max", strconv.Itoa(MaxPage))
	}
}
