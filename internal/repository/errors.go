package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Ошибки, которые поднимают хранимые функции кошельков через RAISE EXCEPTION.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientLocked    = errors.New("insufficient locked funds")
	ErrAlreadyPaid           = errors.New("milestone already paid")
	ErrInvalidMilestoneState = errors.New("invalid milestone state")
	ErrInvoiceNotApproved    = errors.New("invoice not approved")
	ErrInvalidAmount         = errors.New("invalid amount")
)

var (
	// ErrDuplicate нарушен уникальный индекс.
	ErrDuplicate = errors.New("duplicate entity")
	// ErrStateConflict запись уже не в том статусе, в котором её прочитали.
	ErrStateConflict = errors.New("entity state changed concurrently")
)

const (
	uniqueViolationCode = pq.ErrorCode("23505")
	raiseExceptionCode  = pq.ErrorCode("P0001")
)

var functionErrors = map[string]error{
	"insufficient_funds":        ErrInsufficientFunds,
	"insufficient_locked_funds": ErrInsufficientLocked,
	"already_paid":              ErrAlreadyPaid,
	"invalid_milestone_state":   ErrInvalidMilestoneState,
	"invoice_not_approved":      ErrInvoiceNotApproved,
	"invalid_amount":            ErrInvalidAmount,
	"milestone_not_found":       ErrMilestoneNotFound,
	"project_not_found":         ErrProjectNotFound,
	"transaction_not_found":     ErrTransactionNotFound,
}

// mapFunctionError переводит исключение хранимой функции в sentinel ошибку.
func mapFunctionError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != raiseExceptionCode {
		return err
	}
	if mapped, ok := functionErrors[pqErr.Message]; ok {
		return mapped
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode
}

// checkAffected возвращает notFound, если запрос не затронул ни одной строки.
func checkAffected(res interface{ RowsAffected() (int64, error) }, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
