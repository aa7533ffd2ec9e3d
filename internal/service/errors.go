package service

import (
	"errors"

	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

var notFoundErrors = map[error]string{
	repository.ErrUserNotFound:          "пользователь не найден",
	repository.ErrProjectNotFound:       "проект не найден",
	repository.ErrProposalNotFound:      "предложение не найдено",
	repository.ErrInvitationNotFound:    "приглашение не найдено",
	repository.ErrContractNotFound:      "договор не найден",
	repository.ErrMilestoneNotFound:     "этап не найден",
	repository.ErrInvoiceNotFound:       "счёт не найден",
	repository.ErrTransactionNotFound:   "транзакция не найдена",
	repository.ErrConversationNotFound:  "переписка не найдена",
	repository.ErrNotificationNotFound:  "уведомление не найдено",
	repository.ErrMediaNotFound:         "файл не найден",
	repository.ErrPortfolioItemNotFound: "работа в портфолио не найдена",
	repository.ErrSessionNotFound:       "сессия не найдена",
}

var conflictErrors = map[error]string{
	repository.ErrAlreadyPaid:           "этап уже оплачен",
	repository.ErrInvalidMilestoneState: "этап находится в неподходящем статусе",
	repository.ErrInvoiceNotApproved:    "счёт ещё не утверждён клиентом",
	repository.ErrInsufficientLocked:    "в escrow недостаточно заблокированных средств",
	repository.ErrDuplicate:             "запись уже существует",
	repository.ErrStateConflict:         "статус изменился, обновите данные и повторите",
}

// translate переводит ошибку репозитория в AppError. AppError пропускается как есть.
func translate(err error, internalMsg string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}

	for sentinel, msg := range notFoundErrors {
		if errors.Is(err, sentinel) {
			return apperror.Wrap(err, apperror.ErrCodeNotFound, msg)
		}
	}
	for sentinel, msg := range conflictErrors {
		if errors.Is(err, sentinel) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, msg)
		}
	}

	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds
	case errors.Is(err, repository.ErrInvalidAmount):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "некорректная сумма")
	}

	return apperror.Internal(err, internalMsg)
}

// validationError оборачивает ошибку пакета validation.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	return apperror.Validation(err.Error())
}
