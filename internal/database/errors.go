package database

import (
	"errors"

	"gamelend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes raised when concurrent writers collide.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// MapError converts driver errors into application errors. Errors that
// already carry an AppError code pass through unchanged.
func MapError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, "requested")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return &models.AppError{
				Code:    models.CodeConflict,
				Message: "concurrent update, please retry",
				Err:     err,
			}
		case pgUniqueViolation:
			return &models.AppError{
				Code:    models.CodeConflict,
				Message: resource + " already exists",
				Err:     err,
			}
		}
	}

	return models.NewInternalError(err)
}
