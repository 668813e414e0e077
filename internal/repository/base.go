package repository

import (
	"errors"

	"gamelend/internal/database"
	"gamelend/internal/models"

	"gorm.io/gorm"
)

func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return database.MapError(err, resource)
}
