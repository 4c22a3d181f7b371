package persistence

import (
	"errors"

	"github.com/edubill/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps gorm errors onto the domain taxonomy. Requires
// gorm.Config.TranslateError so driver unique violations surface as
// gorm.ErrDuplicatedKey.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	}
	return err
}
