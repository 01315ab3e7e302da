package services

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// isValidID reports whether id is a record identifier in canonical
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx form.
func isValidID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
