package subscription

import (
	"strings"

	"github.com/google/uuid"
)

// NewConfirmationCode returns a random opaque confirmation code of 32 hex
// characters, the width of the storefront's subscriber_confirm_code column.
func NewConfirmationCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
