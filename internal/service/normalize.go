package service

import (
	"net/http"
	"regexp"
	"strings"

	"go-auth-core/pkg/apierror"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone string) string {
	return strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
}

// normalizeIdentifier prepares a login identifier, which may be an email
// or a phone number.
func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return strings.ReplaceAll(identifier, " ", "")
}

func validateRegistration(email string, phone string, name string, pass string) error {
	if email == "" && phone == "" {
		return validationError("email or phone is required")
	}
	if email != "" && !emailPattern.MatchString(email) {
		return validationError("email is malformed")
	}
	if phone != "" && !phonePattern.MatchString(phone) {
		return validationError("phone is malformed")
	}
	if name == "" {
		return validationError("name is required")
	}
	if len(pass) < 8 {
		return validationError("password must be at least 8 characters")
	}
	if len(pass) > 256 {
		return validationError("password is too long")
	}
	return nil
}

func validationError(details string) error {
	return apierror.New("VALIDATION_ERROR", "invalid registration input", details, http.StatusBadRequest)
}
