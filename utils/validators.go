package utils

import (
	"regexp"
	"strings"
)

var (
	nameRegex  = regexp.MustCompile(`^[a-zA-ZÀ-ỹ\s]{2,20}$`)
	phoneRegex = regexp.MustCompile(`^(?:\+84|0)(?:3|5|7|8|9)\d{8}$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// FieldError describes one invalid contact field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateContact checks the visitor's contact details before a chat starts.
// fullName is required; phone and email are checked only when present.
func ValidateContact(fullName, phone, email string) []FieldError {
	var errs []FieldError

	name := strings.TrimSpace(fullName)
	switch {
	case name == "":
		errs = append(errs, FieldError{Field: "fullName", Message: "Full name is required"})
	case !nameRegex.MatchString(name):
		errs = append(errs, FieldError{Field: "fullName", Message: "Full name must be 2-20 letters or spaces"})
	}

	if phone = strings.TrimSpace(phone); phone != "" && !phoneRegex.MatchString(phone) {
		errs = append(errs, FieldError{Field: "phone", Message: "Phone must be a Vietnamese mobile number"})
	}

	if email = strings.TrimSpace(email); email != "" && !emailRegex.MatchString(email) {
		errs = append(errs, FieldError{Field: "email", Message: "Email is not a valid address"})
	}

	return errs
}
