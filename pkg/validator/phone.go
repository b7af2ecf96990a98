package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the number is not a 9-digit Kenyan subscriber number
	ErrInvalidLength = errors.New("phone number must have 9 digits after the 0 or 254 prefix")

	// ErrInvalidPrefix indicates the number is not a Kenyan mobile number
	ErrInvalidPrefix = errors.New("phone number must be a Kenyan mobile number starting with 07 or 01")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// countryCode is Kenya's international dialling code
const countryCode = "254"

// validPrefixes are the Kenyan mobile ranges, as the first two subscriber digits
var validPrefixes = []string{
	"70", "71", "72", "73", "74", "75", "76", "77", "78", "79",
	"10", "11",
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a Kenyan mobile number.
// Accepts 0712345678, 712345678, 254712345678, +254 712 345 678 and similar.
// Returns the MSISDN form used by M-Pesa (254XXXXXXXXX).
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if phone == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	var subscriber string
	switch {
	case strings.HasPrefix(sanitized, countryCode):
		subscriber = sanitized[len(countryCode):]
	case strings.HasPrefix(sanitized, "0"):
		subscriber = sanitized[1:]
	default:
		subscriber = sanitized
	}

	if len(subscriber) != 9 {
		return "", ErrInvalidLength
	}
	if !v.IsValidPrefix(subscriber) {
		return "", ErrInvalidPrefix
	}

	return countryCode + subscriber, nil
}

// Sanitize removes all common separators from a phone number
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	return replacer.Replace(strings.TrimSpace(phone))
}

// IsValidPrefix checks if a 9-digit subscriber number is in a Kenyan mobile range
func (v *PhoneValidator) IsValidPrefix(subscriber string) bool {
	if len(subscriber) < 2 {
		return false
	}

	prefix := subscriber[:2]
	for _, validPrefix := range validPrefixes {
		if prefix == validPrefix {
			return true
		}
	}

	return false
}

// Format formats a phone number for display: +254 7XX XXX XXX
func (v *PhoneValidator) Format(phone string) (string, error) {
	msisdn, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("+%s %s %s %s",
		msisdn[0:3],
		msisdn[3:6],
		msisdn[6:9],
		msisdn[9:12],
	), nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
