package validator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPhone indicates the phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidLength indicates the phone number is outside 7-15 digits
	ErrInvalidLength = errors.New("phone number must be between 7 and 15 digits")

	// ErrUnknownCountry indicates an unsupported country code
	ErrUnknownCountry = errors.New("unsupported country code")
)

// Country describes a supported dialing region.
type Country struct {
	Code    string // ISO code, e.g. "US"
	Name    string
	Prefix  string // dialing prefix, e.g. "+1"
	Example string // example national number for error messages
}

// countries lists the dialing regions the booking flow supports.
var countries = []Country{
	{Code: "US", Name: "United States", Prefix: "+1", Example: "5551234567"},
	{Code: "CO", Name: "Colombia", Prefix: "+57", Example: "3001234567"},
	{Code: "MX", Name: "Mexico", Prefix: "+52", Example: "5512345678"},
	{Code: "ES", Name: "Spain", Prefix: "+34", Example: "612345678"},
	{Code: "CA", Name: "Canada", Prefix: "+1", Example: "5551234567"},
	{Code: "BR", Name: "Brazil", Prefix: "+55", Example: "11987654321"},
	{Code: "AR", Name: "Argentina", Prefix: "+54", Example: "91123456789"},
	{Code: "CL", Name: "Chile", Prefix: "+56", Example: "912345678"},
	{Code: "PE", Name: "Peru", Prefix: "+51", Example: "912345678"},
}

// PhoneValidator handles phone number validation and normalization
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Sanitize strips every non-digit character from the phone number.
// Accepts formats like "555 123 4567", "(555) 123-4567" or "+1.5551234567".
func (v *PhoneValidator) Sanitize(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate validates a national phone number.
// Returns the sanitized number (digits only) and an error if invalid.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	if len(sanitized) < 7 || len(sanitized) > 15 {
		return "", ErrInvalidLength
	}

	return sanitized, nil
}

// CountryByCode returns the country for an ISO code, case-insensitively.
func (v *PhoneValidator) CountryByCode(code string) (Country, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// Countries returns the supported dialing regions in display order.
func (v *PhoneValidator) Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

// E164 builds the full international number for a sanitized national number
// and a supported country code, e.g. ("5551234567", "US") -> "+15551234567".
func (v *PhoneValidator) E164(phone, countryCode string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	country, ok := v.CountryByCode(countryCode)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCountry, countryCode)
	}

	return country.Prefix + sanitized, nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
