package models

// Package represents a consultation package offered for booking.
// Packages are owned by the availability provider and are read-only here.
type Package struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	SessionsCount int     `json:"sessionsCount"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	Duration      int     `json:"duration"`
	IsPopular     bool    `json:"isPopular,omitempty"`
	Featured      bool    `json:"featured,omitempty"`
}

// ScheduleSlot is a single bookable date/time unit. Slots are immutable
// within a wizard session; they are fetched once when the session opens.
type ScheduleSlot struct {
	ID          int    `json:"id"`
	Date        string `json:"date"` // ISO date, e.g. "2024-06-01"
	Time        string `json:"time"` // 24h "HH:MM"
	IsAvailable bool   `json:"isAvailable"`
	Capacity    *int   `json:"capacity,omitempty"`
	BookedCount *int   `json:"bookedCount,omitempty"`
}

// HasCapacity reports whether the slot can still accept a booking.
// Slots without an explicit capacity are treated as unbounded.
func (s ScheduleSlot) HasCapacity() bool {
	if !s.IsAvailable {
		return false
	}
	if s.Capacity == nil {
		return true
	}
	booked := 0
	if s.BookedCount != nil {
		booked = *s.BookedCount
	}
	return booked < *s.Capacity
}

// PaymentMethod is a payment option offered at the final wizard step.
type PaymentMethod struct {
	ID                   int    `json:"id"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	Type                 string `json:"type,omitempty"`
	Icon                 string `json:"icon,omitempty"`
	IsActive             bool   `json:"isActive,omitempty"`
	RequiresConfirmation bool   `json:"requiresConfirmation,omitempty"`
	AutoAssignPackage    bool   `json:"autoAssignPackage,omitempty"`
}

// BookingDraft is the in-progress booking accumulated across wizard steps.
// It lives only inside a wizard session and is never persisted: it is
// cleared by the explicit "book another" reset and discarded when the
// session expires.
type BookingDraft struct {
	PackageID       *int   `json:"packageId,omitempty"`
	ClientName      string `json:"clientName"`
	ClientEmail     string `json:"clientEmail"`
	ClientPhone     string `json:"clientPhone"`
	SelectedDate    string `json:"selectedDate"`
	SelectedTime    string `json:"selectedTime"`
	BirthDate       string `json:"birthDate"`
	BirthTime       string `json:"birthTime,omitempty"`
	BirthCity       string `json:"birthCity"`
	BirthPlace      string `json:"birthPlace,omitempty"`
	Message         string `json:"message,omitempty"`
	PaymentMethodID *int   `json:"paymentMethodId,omitempty"`
}

// UserData is the profile returned by the identity provider when a phone
// number matches an existing customer record.
type UserData struct {
	ID         string `json:"id,omitempty"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"fullName,omitempty"`
	Phone      string `json:"phone,omitempty"`
	BirthDate  string `json:"birthDate,omitempty"`
	BirthTime  string `json:"birthTime,omitempty"`
	BirthPlace string `json:"birthPlace,omitempty"`
	Language   string `json:"language,omitempty"`
	Status     string `json:"status,omitempty"`
}
