package wizard

import (
	"github.com/astroveda/booking-wizard-backend/internal/models"
)

// Wizard steps in their fixed linear order.
const (
	StepPackage      = 1
	StepPersonalInfo = 2
	StepDate         = 3
	StepTime         = 4
	StepBirthInfo    = 5
	StepPayment      = 6

	MinStep = StepPackage
	MaxStep = StepPayment
)

// State is the entire wizard state: the current step plus the accumulated
// booking draft. It is a single value updated only through Apply, so a step
// and its draft can never drift apart.
type State struct {
	Step  int                 `json:"step"`
	Draft models.BookingDraft `json:"draft"`
}

// NewState returns the initial wizard state: step 1, empty draft.
func NewState() State {
	return State{Step: StepPackage}
}

// Event is a single user interaction applied to the wizard state.
type Event interface {
	apply(State) State
}

// Apply runs one event through the state machine and returns the new state.
// Events never fail; an event that is not allowed in the current state
// (e.g. Next while the step predicate is unmet) leaves the state unchanged.
func Apply(s State, e Event) State {
	return e.apply(s)
}

// CanProceed reports whether the current step's completion predicate holds,
// i.e. whether Next is allowed to advance. An unmet predicate is not an
// error, it only gates forward movement.
func CanProceed(s State) bool {
	return stepComplete(s.Draft, s.Step)
}

// DraftComplete reports whether every step's predicate is satisfied.
// Submission requires a complete draft.
func DraftComplete(d models.BookingDraft) bool {
	for step := MinStep; step <= MaxStep; step++ {
		if !stepComplete(d, step) {
			return false
		}
	}
	return true
}

func stepComplete(d models.BookingDraft, step int) bool {
	switch step {
	case StepPackage:
		return d.PackageID != nil
	case StepPersonalInfo:
		return d.ClientName != "" && d.ClientEmail != "" && d.ClientPhone != ""
	case StepDate:
		return d.SelectedDate != ""
	case StepTime:
		return d.SelectedTime != ""
	case StepBirthInfo:
		return d.BirthDate != "" && d.BirthCity != ""
	case StepPayment:
		return d.PaymentMethodID != nil
	default:
		return false
	}
}

// SelectPackage chooses the consultation package (step 1).
type SelectPackage struct {
	PackageID int
}

func (e SelectPackage) apply(s State) State {
	id := e.PackageID
	s.Draft.PackageID = &id
	return s
}

// SetField updates one free-text draft field. Field names follow the draft's
// JSON names. Unknown fields are ignored.
type SetField struct {
	Field string
	Value string
}

func (e SetField) apply(s State) State {
	switch e.Field {
	case "clientName":
		s.Draft.ClientName = e.Value
	case "clientEmail":
		s.Draft.ClientEmail = e.Value
	case "clientPhone":
		s.Draft.ClientPhone = e.Value
	case "birthDate":
		s.Draft.BirthDate = e.Value
	case "birthTime":
		s.Draft.BirthTime = e.Value
	case "birthCity":
		s.Draft.BirthCity = e.Value
	case "birthPlace":
		s.Draft.BirthPlace = e.Value
	case "message":
		s.Draft.Message = e.Value
	}
	return s
}

// SelectDate chooses the session date (step 3). Choosing a different date
// always invalidates a previously chosen time, regardless of which step the
// wizard is on or which direction the user is moving.
type SelectDate struct {
	Date string
}

func (e SelectDate) apply(s State) State {
	if s.Draft.SelectedDate != e.Date {
		s.Draft.SelectedTime = ""
	}
	s.Draft.SelectedDate = e.Date
	return s
}

// SelectTime chooses the session time (step 4).
type SelectTime struct {
	Time string
}

func (e SelectTime) apply(s State) State {
	s.Draft.SelectedTime = e.Time
	return s
}

// SelectPaymentMethod chooses the payment method (step 6).
type SelectPaymentMethod struct {
	PaymentMethodID int
}

func (e SelectPaymentMethod) apply(s State) State {
	id := e.PaymentMethodID
	s.Draft.PaymentMethodID = &id
	return s
}

// Next advances one step when the current step's predicate is satisfied.
// Clamped at the last step.
type Next struct{}

func (Next) apply(s State) State {
	if s.Step < MaxStep && CanProceed(s) {
		s.Step++
	}
	return s
}

// Prev moves one step back. Always allowed above step 1. Moving back from
// the time step clears the chosen time, since the user is about to change
// the date that made it valid.
type Prev struct{}

func (Prev) apply(s State) State {
	if s.Step <= MinStep {
		return s
	}
	if s.Step == StepTime {
		s.Draft.SelectedTime = ""
	}
	s.Step--
	return s
}

// Reset returns the wizard to its initial state with an empty draft.
type Reset struct{}

func (Reset) apply(State) State {
	return NewState()
}

// IdentityResolved merges a verified customer profile into the draft.
// Profile values only fill fields the user has not typed yet, except the
// phone number, which is always replaced by the verified one. A resolved
// existing customer with both name and email on file skips straight to the
// date step.
type IdentityResolved struct {
	User               models.UserData
	IsExistingCustomer bool
}

func (e IdentityResolved) apply(s State) State {
	d := &s.Draft
	if d.ClientName == "" {
		d.ClientName = e.User.FullName
	}
	if d.ClientEmail == "" {
		d.ClientEmail = e.User.Email
	}
	if e.User.Phone != "" {
		d.ClientPhone = e.User.Phone
	}
	if d.BirthDate == "" {
		d.BirthDate = e.User.BirthDate
	}
	if d.BirthTime == "" {
		d.BirthTime = e.User.BirthTime
	}
	if d.BirthPlace == "" {
		d.BirthPlace = e.User.BirthPlace
	}

	if e.IsExistingCustomer && e.User.FullName != "" && e.User.Email != "" {
		s.Step = StepDate
	}
	return s
}
