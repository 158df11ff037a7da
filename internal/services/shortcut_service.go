package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/astroveda/booking-wizard-backend/internal/models"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
	"github.com/astroveda/booking-wizard-backend/pkg/validator"
)

// ShortcutState is the identity-shortcut flow state.
type ShortcutState string

const (
	// ShortcutStatePhone is the initial state: collecting the phone number.
	ShortcutStatePhone ShortcutState = "phone"

	// ShortcutStateOTP means a code was sent and is awaited.
	ShortcutStateOTP ShortcutState = "otp"

	// ShortcutStateLocked is terminal: the identity service started
	// rejecting with a lockout. The wizard itself stays usable manually.
	ShortcutStateLocked ShortcutState = "locked"
)

var (
	// ErrNoOTPPending indicates verify/resend was called before a send
	ErrNoOTPPending = errors.New("no verification code has been sent")

	// ErrInvalidCode indicates the code does not match the expected shape
	ErrInvalidCode = errors.New("verification code has the wrong length")

	// ErrShortcutLocked indicates the identity service locked this number out
	ErrShortcutLocked = errors.New("phone verification is locked, please continue manually")
)

// CooldownError rejects a resend attempted before the cooldown elapsed.
// No upstream call is made.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %d seconds", int(e.Remaining.Seconds()))
}

// IdentityMismatchError is a recoverable verification failure: the user may
// retry or abandon the shortcut and fill the form manually.
type IdentityMismatchError struct {
	Message string
}

func (e *IdentityMismatchError) Error() string {
	return e.Message
}

// ShortcutFlow is the per-session OTP identity state.
type ShortcutFlow struct {
	State             ShortcutState
	PhoneNumber       string // sanitized national number
	CountryCode       string
	ResendAvailableAt time.Time
}

// NewShortcutFlow returns the initial flow state.
func NewShortcutFlow() ShortcutFlow {
	return ShortcutFlow{State: ShortcutStatePhone}
}

// ShortcutService runs the OTP identity-shortcut flow against the external
// identity service. All failures are recoverable except a server-side
// lockout, which parks the flow in its terminal locked state.
type ShortcutService struct {
	upstream       *upstream.Client
	phoneValidator *validator.PhoneValidator
	logger         *logrus.Logger
	cooldown       time.Duration
	codeLength     int
	codePattern    *regexp.Regexp

	now func() time.Time
}

// NewShortcutService creates a new shortcut service
func NewShortcutService(
	upstreamClient *upstream.Client,
	phoneValidator *validator.PhoneValidator,
	logger *logrus.Logger,
	cooldown time.Duration,
	codeLength int,
) *ShortcutService {
	if codeLength <= 0 {
		codeLength = 6
	}
	return &ShortcutService{
		upstream:       upstreamClient,
		phoneValidator: phoneValidator,
		logger:         logger,
		cooldown:       cooldown,
		codeLength:     codeLength,
		codePattern:    regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, codeLength)),
		now:            time.Now,
	}
}

// SendOTP validates the number, asks the identity service to text a code,
// and on success moves the flow to the otp state with a fresh resend
// cooldown.
func (s *ShortcutService) SendOTP(flow *ShortcutFlow, phoneNumber, countryCode string) error {
	if flow.State == ShortcutStateLocked {
		return ErrShortcutLocked
	}

	sanitized, err := s.phoneValidator.Validate(phoneNumber)
	if err != nil {
		return err
	}

	if _, ok := s.phoneValidator.CountryByCode(countryCode); !ok {
		return fmt.Errorf("%w: %q", validator.ErrUnknownCountry, countryCode)
	}

	if err := s.upstream.SendOTP(sanitized, countryCode); err != nil {
		if s.isLockout(err) {
			flow.State = ShortcutStateLocked
			return ErrShortcutLocked
		}
		s.logger.WithError(err).WithField("country", countryCode).Warn("OTP send failed")
		return err
	}

	flow.State = ShortcutStateOTP
	flow.PhoneNumber = sanitized
	flow.CountryCode = countryCode
	flow.ResendAvailableAt = s.now().Add(s.cooldown)

	s.logger.WithField("country", countryCode).Info("Verification code sent")
	return nil
}

// VerifyOTP checks the code. On success it returns the matched profile and
// whether the phone belongs to an existing customer; the caller merges the
// profile into the draft. On failure the flow remains in the otp state and
// the code is not cleared, so the user can correct a typo.
func (s *ShortcutService) VerifyOTP(flow *ShortcutFlow, code string) (models.UserData, bool, error) {
	if flow.State == ShortcutStateLocked {
		return models.UserData{}, false, ErrShortcutLocked
	}
	if flow.State != ShortcutStateOTP {
		return models.UserData{}, false, ErrNoOTPPending
	}

	code = strings.TrimSpace(code)
	if !s.codePattern.MatchString(code) {
		return models.UserData{}, false, fmt.Errorf("%w: expected %d digits", ErrInvalidCode, s.codeLength)
	}

	fullNumber, err := s.phoneValidator.E164(flow.PhoneNumber, flow.CountryCode)
	if err != nil {
		return models.UserData{}, false, err
	}

	user, isExisting, err := s.upstream.VerifyOTP(fullNumber, code)
	if err != nil {
		if s.isLockout(err) {
			flow.State = ShortcutStateLocked
			return models.UserData{}, false, ErrShortcutLocked
		}

		var remote *upstream.RemoteError
		if errors.As(err, &remote) {
			message := remote.Message
			if message == "" {
				message = "Invalid verification code"
			}
			return models.UserData{}, false, &IdentityMismatchError{Message: message}
		}
		return models.UserData{}, false, err
	}

	s.logger.WithField("existing_customer", isExisting).Info("Phone verification succeeded")
	return user, isExisting, nil
}

// ResendOTP re-sends the code to the number already on file. Rejected
// without any upstream call while the cooldown is still running.
func (s *ShortcutService) ResendOTP(flow *ShortcutFlow) error {
	if flow.State == ShortcutStateLocked {
		return ErrShortcutLocked
	}
	if flow.State != ShortcutStateOTP {
		return ErrNoOTPPending
	}

	if remaining := s.CooldownRemaining(flow); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}

	return s.SendOTP(flow, flow.PhoneNumber, flow.CountryCode)
}

// Abandon returns the flow to the phone-entry state. The visitor gives up
// on the shortcut and fills the form manually.
func (s *ShortcutService) Abandon(flow *ShortcutFlow) {
	if flow.State == ShortcutStateLocked {
		return
	}
	*flow = NewShortcutFlow()
}

// CooldownRemaining returns how long until resend is allowed, floored at 0.
func (s *ShortcutService) CooldownRemaining(flow *ShortcutFlow) time.Duration {
	remaining := flow.ResendAvailableAt.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// isLockout detects a server-side lockout rejection. The identity service
// answers 423, or a 4xx whose message names the lockout.
func (s *ShortcutService) isLockout(err error) bool {
	var remote *upstream.RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	if remote.Status == 423 {
		return true
	}
	return strings.Contains(strings.ToLower(remote.Message), "lock")
}
