package services

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/astroveda/booking-wizard-backend/internal/models"
	"github.com/astroveda/booking-wizard-backend/internal/wizard"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
)

var (
	// ErrSubmissionInFlight rejects a duplicate submit while one is running.
	// No network call is made, so a double click cannot double-book.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")

	// ErrDraftIncomplete indicates not every step's predicate is satisfied
	ErrDraftIncomplete = errors.New("booking draft is incomplete")

	// ErrAlreadyConfirmed indicates the session already holds a confirmed
	// booking; "book another" must be requested before submitting again
	ErrAlreadyConfirmed = errors.New("booking already confirmed for this session")

	// ErrNoConfirmedBooking indicates "book another" without a success
	ErrNoConfirmedBooking = errors.New("no confirmed booking to reset from")
)

// SubmissionService validates the completed draft, issues the booking
// creation request, and manages the session's idle/submitting/success/error
// presentation state. Retries are always user-initiated; the service never
// re-issues a request on its own.
type SubmissionService struct {
	upstream *upstream.Client
	logger   *logrus.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(upstreamClient *upstream.Client, logger *logrus.Logger) *SubmissionService {
	return &SubmissionService{
		upstream: upstreamClient,
		logger:   logger,
	}
}

// Submit posts the session's draft to the booking endpoint.
//
// On failure the draft and step are left exactly as entered so the visitor
// can correct and resubmit without redoing earlier steps. On success the
// status flips to success; the draft is only cleared by BookAnother.
func (s *SubmissionService) Submit(session *WizardSession, language string) error {
	var draft models.BookingDraft
	var guardErr error

	session.Locked(func() {
		switch session.Submission {
		case SubmissionSubmitting:
			guardErr = ErrSubmissionInFlight
			return
		case SubmissionSuccess:
			guardErr = ErrAlreadyConfirmed
			return
		}

		draft = session.State.Draft
		if !wizard.DraftComplete(draft) {
			guardErr = ErrDraftIncomplete
			return
		}

		session.Submission = SubmissionSubmitting
	})

	if guardErr != nil {
		return guardErr
	}

	// The network call runs outside the session lock; the submitting
	// status is the in-flight guard.
	err := s.upstream.CreateBooking(draft, language)

	session.Locked(func() {
		if err != nil {
			session.Submission = SubmissionError
		} else {
			session.Submission = SubmissionSuccess
		}
	})

	if err != nil {
		s.logger.WithError(err).WithField("session_id", session.ID).Error("Booking submission failed")
		return err
	}

	s.logger.WithField("session_id", session.ID).Info("Booking confirmed")
	return nil
}

// BookAnother resets a successfully submitted session back to an empty
// draft at step 1. Only valid after a confirmed booking; success never
// resets anything on its own.
func (s *SubmissionService) BookAnother(session *WizardSession) error {
	var guardErr error

	session.Locked(func() {
		if session.Submission != SubmissionSuccess {
			guardErr = ErrNoConfirmedBooking
			return
		}
		session.State = wizard.NewState()
		session.Submission = SubmissionIdle
	})

	return guardErr
}
