package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/astroveda/booking-wizard-backend/internal/models"
	"github.com/astroveda/booking-wizard-backend/internal/wizard"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
)

// ErrSessionNotFound indicates the session does not exist or has expired
var ErrSessionNotFound = errors.New("wizard session not found")

// SubmissionStatus is the submission controller's presentation state.
type SubmissionStatus string

const (
	SubmissionIdle       SubmissionStatus = "idle"
	SubmissionSubmitting SubmissionStatus = "submitting"
	SubmissionSuccess    SubmissionStatus = "success"
	SubmissionError      SubmissionStatus = "error"
)

// Catalog is the read-only availability snapshot taken when a session
// opens. Slots are not refreshed for the life of the session, so the
// derived date/time views have no invalidation problem.
type Catalog struct {
	Packages       []models.Package
	Slots          []models.ScheduleSlot
	PaymentMethods []models.PaymentMethod
}

// WizardSession holds one visitor's in-progress booking: the wizard state,
// the availability snapshot, the identity-shortcut flow, and the submission
// status. Everything lives in memory only; a process restart discards all
// drafts, which matches the draft's declared lifecycle.
//
// The mutex serializes every mutation of a session, giving the same
// ordering guarantee a single-threaded event loop would: no two draft
// mutations ever interleave.
type WizardSession struct {
	ID         uuid.UUID
	State      wizard.State
	Catalog    Catalog
	Shortcut   ShortcutFlow
	Submission SubmissionStatus
	CreatedAt  time.Time
	LastSeen   time.Time

	mu sync.Mutex
}

// Apply runs one event through the session's state machine.
func (s *WizardSession) Apply(ev wizard.Event) wizard.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = wizard.Apply(s.State, ev)
	return s.State
}

// Locked runs fn while holding the session mutex.
func (s *WizardSession) Locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// SessionService owns the in-memory wizard session store.
type SessionService struct {
	upstream *upstream.Client
	logger   *logrus.Logger
	idleTTL  time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*WizardSession

	now func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(upstreamClient *upstream.Client, logger *logrus.Logger, idleTTL time.Duration) *SessionService {
	return &SessionService{
		upstream: upstreamClient,
		logger:   logger,
		idleTTL:  idleTTL,
		sessions: make(map[uuid.UUID]*WizardSession),
		now:      time.Now,
	}
}

// Create opens a new wizard session and snapshots the availability data.
//
// A package-catalog failure aborts session creation: without packages the
// wizard cannot start, and the provider's message is worth surfacing to the
// visitor. Slot and payment-method failures degrade to empty lists so the
// wizard still opens; the affected steps report their own empty states.
func (s *SessionService) Create() (*WizardSession, error) {
	packages, err := s.upstream.FetchPackages()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load package catalog")
		return nil, err
	}

	slots, err := s.upstream.FetchScheduleSlots()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load schedule slots, session opens with none")
		slots = []models.ScheduleSlot{}
	}

	paymentMethods, err := s.upstream.FetchPaymentMethods()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load payment methods, session opens with none")
		paymentMethods = []models.PaymentMethod{}
	}

	now := s.now()
	session := &WizardSession{
		ID:    uuid.New(),
		State: wizard.NewState(),
		Catalog: Catalog{
			Packages:       packages,
			Slots:          slots,
			PaymentMethods: paymentMethods,
		},
		Shortcut:   NewShortcutFlow(),
		Submission: SubmissionIdle,
		CreatedAt:  now,
		LastSeen:   now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session_id":      session.ID,
		"packages":        len(packages),
		"slots":           len(slots),
		"payment_methods": len(paymentMethods),
	}).Info("Wizard session opened")

	return session, nil
}

// Get returns a live session and refreshes its idle timer.
func (s *SessionService) Get(id uuid.UUID) (*WizardSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	session.Locked(func() {
		session.LastSeen = s.now()
	})

	return session, nil
}

// Delete removes a session immediately.
func (s *SessionService) Delete(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepExpired removes sessions idle beyond the TTL and returns how many
// were dropped.
//
// Session mutexes are never taken while the store lock is held: a session
// busy with a long upstream call would otherwise stall every other
// session's Get and Create behind the store's write lock for the duration
// of that call.
func (s *SessionService) SweepExpired() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.RLock()
	candidates := make([]*WizardSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		candidates = append(candidates, session)
	}
	s.mu.RUnlock()

	expired := make([]uuid.UUID, 0)
	for _, session := range candidates {
		var lastSeen time.Time
		session.Locked(func() {
			lastSeen = session.LastSeen
		})
		if lastSeen.Before(cutoff) {
			expired = append(expired, session.ID)
		}
	}

	if len(expired) == 0 {
		return 0
	}

	s.mu.Lock()
	removed := 0
	for _, id := range expired {
		if _, ok := s.sessions[id]; ok {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.WithField("count", removed).Info("Expired idle wizard sessions")
	}

	return removed
}
