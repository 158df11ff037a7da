package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/astroveda/booking-wizard-backend/internal/availability"
	"github.com/astroveda/booking-wizard-backend/internal/middleware"
	"github.com/astroveda/booking-wizard-backend/internal/models"
	"github.com/astroveda/booking-wizard-backend/internal/services"
	"github.com/astroveda/booking-wizard-backend/internal/wizard"
	"github.com/astroveda/booking-wizard-backend/pkg/jwt"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
)

// Event type names accepted by the events endpoint.
const (
	EventSelectPackage       = "select_package"
	EventSetField            = "set_field"
	EventSelectDate          = "select_date"
	EventSelectTime          = "select_time"
	EventSelectPaymentMethod = "select_payment_method"
	EventNext                = "next"
	EventPrev                = "prev"
	EventReset               = "reset"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SessionHandler drives the booking wizard over HTTP: one session per
// visitor, one reducer event per request.
type SessionHandler struct {
	sessions    *services.SessionService
	submissions *services.SubmissionService
	shortcuts   *services.ShortcutService
	jwtService  *jwt.Service
	logger      *logrus.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	sessions *services.SessionService,
	submissions *services.SubmissionService,
	shortcuts *services.ShortcutService,
	jwtService *jwt.Service,
	logger *logrus.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:    sessions,
		submissions: submissions,
		shortcuts:   shortcuts,
		jwtService:  jwtService,
		logger:      logger,
	}
}

// ShortcutView is the identity-shortcut slice of the session state.
type ShortcutView struct {
	State         string `json:"state"`
	TimeRemaining int    `json:"time_remaining"`
}

// StateView is everything a client needs to render the wizard.
type StateView struct {
	Step             int                    `json:"step"`
	Draft            models.BookingDraft    `json:"draft"`
	CanProceed       bool                   `json:"can_proceed"`
	Packages         []models.Package       `json:"packages"`
	NoPackages       bool                   `json:"no_packages"`
	PaymentMethods   []models.PaymentMethod `json:"payment_methods"`
	AvailableDates   []string               `json:"available_dates"`
	AvailableTimes   []string               `json:"available_times"`
	NoTimesAvailable bool                   `json:"no_times_available"`
	Submission       string                 `json:"submission"`
	Shortcut         ShortcutView           `json:"shortcut"`
}

// CreateSessionResponse is returned when a wizard session opens.
type CreateSessionResponse struct {
	Success      bool      `json:"success"`
	SessionID    string    `json:"session_id"`
	SessionToken string    `json:"session_token"`
	State        StateView `json:"state"`
}

// StateResponse wraps the session state.
type StateResponse struct {
	Success bool      `json:"success"`
	State   StateView `json:"state"`
}

// EventRequest carries one wizard event.
type EventRequest struct {
	Type            string `json:"type" binding:"required"`
	PackageID       *int   `json:"packageId,omitempty"`
	Field           string `json:"field,omitempty"`
	Value           string `json:"value,omitempty"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	PaymentMethodID *int   `json:"paymentMethodId,omitempty"`
}

// SubmitRequest carries the submission language.
type SubmitRequest struct {
	Language string `json:"language"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session, err := h.sessions.Create()
	if err != nil {
		// Catalog-load failures may carry the provider's own message;
		// it is safe to show for availability data.
		h.respondUpstreamError(c, err, true, "Failed to load booking data")
		return
	}

	token, err := h.jwtService.GenerateSessionToken(session.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session token")
		h.sessions.Delete(session.ID)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to open booking session",
		})
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		Success:      true,
		SessionID:    session.ID.String(),
		SessionToken: token,
		State:        h.stateView(session),
	})
}

// GetState handles GET /api/v1/sessions/state
func (h *SessionHandler) GetState(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, StateResponse{Success: true, State: h.stateView(session)})
}

// ApplyEvent handles POST /api/v1/sessions/events
func (h *SessionHandler) ApplyEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	// Validation against the availability snapshot and the apply itself
	// happen under one lock, so a concurrent event cannot slip between.
	var errResp *ErrorResponse
	session.Locked(func() {
		event, e := h.buildEvent(session, req)
		if e != nil {
			errResp = e
			return
		}
		session.State = wizard.Apply(session.State, event)
	})

	if errResp != nil {
		c.JSON(http.StatusUnprocessableEntity, errResp)
		return
	}

	c.JSON(http.StatusOK, StateResponse{Success: true, State: h.stateView(session)})
}

// Submit handles POST /api/v1/sessions/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	// An empty or absent body is fine; the language just defaults.
	_ = c.ShouldBindJSON(&req)
	if req.Language == "" {
		req.Language = "en"
	}

	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	err := h.submissions.Submit(session, req.Language)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, StateResponse{Success: true, State: h.stateView(session)})
	case errors.Is(err, services.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "submission_in_flight",
			Message: "Your booking is already being submitted",
		})
	case errors.Is(err, services.ErrAlreadyConfirmed):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_confirmed",
			Message: "This session already has a confirmed booking",
		})
	case errors.Is(err, services.ErrDraftIncomplete):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "draft_incomplete",
			Message: "Please complete all booking steps before confirming",
		})
	default:
		// Booking failures never leak upstream detail; the draft and step
		// stay untouched so the visitor can simply press confirm again.
		h.respondUpstreamError(c, err, false, "Failed to create booking. Please try again.")
	}
}

// BookAnother handles POST /api/v1/sessions/book-another
func (h *SessionHandler) BookAnother(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	if err := h.submissions.BookAnother(session); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "no_confirmed_booking",
			Message: "There is no confirmed booking to start over from",
		})
		return
	}

	c.JSON(http.StatusOK, StateResponse{Success: true, State: h.stateView(session)})
}

// buildEvent validates an event request against the session's availability
// snapshot and turns it into a state machine event. Referencing a package,
// slot, or payment method the snapshot does not contain is a validation
// failure, not a wizard state change.
func (h *SessionHandler) buildEvent(session *services.WizardSession, req EventRequest) (wizard.Event, *ErrorResponse) {
	switch req.Type {
	case EventSelectPackage:
		if req.PackageID == nil {
			return nil, &ErrorResponse{Error: "validation_error", Message: "packageId is required"}
		}
		if !h.packageExists(session, *req.PackageID) {
			return nil, &ErrorResponse{Error: "unknown_package", Message: "Selected package is not available"}
		}
		return wizard.SelectPackage{PackageID: *req.PackageID}, nil

	case EventSetField:
		if req.Field == "" {
			return nil, &ErrorResponse{Error: "validation_error", Message: "field is required"}
		}
		return wizard.SetField{Field: req.Field, Value: req.Value}, nil

	case EventSelectDate:
		if req.Date == "" {
			return nil, &ErrorResponse{Error: "validation_error", Message: "date is required"}
		}
		if !contains(availability.Dates(session.Catalog.Slots), req.Date) {
			return nil, &ErrorResponse{Error: "unknown_date", Message: "No availability on the selected date"}
		}
		return wizard.SelectDate{Date: req.Date}, nil

	case EventSelectTime:
		if req.Time == "" {
			return nil, &ErrorResponse{Error: "validation_error", Message: "time is required"}
		}
		if !contains(availability.Times(session.Catalog.Slots, session.State.Draft.SelectedDate), req.Time) {
			return nil, &ErrorResponse{Error: "unknown_time", Message: "The selected time is no longer available"}
		}
		return wizard.SelectTime{Time: req.Time}, nil

	case EventSelectPaymentMethod:
		if req.PaymentMethodID == nil {
			return nil, &ErrorResponse{Error: "validation_error", Message: "paymentMethodId is required"}
		}
		if !h.paymentMethodExists(session, *req.PaymentMethodID) {
			return nil, &ErrorResponse{Error: "unknown_payment_method", Message: "Selected payment method is not available"}
		}
		return wizard.SelectPaymentMethod{PaymentMethodID: *req.PaymentMethodID}, nil

	case EventNext:
		return wizard.Next{}, nil
	case EventPrev:
		return wizard.Prev{}, nil
	case EventReset:
		return wizard.Reset{}, nil
	}

	return nil, &ErrorResponse{Error: "unknown_event", Message: "Unsupported event type: " + req.Type}
}

func (h *SessionHandler) packageExists(session *services.WizardSession, id int) bool {
	for _, pkg := range session.Catalog.Packages {
		if pkg.ID == id {
			return true
		}
	}
	return false
}

func (h *SessionHandler) paymentMethodExists(session *services.WizardSession, id int) bool {
	for _, method := range session.Catalog.PaymentMethods {
		if method.ID == id {
			return true
		}
	}
	return false
}

// loadSession resolves the middleware's session ID to a live session.
func (h *SessionHandler) loadSession(c *gin.Context) (*services.WizardSession, bool) {
	id, ok := middleware.SessionID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Missing session context",
		})
		return nil, false
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "Your booking session has expired. Please start again.",
			Code:    "SESSION_EXPIRED",
		})
		return nil, false
	}

	return session, true
}

// stateView renders the session into the response shape.
func (h *SessionHandler) stateView(session *services.WizardSession) StateView {
	var view StateView

	session.Locked(func() {
		state := session.State
		slots := session.Catalog.Slots
		dates := availability.Dates(slots)
		times := availability.Times(slots, state.Draft.SelectedDate)

		view = StateView{
			Step:             state.Step,
			Draft:            state.Draft,
			CanProceed:       wizard.CanProceed(state),
			Packages:         session.Catalog.Packages,
			NoPackages:       len(session.Catalog.Packages) == 0,
			PaymentMethods:   session.Catalog.PaymentMethods,
			AvailableDates:   dates,
			AvailableTimes:   times,
			NoTimesAvailable: state.Draft.SelectedDate != "" && len(times) == 0,
			Submission:       string(session.Submission),
			Shortcut: ShortcutView{
				State:         string(session.Shortcut.State),
				TimeRemaining: int(h.shortcuts.CooldownRemaining(&session.Shortcut).Seconds()),
			},
		}
	})

	return view
}

// respondUpstreamError converts upstream failures into retryable JSON
// errors. Verbatim controls whether a remote rejection's own message is
// shown (availability loads) or replaced by a generic one (booking).
func (h *SessionHandler) respondUpstreamError(c *gin.Context, err error, verbatim bool, generic string) {
	var remote *upstream.RemoteError
	if errors.As(err, &remote) {
		message := generic
		if verbatim && remote.Message != "" {
			message = remote.Message
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_rejected",
			Message: message,
		})
		return
	}

	if errors.Is(err, upstream.ErrUnavailable) {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_unavailable",
			Message: "Unable to reach the booking service. Please try again.",
		})
		return
	}

	h.logger.WithError(err).Error("Unexpected upstream failure")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: generic,
	})
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
