package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/astroveda/booking-wizard-backend/internal/middleware"
	"github.com/astroveda/booking-wizard-backend/internal/models"
	"github.com/astroveda/booking-wizard-backend/internal/services"
	"github.com/astroveda/booking-wizard-backend/internal/utils"
	"github.com/astroveda/booking-wizard-backend/internal/wizard"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
	"github.com/astroveda/booking-wizard-backend/pkg/validator"
)

// ShortcutHandler runs the returning-customer phone verification flow.
// A verified match pre-fills the draft and can skip the wizard straight to
// the date step.
type ShortcutHandler struct {
	sessions  *services.SessionService
	shortcuts *services.ShortcutService
	logger    *logrus.Logger
}

// NewShortcutHandler creates a new shortcut handler
func NewShortcutHandler(
	sessions *services.SessionService,
	shortcuts *services.ShortcutService,
	logger *logrus.Logger,
) *ShortcutHandler {
	return &ShortcutHandler{
		sessions:  sessions,
		shortcuts: shortcuts,
		logger:    logger,
	}
}

// SendOTPRequest asks for a verification code.
type SendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	CountryCode string `json:"countryCode" binding:"required"`
}

// VerifyOTPRequest submits the received code.
type VerifyOTPRequest struct {
	OTPCode string `json:"otpCode" binding:"required"`
}

// ShortcutStatusResponse reports the flow state and resend cooldown.
type ShortcutStatusResponse struct {
	Success       bool   `json:"success"`
	State         string `json:"state"`
	TimeRemaining int    `json:"time_remaining"`
}

// VerifyOTPResponse reports a successful verification.
type VerifyOTPResponse struct {
	Success            bool            `json:"success"`
	User               models.UserData `json:"user"`
	IsExistingCustomer bool            `json:"isExistingCustomer"`
	Step               int             `json:"step"`
}

// SendOTP handles POST /api/v1/shortcut/send-otp
func (h *ShortcutHandler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "phoneNumber and countryCode are required",
		})
		return
	}

	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	device := utils.ParseUserAgent(utils.GetUserAgent(c))
	h.logger.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"country":     req.CountryCode,
		"ip":          utils.GetRealIP(c),
		"device_type": device.DeviceType,
		"os":          device.OS,
		"browser":     device.Browser,
	}).Info("Phone verification requested")

	var err error
	session.Locked(func() {
		err = h.shortcuts.SendOTP(&session.Shortcut, req.PhoneNumber, req.CountryCode)
	})

	if err != nil {
		h.respondShortcutError(c, err)
		return
	}

	h.respondStatus(c, session)
}

// VerifyOTP handles POST /api/v1/shortcut/verify-otp
func (h *ShortcutHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "otpCode is required",
		})
		return
	}

	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	var (
		user       models.UserData
		isExisting bool
		step       int
		err        error
	)
	session.Locked(func() {
		user, isExisting, err = h.shortcuts.VerifyOTP(&session.Shortcut, req.OTPCode)
		if err != nil {
			return
		}
		session.State = wizard.Apply(session.State, wizard.IdentityResolved{
			User:               user,
			IsExistingCustomer: isExisting,
		})
		step = session.State.Step
	})

	if err != nil {
		h.respondShortcutError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyOTPResponse{
		Success:            true,
		User:               user,
		IsExistingCustomer: isExisting,
		Step:               step,
	})
}

// ResendOTP handles POST /api/v1/shortcut/resend-otp
func (h *ShortcutHandler) ResendOTP(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	var err error
	session.Locked(func() {
		err = h.shortcuts.ResendOTP(&session.Shortcut)
	})

	if err != nil {
		h.respondShortcutError(c, err)
		return
	}

	h.respondStatus(c, session)
}

// Abandon handles POST /api/v1/shortcut/abandon
func (h *ShortcutHandler) Abandon(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	session.Locked(func() {
		h.shortcuts.Abandon(&session.Shortcut)
	})

	h.respondStatus(c, session)
}

// Status handles GET /api/v1/shortcut/status
func (h *ShortcutHandler) Status(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	h.respondStatus(c, session)
}

func (h *ShortcutHandler) respondStatus(c *gin.Context, session *services.WizardSession) {
	var resp ShortcutStatusResponse
	session.Locked(func() {
		resp = ShortcutStatusResponse{
			Success:       true,
			State:         string(session.Shortcut.State),
			TimeRemaining: int(h.shortcuts.CooldownRemaining(&session.Shortcut).Seconds()),
		}
	})
	c.JSON(http.StatusOK, resp)
}

// respondShortcutError maps shortcut failures onto the error taxonomy.
// Every branch is recoverable for the visitor except the lockout.
func (h *ShortcutHandler) respondShortcutError(c *gin.Context, err error) {
	var mismatch *services.IdentityMismatchError
	var cooldown *services.CooldownError
	var remote *upstream.RemoteError

	switch {
	case errors.Is(err, validator.ErrEmptyPhone),
		errors.Is(err, validator.ErrInvalidLength),
		errors.Is(err, validator.ErrUnknownCountry),
		errors.Is(err, services.ErrInvalidCode),
		errors.Is(err, services.ErrNoOTPPending):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})

	case errors.As(err, &cooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "resend_cooldown",
			"message":     cooldown.Error(),
			"retry_after": int(cooldown.Remaining.Seconds()),
		})

	case errors.Is(err, services.ErrShortcutLocked):
		c.JSON(http.StatusLocked, ErrorResponse{
			Error:   "shortcut_locked",
			Message: "Phone verification is locked. You can continue filling the form manually.",
		})

	case errors.As(err, &mismatch):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "identity_mismatch",
			Message: mismatch.Message,
		})

	case errors.As(err, &remote):
		// The identity service's own rejection message is safe to show.
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_rejected",
			Message: remote.Message,
		})

	case errors.Is(err, upstream.ErrUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_unavailable",
			Message: "Unable to reach the verification service. Please try again.",
		})

	default:
		h.logger.WithError(err).Error("Unexpected shortcut failure")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Phone verification failed. Please try again.",
		})
	}
}

// loadSession resolves the middleware's session ID to a live session.
func (h *ShortcutHandler) loadSession(c *gin.Context) (*services.WizardSession, bool) {
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
