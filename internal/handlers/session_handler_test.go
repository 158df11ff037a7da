package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroveda/booking-wizard-backend/internal/middleware"
	"github.com/astroveda/booking-wizard-backend/internal/services"
	"github.com/astroveda/booking-wizard-backend/pkg/jwt"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
	"github.com/astroveda/booking-wizard-backend/pkg/validator"
)

// fakeUpstream stands in for the availability, booking, and identity
// services. Response bodies and statuses are mutable per test.
type fakeUpstream struct {
	server *httptest.Server

	mu             sync.Mutex
	packagesBody   string
	slotsBody      string
	paymentsBody   string
	bookingStatus  int
	bookingCalls   int
	verifyBody     string
	verifyStatus   int
	sendOTPStatus  int
	packagesStatus int
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{
		packagesBody: `{"success": true, "packages": [
			{"id": 1, "name": "Single Session", "price": 95, "currency": "USD"},
			{"id": 2, "name": "Three Sessions", "price": 250, "currency": "USD"}
		]}`,
		slotsBody: `{"success": true, "slots": [
			{"id": 10, "date": "2026-09-15", "time": "10:00", "isAvailable": true},
			{"id": 11, "date": "2026-09-15", "time": "11:00", "isAvailable": true},
			{"id": 12, "date": "2026-09-16", "time": "09:00", "isAvailable": true}
		]}`,
		paymentsBody:   `{"success": true, "data": [{"id": 1, "name": "Zelle"}]}`,
		bookingStatus:  http.StatusCreated,
		verifyStatus:   http.StatusOK,
		verifyBody:     `{"user": {"fullName": "Maria Lopez", "email": "maria@example.com", "phone": "+573001234567"}, "isExistingCustomer": true}`,
		sendOTPStatus:  http.StatusOK,
		packagesStatus: http.StatusOK,
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/packages":
			if f.packagesStatus != http.StatusOK {
				w.WriteHeader(f.packagesStatus)
				io.WriteString(w, `{"error": "packages offline"}`)
				return
			}
			io.WriteString(w, f.packagesBody)
		case "/schedule-slots":
			io.WriteString(w, f.slotsBody)
		case "/payment-methods":
			io.WriteString(w, f.paymentsBody)
		case "/booking":
			f.bookingCalls++
			w.WriteHeader(f.bookingStatus)
		case "/otp/send":
			w.WriteHeader(f.sendOTPStatus)
		case "/otp/verify":
			w.WriteHeader(f.verifyStatus)
			io.WriteString(w, f.verifyBody)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return f
}

func (f *fakeUpstream) set(fn func(*fakeUpstream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeUpstream) BookingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookingCalls
}

// testEnv wires the full HTTP stack: real router, real middleware, real
// services, fake upstream.
type testEnv struct {
	fake   *fakeUpstream
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := newFakeUpstream(t)
	t.Cleanup(fake.server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := upstream.NewClient(upstream.Config{BaseURL: fake.server.URL, Timeout: 2 * time.Second})
	jwtService := jwt.NewService("test-session-secret", time.Hour)
	sessionService := services.NewSessionService(client, logger, time.Hour)
	shortcutService := services.NewShortcutService(client, validator.NewPhoneValidator(), logger, 60*time.Second, 6)
	submissionService := services.NewSubmissionService(client, logger)

	sessionHandler := NewSessionHandler(sessionService, submissionService, shortcutService, jwtService, logger)
	shortcutHandler := NewShortcutHandler(sessionService, shortcutService, logger)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/sessions", sessionHandler.CreateSession)

	session := v1.Group("/sessions")
	session.Use(middleware.SessionMiddleware(jwtService))
	session.GET("/state", sessionHandler.GetState)
	session.POST("/events", sessionHandler.ApplyEvent)
	session.POST("/submit", sessionHandler.Submit)
	session.POST("/book-another", sessionHandler.BookAnother)

	shortcut := v1.Group("/shortcut")
	shortcut.Use(middleware.SessionMiddleware(jwtService))
	shortcut.POST("/send-otp", shortcutHandler.SendOTP)
	shortcut.POST("/verify-otp", shortcutHandler.VerifyOTP)
	shortcut.POST("/resend-otp", shortcutHandler.ResendOTP)
	shortcut.POST("/abandon", shortcutHandler.Abandon)
	shortcut.GET("/status", shortcutHandler.Status)

	return &testEnv{fake: fake, router: router}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// openSession opens a wizard session and returns its bearer token.
func (e *testEnv) openSession(t *testing.T) (string, CreateSessionResponse) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionToken, resp
}

// event posts one wizard event and returns the decoded state.
func (e *testEnv) event(t *testing.T, token string, body gin.H) (int, StateResponse) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/sessions/events", token, body)

	var resp StateResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.openSession(t)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.SessionToken)
	assert.Equal(t, 1, resp.State.Step)
	assert.False(t, resp.State.CanProceed)
	assert.Len(t, resp.State.Packages, 2)
	assert.Equal(t, []string{"2026-09-15", "2026-09-16"}, resp.State.AvailableDates)
	assert.Empty(t, resp.State.AvailableTimes, "no date chosen yet")
	assert.Equal(t, "idle", resp.State.Submission)
	assert.Equal(t, "phone", resp.State.Shortcut.State)
}

func TestCreateSession_PackageCatalogDown(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(func(f *fakeUpstream) { f.packagesStatus = http.StatusInternalServerError })

	w := env.do(t, http.MethodPost, "/api/v1/sessions", "", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "packages offline", "catalog failures surface the provider's message")
}

func TestCreateSession_EmptyPackageList(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(func(f *fakeUpstream) { f.packagesBody = `{"success": true, "packages": []}` })

	_, resp := env.openSession(t)

	assert.True(t, resp.State.NoPackages)
	assert.False(t, resp.State.CanProceed, "an empty catalog can never satisfy step 1")
}

func TestGetState_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/sessions/state", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetState_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	// Valid token for a session this store never held.
	other := jwt.NewService("test-session-secret", time.Hour)
	token, err := other.GenerateSessionToken(uuid.New())
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/sessions/state", token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_EXPIRED")
}

func TestApplyEvent_FullWizardWalk(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)

	steps := []struct {
		name         string
		body         gin.H
		expectedStep int
	}{
		{"select package", gin.H{"type": "select_package", "packageId": 1}, 1},
		{"advance to personal info", gin.H{"type": "next"}, 2},
		{"set name", gin.H{"type": "set_field", "field": "clientName", "value": "Maria Lopez"}, 2},
		{"set email", gin.H{"type": "set_field", "field": "clientEmail", "value": "maria@example.com"}, 2},
		{"set phone", gin.H{"type": "set_field", "field": "clientPhone", "value": "+13055551234"}, 2},
		{"advance to date", gin.H{"type": "next"}, 3},
		{"select date", gin.H{"type": "select_date", "date": "2026-09-15"}, 3},
		{"advance to time", gin.H{"type": "next"}, 4},
		{"select time", gin.H{"type": "select_time", "time": "10:00"}, 4},
		{"advance to birth info", gin.H{"type": "next"}, 5},
		{"set birth date", gin.H{"type": "set_field", "field": "birthDate", "value": "1990-04-12"}, 5},
		{"set birth city", gin.H{"type": "set_field", "field": "birthCity", "value": "Bogota"}, 5},
		{"advance to payment", gin.H{"type": "next"}, 6},
		{"select payment method", gin.H{"type": "select_payment_method", "paymentMethodId": 1}, 6},
	}

	var last StateResponse
	for _, step := range steps {
		code, resp := env.event(t, token, step.body)
		require.Equal(t, http.StatusOK, code, step.name)
		require.Equal(t, step.expectedStep, resp.State.Step, step.name)
		last = resp
	}

	assert.True(t, last.State.CanProceed)
}

func TestApplyEvent_NextBlockedOnIncompleteStep(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)

	code, resp := env.event(t, token, gin.H{"type": "next"})

	require.Equal(t, http.StatusOK, code, "a gated next is not an error")
	assert.Equal(t, 1, resp.State.Step)
}

func TestApplyEvent_ValidationFailures(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)

	tests := []struct {
		name          string
		body          gin.H
		expectedError string
	}{
		{"unknown package", gin.H{"type": "select_package", "packageId": 99}, "unknown_package"},
		{"missing package id", gin.H{"type": "select_package"}, "validation_error"},
		{"unknown date", gin.H{"type": "select_date", "date": "2026-12-24"}, "unknown_date"},
		{"time without date", gin.H{"type": "select_time", "time": "10:00"}, "unknown_time"},
		{"unknown payment method", gin.H{"type": "select_payment_method", "paymentMethodId": 42}, "unknown_payment_method"},
		{"unknown event type", gin.H{"type": "launch"}, "unknown_event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/sessions/events", token, tt.body)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedError)
		})
	}

	// None of the rejected events touched the wizard.
	w := env.do(t, http.MethodGet, "/api/v1/sessions/state", token, nil)
	var resp StateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.State.Step)
	assert.Nil(t, resp.State.Draft.PackageID)
}

func TestApplyEvent_DateChangeClearsTime(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)

	_, _ = env.event(t, token, gin.H{"type": "select_date", "date": "2026-09-15"})
	_, resp := env.event(t, token, gin.H{"type": "select_time", "time": "10:00"})
	require.Equal(t, "10:00", resp.State.Draft.SelectedTime)

	_, resp = env.event(t, token, gin.H{"type": "select_date", "date": "2026-09-16"})

	assert.Empty(t, resp.State.Draft.SelectedTime)
	assert.Equal(t, []string{"09:00"}, resp.State.AvailableTimes)
}

func TestApplyEvent_NoTimesAvailableSurfaced(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(func(f *fakeUpstream) {
		f.slotsBody = `{"success": true, "slots": [
			{"id": 10, "date": "2026-09-15", "time": "10:00", "isAvailable": true},
			{"id": 11, "date": "2026-09-16", "time": "09:00", "isAvailable": true, "capacity": 1, "bookedCount": 0}
		]}`
	})
	token, _ := env.openSession(t)

	// A chosen date carries its remaining times; the explicit flag only
	// trips when a chosen date has none left.
	_, resp := env.event(t, token, gin.H{"type": "select_date", "date": "2026-09-15"})
	assert.False(t, resp.State.NoTimesAvailable)
	assert.Equal(t, []string{"10:00"}, resp.State.AvailableTimes)
}

func completeWizard(t *testing.T, env *testEnv, token string) {
	t.Helper()
	events := []gin.H{
		{"type": "select_package", "packageId": 1},
		{"type": "set_field", "field": "clientName", "value": "Maria Lopez"},
		{"type": "set_field", "field": "clientEmail", "value": "maria@example.com"},
		{"type": "set_field", "field": "clientPhone", "value": "+13055551234"},
		{"type": "select_date", "date": "2026-09-15"},
		{"type": "select_time", "time": "10:00"},
		{"type": "set_field", "field": "birthDate", "value": "1990-04-12"},
		{"type": "set_field", "field": "birthCity", "value": "Bogota"},
		{"type": "select_payment_method", "paymentMethodId": 1},
	}
	for _, ev := range events {
		code, _ := env.event(t, token, ev)
		require.Equal(t, http.StatusOK, code)
	}
}

func TestSubmit_Success(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)
	completeWizard(t, env, token)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, gin.H{"language": "es"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp StateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.State.Submission)
	assert.Equal(t, "Maria Lopez", resp.State.Draft.ClientName, "confirmation keeps the draft visible")
	assert.Equal(t, 1, env.fake.BookingCalls())
}

func TestSubmit_IncompleteDraft(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "draft_incomplete")
	assert.Equal(t, 0, env.fake.BookingCalls())
}

func TestSubmit_UpstreamFailureIsGenericAndRetryable(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)
	completeWizard(t, env, token)

	env.fake.set(func(f *fakeUpstream) { f.bookingStatus = http.StatusInternalServerError })
	w := env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to create booking")
	assert.NotContains(t, w.Body.String(), "packages offline")

	// The draft survived; a retry succeeds without redoing any step.
	env.fake.set(func(f *fakeUpstream) { f.bookingStatus = http.StatusCreated })
	w = env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, env.fake.BookingCalls())
}

func TestSubmit_AlreadyConfirmed(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)
	completeWizard(t, env, token)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, nil).Code)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_confirmed")
	assert.Equal(t, 1, env.fake.BookingCalls())
}

func TestBookAnother(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)
	completeWizard(t, env, token)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/sessions/submit", token, nil).Code)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/book-another", token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.State.Step)
	assert.Nil(t, resp.State.Draft.PackageID)
	assert.Empty(t, resp.State.Draft.ClientName)
	assert.Equal(t, "idle", resp.State.Submission)
}

func TestBookAnother_WithoutConfirmedBooking(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.openSession(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/book-another", token, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no_confirmed_booking")
}
