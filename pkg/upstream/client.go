// Package upstream is the HTTP JSON client for the external collaborators
// the wizard consumes: the availability provider (packages, schedule slots,
// payment methods), the booking-creation endpoint, and the OTP identity
// service.
package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/astroveda/booking-wizard-backend/internal/models"
)

// ErrUnavailable wraps transport-level failures (connect, timeout).
// Callers surface these as retryable network errors, never as crashes.
var ErrUnavailable = errors.New("upstream unavailable")

// RemoteError is a non-2xx answer carrying the provider's own message.
// Catalog-load messages may be shown to the user verbatim; booking
// submission failures are reported generically.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream rejected request (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream rejected request (HTTP %d)", e.Status)
}

// Config holds upstream connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the external booking endpoints
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new upstream client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type packagesResponse struct {
	Success  bool             `json:"success"`
	Packages []models.Package `json:"packages"`
	Message  string           `json:"message"`
	Error    string           `json:"error"`
}

type slotsResponse struct {
	Success bool                  `json:"success"`
	Slots   []models.ScheduleSlot `json:"slots"`
	Message string                `json:"message"`
	Error   string                `json:"error"`
}

type paymentMethodsResponse struct {
	Success bool                   `json:"success"`
	Data    []models.PaymentMethod `json:"data"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type sendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	CountryCode string `json:"countryCode"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTPCode     string `json:"otpCode"`
}

type verifyOTPResponse struct {
	User               models.UserData `json:"user"`
	IsExistingCustomer bool            `json:"isExistingCustomer"`
	Error              string          `json:"error"`
}

type bookingRequest struct {
	models.BookingDraft
	Language string `json:"language"`
}

// FetchPackages loads the active package catalog.
func (c *Client) FetchPackages() ([]models.Package, error) {
	var resp packagesResponse
	if err := c.getJSON("/packages?active=true", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RemoteError{Status: http.StatusOK, Message: firstNonEmpty(resp.Message, resp.Error, "failed to load packages")}
	}
	return resp.Packages, nil
}

// FetchScheduleSlots loads the available schedule slots.
func (c *Client) FetchScheduleSlots() ([]models.ScheduleSlot, error) {
	var resp slotsResponse
	if err := c.getJSON("/schedule-slots?available=true", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RemoteError{Status: http.StatusOK, Message: firstNonEmpty(resp.Message, resp.Error, "failed to load schedule slots")}
	}
	return resp.Slots, nil
}

// FetchPaymentMethods loads the payment method list.
func (c *Client) FetchPaymentMethods() ([]models.PaymentMethod, error) {
	var resp paymentMethodsResponse
	if err := c.getJSON("/payment-methods", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RemoteError{Status: http.StatusOK, Message: firstNonEmpty(resp.Message, resp.Error, "failed to load payment methods")}
	}
	return resp.Data, nil
}

// CreateBooking submits a completed draft. A 2xx answer means accepted.
// Never called twice for the same attempt by this client; retries are the
// user's decision, not the transport's.
func (c *Client) CreateBooking(draft models.BookingDraft, language string) error {
	return c.postJSON("/booking", bookingRequest{BookingDraft: draft, Language: language}, nil)
}

// SendOTP asks the identity service to text a verification code.
func (c *Client) SendOTP(phoneNumber, countryCode string) error {
	return c.postJSON("/otp/send", sendOTPRequest{PhoneNumber: phoneNumber, CountryCode: countryCode}, nil)
}

// VerifyOTP checks a code against the identity service. On success it
// returns the matched profile and whether the phone belongs to an existing
// customer.
func (c *Client) VerifyOTP(phoneNumber, otpCode string) (models.UserData, bool, error) {
	var resp verifyOTPResponse
	err := c.postJSON("/otp/verify", verifyOTPRequest{PhoneNumber: phoneNumber, OTPCode: otpCode}, &resp)
	if err != nil {
		return models.UserData{}, false, err
	}
	return resp.User, resp.IsExistingCustomer, nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, out)
}

func (c *Client) postJSON(path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		// Best effort; the body may not be JSON at all.
		_ = json.Unmarshal(body, &envelope)
		return &RemoteError{
			Status:  resp.StatusCode,
			Message: firstNonEmpty(envelope.Error, envelope.Message),
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse upstream response: %w", err)
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
