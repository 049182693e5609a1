package steam

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Offer states as reported by the bridge.
const (
	OfferStatePending  = "pending"
	OfferStateAccepted = "accepted"
	OfferStateDeclined = "declined"
	OfferStateExpired  = "expired"
	OfferStateInvalid  = "invalid"
)

// Session is an authenticated bot session. Token is opaque to us.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// APIError is a non-2xx response from the steam bridge.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("steam bridge returned %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether an error is worth retrying: timeouts, transport
// failures and rate-limit/server-side responses. Anything else either
// definitely failed (4xx) or has an unknown true outcome and must not be
// blindly retried.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Client talks to the steam-bridge internal API, which wraps the actual
// trading protocol. All calls are rate-limited client side because the
// upstream protocol throttles aggressively.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(baseURL string, timeoutMS int, rps float64, burst int, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Duration(timeoutMS) * time.Millisecond)

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

type loginRequest struct {
	Handle    string `json:"handle"`
	SecretRef string `json:"secret_ref"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Login authenticates a bot account. The bridge resolves secretRef to the
// real credential; we never see it.
func (c *Client) Login(ctx context.Context, handle, secretRef string) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var result loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginRequest{Handle: handle, SecretRef: secretRef}).
		SetResult(&result).
		Post("/internal/login")
	if err != nil {
		return nil, fmt.Errorf("steam bridge unavailable: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}

	session := &Session{Token: result.Token}
	if result.ExpiresAt != nil {
		session.ExpiresAt = *result.ExpiresAt
	}
	return session, nil
}

type sendOfferRequest struct {
	AssetID         string `json:"asset_id"`
	CounterpartyRef string `json:"counterparty_ref"`
	Direction       string `json:"direction"` // "pickup" (item in) or "delivery" (item out)
}

type sendOfferResponse struct {
	OfferID string `json:"offer_id"`
}

// SendOffer proposes a transfer of one asset to/from the counterparty and
// returns the protocol's offer identifier.
func (c *Client) SendOffer(ctx context.Context, session *Session, assetID, counterpartyRef, direction string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var result sendOfferResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(session.Token).
		SetBody(sendOfferRequest{AssetID: assetID, CounterpartyRef: counterpartyRef, Direction: direction}).
		SetResult(&result).
		Post("/internal/offers")
	if err != nil {
		return "", fmt.Errorf("steam bridge unavailable: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return result.OfferID, nil
}

type offerStateResponse struct {
	State string `json:"state"`
}

func (c *Client) GetOfferState(ctx context.Context, session *Session, offerID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var result offerStateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(session.Token).
		SetResult(&result).
		Get(fmt.Sprintf("/internal/offers/%s", offerID))
	if err != nil {
		return "", fmt.Errorf("steam bridge unavailable: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return result.State, nil
}

// ConfirmOffer performs the mobile-confirmation step for an outgoing offer.
func (c *Client) ConfirmOffer(ctx context.Context, session *Session, offerID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(session.Token).
		Post(fmt.Sprintf("/internal/offers/%s/confirm", offerID))
	if err != nil {
		return fmt.Errorf("steam bridge unavailable: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

func (c *Client) CancelOffer(ctx context.Context, session *Session, offerID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(session.Token).
		Post(fmt.Sprintf("/internal/offers/%s/cancel", offerID))
	if err != nil {
		return fmt.Errorf("steam bridge unavailable: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}
