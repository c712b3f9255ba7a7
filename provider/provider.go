package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Adapter is the uniform surface over one delivery provider. Implementations
// hold no persistent state and convert every wire failure into a typed
// result; a failure on one channel must never abort a sibling channel.
type Adapter interface {
	Name() string
	AddLead(ctx context.Context, campaignRef string, lead LeadPayload, customFields map[string]string) AddLeadResult
	Pause(ctx context.Context, campaignRef, leadRef string) ControlResult
	Resume(ctx context.Context, campaignRef, leadRef string) ControlResult
	GetStatus(ctx context.Context, campaignRef, leadRef string) (*LeadStatus, error)
	SendMessage(ctx context.Context, campaignRef, leadRef, body string) ControlResult
}

// LeadPayload is the normalized lead record pushed to providers
type LeadPayload struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	JobTitle    string `json:"job_title"`
	LinkedInURL string `json:"linkedin_url"`
}

// AddLeadResult is the typed outcome of an enrollment call
type AddLeadResult struct {
	OK         bool
	ProviderID string
	Err        error
	Permanent  bool
}

// ControlResult is the typed outcome of pause/resume/sendMessage calls.
// NotImplemented marks providers that lack the primitive natively so the
// master control surface can report partial coverage instead of a silent
// no-op.
type ControlResult struct {
	OK             bool
	NotImplemented bool
	Err            error
	Permanent      bool
}

// LeadStatus is the provider-side view of a lead
type LeadStatus struct {
	Status string         `json:"status"`
	Stats  map[string]int `json:"stats"`
}

// Config carries per-request adapter construction inputs. Credentials are
// explicit so each tenant gets its own client instance.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New builds an adapter for the named provider
func New(name string, cfg Config) (Adapter, error) {
	switch name {
	case "smartlead":
		return NewSmartlead(cfg), nil
	case "nureply":
		return NewNureply(cfg), nil
	case "instantly":
		return NewInstantly(cfg), nil
	case "heyreach":
		return NewHeyReach(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// apiError is a non-2xx provider response
type apiError struct {
	Provider string
	Status   int
	Body     string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// IsPermanent reports whether a provider error should not be retried, for
// callers that hold a bare error rather than a typed result.
func IsPermanent(err error) bool {
	return permanentError(err)
}

// permanentError reports whether the error should not be retried. 4xx
// responses are permanent except 408 and 429; network errors and 5xx are
// transient.
func permanentError(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.Status == http.StatusRequestTimeout || ae.Status == http.StatusTooManyRequests {
		return false
	}
	return ae.Status >= 400 && ae.Status < 500
}

// doJSON issues one JSON request and decodes the response into out (when
// non-nil). Non-2xx statuses come back as *apiError.
func doJSON(ctx context.Context, client *http.Client, providerName, method, url string, headers map[string]string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", providerName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", providerName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Provider: providerName, Status: resp.StatusCode, Body: truncate(string(raw), 300)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", providerName, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func controlResult(err error) ControlResult {
	if err == nil {
		return ControlResult{OK: true}
	}
	return ControlResult{Err: err, Permanent: permanentError(err)}
}
