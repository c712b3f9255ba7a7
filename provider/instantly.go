package provider

import (
	"context"
	"net/http"
)

const instantlyBaseURL = "https://api.instantly.ai/api/v2"

// Instantly email delivery adapter. Bearer token authentication.
type Instantly struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewInstantly(cfg Config) *Instantly {
	base := cfg.BaseURL
	if base == "" {
		base = instantlyBaseURL
	}
	return &Instantly{apiKey: cfg.APIKey, baseURL: base, client: cfg.client()}
}

func (i *Instantly) Name() string { return "instantly" }

func (i *Instantly) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + i.apiKey}
}

func (i *Instantly) AddLead(ctx context.Context, campaignRef string, lead LeadPayload, customFields map[string]string) AddLeadResult {
	vars := make(map[string]string, len(customFields))
	for k, v := range customFields {
		vars[k] = v
	}
	payload := map[string]interface{}{
		"campaign":         campaignRef,
		"email":            lead.Email,
		"first_name":       lead.FirstName,
		"last_name":        lead.LastName,
		"company_name":     lead.Company,
		"custom_variables": vars,
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := doJSON(ctx, i.client, i.Name(), http.MethodPost,
		i.baseURL+"/leads", i.headers(), payload, &resp)
	if err != nil {
		return AddLeadResult{Err: err, Permanent: permanentError(err)}
	}
	return AddLeadResult{OK: true, ProviderID: resp.ID}
}

func (i *Instantly) Pause(ctx context.Context, campaignRef, leadRef string) ControlResult {
	payload := map[string]interface{}{"lead": leadRef, "campaign": campaignRef}
	err := doJSON(ctx, i.client, i.Name(), http.MethodPost,
		i.baseURL+"/leads/pause", i.headers(), payload, nil)
	return controlResult(err)
}

func (i *Instantly) Resume(ctx context.Context, campaignRef, leadRef string) ControlResult {
	payload := map[string]interface{}{"lead": leadRef, "campaign": campaignRef}
	err := doJSON(ctx, i.client, i.Name(), http.MethodPost,
		i.baseURL+"/leads/resume", i.headers(), payload, nil)
	return controlResult(err)
}

func (i *Instantly) GetStatus(ctx context.Context, campaignRef, leadRef string) (*LeadStatus, error) {
	var resp struct {
		Status       string `json:"status"`
		EmailsSent   int    `json:"emails_sent"`
		EmailsOpened int    `json:"emails_opened"`
		Replies      int    `json:"replies"`
	}
	err := doJSON(ctx, i.client, i.Name(), http.MethodGet,
		i.baseURL+"/leads/"+leadRef, i.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &LeadStatus{
		Status: resp.Status,
		Stats: map[string]int{
			"sent":    resp.EmailsSent,
			"opened":  resp.EmailsOpened,
			"replied": resp.Replies,
		},
	}, nil
}

func (i *Instantly) SendMessage(ctx context.Context, campaignRef, leadRef, body string) ControlResult {
	return ControlResult{NotImplemented: true}
}
