package provider

import (
	"context"
	"fmt"
	"net/http"
)

const nureplyBaseURL = "https://app.nureply.com/api/v1"

// Nureply email delivery adapter. Bearer token authentication.
type Nureply struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewNureply(cfg Config) *Nureply {
	base := cfg.BaseURL
	if base == "" {
		base = nureplyBaseURL
	}
	return &Nureply{apiKey: cfg.APIKey, baseURL: base, client: cfg.client()}
}

func (n *Nureply) Name() string { return "nureply" }

func (n *Nureply) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + n.apiKey}
}

func (n *Nureply) AddLead(ctx context.Context, campaignRef string, lead LeadPayload, customFields map[string]string) AddLeadResult {
	payload := map[string]interface{}{
		"campaign_id": campaignRef,
		"email":       lead.Email,
		"first_name":  lead.FirstName,
		"last_name":   lead.LastName,
		"company":     lead.Company,
		"variables":   customFields,
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := doJSON(ctx, n.client, n.Name(), http.MethodPost,
		n.baseURL+"/leads", n.headers(), payload, &resp)
	if err != nil {
		return AddLeadResult{Err: err, Permanent: permanentError(err)}
	}
	return AddLeadResult{OK: true, ProviderID: resp.ID}
}

func (n *Nureply) Pause(ctx context.Context, campaignRef, leadRef string) ControlResult {
	err := doJSON(ctx, n.client, n.Name(), http.MethodPost,
		fmt.Sprintf("%s/leads/%s/pause", n.baseURL, leadRef), n.headers(), nil, nil)
	return controlResult(err)
}

func (n *Nureply) Resume(ctx context.Context, campaignRef, leadRef string) ControlResult {
	err := doJSON(ctx, n.client, n.Name(), http.MethodPost,
		fmt.Sprintf("%s/leads/%s/resume", n.baseURL, leadRef), n.headers(), nil, nil)
	return controlResult(err)
}

func (n *Nureply) GetStatus(ctx context.Context, campaignRef, leadRef string) (*LeadStatus, error) {
	var resp struct {
		Status string         `json:"status"`
		Stats  map[string]int `json:"stats"`
	}
	err := doJSON(ctx, n.client, n.Name(), http.MethodGet,
		fmt.Sprintf("%s/leads/%s", n.baseURL, leadRef), n.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &LeadStatus{Status: resp.Status, Stats: resp.Stats}, nil
}

func (n *Nureply) SendMessage(ctx context.Context, campaignRef, leadRef, body string) ControlResult {
	return ControlResult{NotImplemented: true}
}
