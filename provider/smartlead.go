package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const smartleadBaseURL = "https://server.smartlead.ai/api/v1"

// Smartlead email delivery adapter. Smartlead authenticates with the API
// key as a query parameter.
type Smartlead struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewSmartlead(cfg Config) *Smartlead {
	base := cfg.BaseURL
	if base == "" {
		base = smartleadBaseURL
	}
	return &Smartlead{apiKey: cfg.APIKey, baseURL: base, client: cfg.client()}
}

func (s *Smartlead) Name() string { return "smartlead" }

func (s *Smartlead) url(path string) string {
	return fmt.Sprintf("%s%s?api_key=%s", s.baseURL, path, url.QueryEscape(s.apiKey))
}

func (s *Smartlead) AddLead(ctx context.Context, campaignRef string, lead LeadPayload, customFields map[string]string) AddLeadResult {
	payload := map[string]interface{}{
		"lead_list": []map[string]interface{}{
			{
				"email":         lead.Email,
				"first_name":    lead.FirstName,
				"last_name":     lead.LastName,
				"company_name":  lead.Company,
				"custom_fields": customFields,
			},
		},
	}

	var resp struct {
		OK      bool   `json:"ok"`
		LeadID  string `json:"lead_id"`
		Message string `json:"message"`
	}
	err := doJSON(ctx, s.client, s.Name(), http.MethodPost,
		s.url(fmt.Sprintf("/campaigns/%s/leads", campaignRef)), nil, payload, &resp)
	if err != nil {
		return AddLeadResult{Err: err, Permanent: permanentError(err)}
	}
	return AddLeadResult{OK: true, ProviderID: resp.LeadID}
}

func (s *Smartlead) Pause(ctx context.Context, campaignRef, leadRef string) ControlResult {
	payload := map[string]interface{}{"lead_id": leadRef, "pause": true}
	err := doJSON(ctx, s.client, s.Name(), http.MethodPost,
		s.url(fmt.Sprintf("/campaigns/%s/leads/%s/pause", campaignRef, leadRef)), nil, payload, nil)
	return controlResult(err)
}

func (s *Smartlead) Resume(ctx context.Context, campaignRef, leadRef string) ControlResult {
	payload := map[string]interface{}{"lead_id": leadRef, "resume": true}
	err := doJSON(ctx, s.client, s.Name(), http.MethodPost,
		s.url(fmt.Sprintf("/campaigns/%s/leads/%s/resume", campaignRef, leadRef)), nil, payload, nil)
	return controlResult(err)
}

func (s *Smartlead) GetStatus(ctx context.Context, campaignRef, leadRef string) (*LeadStatus, error) {
	var resp struct {
		Status string `json:"status"`
		Stats  struct {
			Sent    int `json:"sent_count"`
			Opened  int `json:"open_count"`
			Replied int `json:"reply_count"`
			Bounced int `json:"bounce_count"`
		} `json:"stats"`
	}
	err := doJSON(ctx, s.client, s.Name(), http.MethodGet,
		s.url(fmt.Sprintf("/campaigns/%s/leads/%s", campaignRef, leadRef)), nil, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &LeadStatus{
		Status: resp.Status,
		Stats: map[string]int{
			"sent":    resp.Stats.Sent,
			"opened":  resp.Stats.Opened,
			"replied": resp.Stats.Replied,
			"bounced": resp.Stats.Bounced,
		},
	}, nil
}

// SendMessage is LinkedIn-specific; Smartlead runs its own email sequences
func (s *Smartlead) SendMessage(ctx context.Context, campaignRef, leadRef, body string) ControlResult {
	return ControlResult{NotImplemented: true}
}
