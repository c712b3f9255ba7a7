package provider

import (
	"context"
	"fmt"
	"net/http"
)

const heyreachBaseURL = "https://api.heyreach.io/api/public"

// HeyReach LinkedIn delivery adapter. Authenticates with an X-API-KEY
// header. HeyReach has no per-lead pause/resume primitive, so those calls
// report not_implemented instead of silently succeeding.
type HeyReach struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewHeyReach(cfg Config) *HeyReach {
	base := cfg.BaseURL
	if base == "" {
		base = heyreachBaseURL
	}
	return &HeyReach{apiKey: cfg.APIKey, baseURL: base, client: cfg.client()}
}

func (h *HeyReach) Name() string { return "heyreach" }

func (h *HeyReach) headers() map[string]string {
	return map[string]string{"X-API-KEY": h.apiKey}
}

func (h *HeyReach) AddLead(ctx context.Context, campaignRef string, lead LeadPayload, customFields map[string]string) AddLeadResult {
	fields := make([]map[string]string, 0, len(customFields))
	for name, value := range customFields {
		fields = append(fields, map[string]string{"name": name, "value": value})
	}

	payload := map[string]interface{}{
		"campaignId": campaignRef,
		"accountLeadPairs": []map[string]interface{}{
			{
				"lead": map[string]interface{}{
					"profileUrl":       lead.LinkedInURL,
					"firstName":        lead.FirstName,
					"lastName":         lead.LastName,
					"companyName":      lead.Company,
					"position":         lead.JobTitle,
					"emailAddress":     lead.Email,
					"customUserFields": fields,
				},
			},
		},
	}

	var resp struct {
		AddedLeadsCount int    `json:"addedLeadsCount"`
		LeadID          string `json:"leadId"`
	}
	err := doJSON(ctx, h.client, h.Name(), http.MethodPost,
		h.baseURL+"/campaign/AddLeadsToCampaignV2", h.headers(), payload, &resp)
	if err != nil {
		return AddLeadResult{Err: err, Permanent: permanentError(err)}
	}
	providerID := resp.LeadID
	if providerID == "" {
		providerID = lead.LinkedInURL
	}
	return AddLeadResult{OK: true, ProviderID: providerID}
}

func (h *HeyReach) Pause(ctx context.Context, campaignRef, leadRef string) ControlResult {
	// No per-lead pause endpoint in the public API
	return ControlResult{NotImplemented: true}
}

func (h *HeyReach) Resume(ctx context.Context, campaignRef, leadRef string) ControlResult {
	return ControlResult{NotImplemented: true}
}

func (h *HeyReach) GetStatus(ctx context.Context, campaignRef, leadRef string) (*LeadStatus, error) {
	payload := map[string]interface{}{
		"campaignId": campaignRef,
		"profileUrl": leadRef,
	}
	var resp struct {
		Status              string `json:"status"`
		ConnectionsSent     int    `json:"connectionsSent"`
		ConnectionsAccepted int    `json:"connectionsAccepted"`
		MessagesSent        int    `json:"messagesSent"`
		Replies             int    `json:"replies"`
	}
	err := doJSON(ctx, h.client, h.Name(), http.MethodPost,
		h.baseURL+"/campaign/GetLeadStatus", h.headers(), payload, &resp)
	if err != nil {
		return nil, err
	}
	return &LeadStatus{
		Status: resp.Status,
		Stats: map[string]int{
			"connections_sent":     resp.ConnectionsSent,
			"connections_accepted": resp.ConnectionsAccepted,
			"messages_sent":        resp.MessagesSent,
			"replies":              resp.Replies,
		},
	}, nil
}

func (h *HeyReach) SendMessage(ctx context.Context, campaignRef, leadRef, body string) ControlResult {
	if body == "" {
		return ControlResult{Err: fmt.Errorf("heyreach: refusing to send empty message"), Permanent: true}
	}
	payload := map[string]interface{}{
		"campaignId": campaignRef,
		"profileUrl": leadRef,
		"message":    body,
	}
	err := doJSON(ctx, h.client, h.Name(), http.MethodPost,
		h.baseURL+"/inbox/SendMessage", h.headers(), payload, nil)
	return controlResult(err)
}
