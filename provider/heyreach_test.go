package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeyReachAddLead(t *testing.T) {
	var captured struct {
		path    string
		apiKey  string
		payload map[string]interface{}
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.apiKey = r.Header.Get("X-API-KEY")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.payload))
		w.Write([]byte(`{"addedLeadsCount":1,"leadId":"hr-9"}`))
	}))
	defer server.Close()

	adapter := NewHeyReach(Config{APIKey: "key-2", BaseURL: server.URL})
	res := adapter.AddLead(context.Background(), "77", testLead(), map[string]string{"linkedin_message_1": "hello there"})

	require.True(t, res.OK)
	assert.Equal(t, "hr-9", res.ProviderID)

	// HeyReach takes the key as a header
	assert.Equal(t, "key-2", captured.apiKey)
	assert.Equal(t, "/campaign/AddLeadsToCampaignV2", captured.path)
	assert.Equal(t, "77", captured.payload["campaignId"])

	pairs := captured.payload["accountLeadPairs"].([]interface{})
	require.Len(t, pairs, 1)
	lead := pairs[0].(map[string]interface{})["lead"].(map[string]interface{})
	assert.Equal(t, "https://linkedin.com/in/jordanwells", lead["profileUrl"])
	assert.Equal(t, "VP Sales", lead["position"])

	fields := lead["customUserFields"].([]interface{})
	require.Len(t, fields, 1)
	field := fields[0].(map[string]interface{})
	assert.Equal(t, "linkedin_message_1", field["name"])
	assert.Equal(t, "hello there", field["value"])
}

func TestHeyReachAddLeadFallsBackToProfileURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"addedLeadsCount":1}`))
	}))
	defer server.Close()

	adapter := NewHeyReach(Config{APIKey: "key-2", BaseURL: server.URL})
	res := adapter.AddLead(context.Background(), "77", testLead(), nil)

	require.True(t, res.OK)
	assert.Equal(t, "https://linkedin.com/in/jordanwells", res.ProviderID)
}

func TestHeyReachSendMessage(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inbox/SendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := NewHeyReach(Config{APIKey: "key-2", BaseURL: server.URL})
	res := adapter.SendMessage(context.Background(), "77", "hr-9", "thanks for connecting")

	require.True(t, res.OK)
	assert.Equal(t, "77", payload["campaignId"])
	assert.Equal(t, "hr-9", payload["profileUrl"])
	assert.Equal(t, "thanks for connecting", payload["message"])
}

func TestHeyReachSendMessageRejectsEmptyBody(t *testing.T) {
	adapter := NewHeyReach(Config{APIKey: "key-2"})
	res := adapter.SendMessage(context.Background(), "77", "hr-9", "")

	require.False(t, res.OK)
	assert.True(t, res.Permanent)
}

func TestHeyReachPauseResumeNotImplemented(t *testing.T) {
	adapter := NewHeyReach(Config{APIKey: "key-2"})
	assert.True(t, adapter.Pause(context.Background(), "77", "hr-9").NotImplemented)
	assert.True(t, adapter.Resume(context.Background(), "77", "hr-9").NotImplemented)
}

func TestHeyReachSendMessageTransientFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewHeyReach(Config{APIKey: "key-2", BaseURL: server.URL})
	res := adapter.SendMessage(context.Background(), "77", "hr-9", "hello")

	require.False(t, res.OK)
	assert.False(t, res.Permanent)
}

func TestHeyReachGetStatusMapsStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaign/GetLeadStatus", r.URL.Path)
		w.Write([]byte(`{"status":"in_progress","connectionsSent":1,"connectionsAccepted":1,"messagesSent":2,"replies":1}`))
	}))
	defer server.Close()

	adapter := NewHeyReach(Config{APIKey: "key-2", BaseURL: server.URL})
	status, err := adapter.GetStatus(context.Background(), "77", "hr-9")
	require.NoError(t, err)

	assert.Equal(t, "in_progress", status.Status)
	assert.Equal(t, 1, status.Stats["connections_accepted"])
	assert.Equal(t, 2, status.Stats["messages_sent"])
}
