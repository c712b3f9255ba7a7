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

func testLead() LeadPayload {
	return LeadPayload{
		Email:       "jordan@acme.io",
		FirstName:   "Jordan",
		LastName:    "Wells",
		Company:     "Acme",
		JobTitle:    "VP Sales",
		LinkedInURL: "https://linkedin.com/in/jordanwells",
	}
}

func TestSmartleadAddLead(t *testing.T) {
	var captured struct {
		path    string
		apiKey  string
		payload map[string]interface{}
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.apiKey = r.URL.Query().Get("api_key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.payload))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"lead_id":"sl-123"}`))
	}))
	defer server.Close()

	adapter := NewSmartlead(Config{APIKey: "key-1", BaseURL: server.URL})
	res := adapter.AddLead(context.Background(), "42", testLead(), map[string]string{"email_1_subject": "hello"})

	require.True(t, res.OK)
	assert.Equal(t, "sl-123", res.ProviderID)

	// Smartlead takes the key as a query parameter
	assert.Equal(t, "key-1", captured.apiKey)
	assert.Equal(t, "/campaigns/42/leads", captured.path)

	leads, ok := captured.payload["lead_list"].([]interface{})
	require.True(t, ok)
	require.Len(t, leads, 1)
	first := leads[0].(map[string]interface{})
	assert.Equal(t, "jordan@acme.io", first["email"])
	assert.Equal(t, "Acme", first["company_name"])
	fields := first["custom_fields"].(map[string]interface{})
	assert.Equal(t, "hello", fields["email_1_subject"])
}

func TestSmartleadAddLeadErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		wantPermanent bool
	}{
		{"unauthorized is permanent", http.StatusUnauthorized, true},
		{"unprocessable is permanent", http.StatusUnprocessableEntity, true},
		{"rate limit is transient", http.StatusTooManyRequests, false},
		{"request timeout is transient", http.StatusRequestTimeout, false},
		{"server error is transient", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			adapter := NewSmartlead(Config{APIKey: "key-1", BaseURL: server.URL})
			res := adapter.AddLead(context.Background(), "42", testLead(), nil)

			require.False(t, res.OK)
			require.Error(t, res.Err)
			assert.Equal(t, tt.wantPermanent, res.Permanent)
		})
	}
}

func TestSmartleadGetStatusMapsStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/campaigns/42/leads/sl-123", r.URL.Path)
		w.Write([]byte(`{"status":"active","stats":{"sent_count":3,"open_count":2,"reply_count":1,"bounce_count":0}}`))
	}))
	defer server.Close()

	adapter := NewSmartlead(Config{APIKey: "key-1", BaseURL: server.URL})
	status, err := adapter.GetStatus(context.Background(), "42", "sl-123")
	require.NoError(t, err)

	assert.Equal(t, "active", status.Status)
	assert.Equal(t, 3, status.Stats["sent"])
	assert.Equal(t, 2, status.Stats["opened"])
	assert.Equal(t, 1, status.Stats["replied"])
}

func TestGetStatusErrorPermanence(t *testing.T) {
	for _, tt := range []struct {
		name          string
		statusCode    int
		wantPermanent bool
	}{
		{"unauthorized is permanent", http.StatusUnauthorized, true},
		{"rate limit is transient", http.StatusTooManyRequests, false},
		{"server error is transient", http.StatusServiceUnavailable, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			adapter := NewSmartlead(Config{APIKey: "key-1", BaseURL: server.URL})
			_, err := adapter.GetStatus(context.Background(), "42", "sl-123")
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
		})
	}
}

func TestSmartleadPauseResume(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := NewSmartlead(Config{APIKey: "key-1", BaseURL: server.URL})
	assert.True(t, adapter.Pause(context.Background(), "42", "sl-123").OK)
	assert.True(t, adapter.Resume(context.Background(), "42", "sl-123").OK)
	assert.Equal(t, []string{"/campaigns/42/leads/sl-123/pause", "/campaigns/42/leads/sl-123/resume"}, paths)
}

func TestSmartleadSendMessageNotImplemented(t *testing.T) {
	adapter := NewSmartlead(Config{APIKey: "key-1"})
	res := adapter.SendMessage(context.Background(), "42", "sl-123", "hi")
	assert.True(t, res.NotImplemented)
}

func TestTruncateLongErrorBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		for i := 0; i < 100; i++ {
			w.Write([]byte("0123456789"))
		}
	}))
	defer server.Close()

	adapter := NewSmartlead(Config{APIKey: "key-1", BaseURL: server.URL})
	res := adapter.AddLead(context.Background(), "42", testLead(), nil)
	require.Error(t, res.Err)
	assert.Less(t, len(res.Err.Error()), 400)
}
