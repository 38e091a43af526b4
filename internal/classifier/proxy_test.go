package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ProxyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewProxyClient(Config{
		Endpoint:   srv.URL,
		APIKey:     "secret",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		RateLimit:  6000,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestProxyClient_Classify(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{
			"normalized": "wireless bluetooth speaker",
			"attributes": {"category": "audio"},
			"candidates": [
				{"hts": "8518.22.0000", "score": 0.91, "description": "Multiple loudspeakers"},
				{"score": 1.7}
			]
		}`))
	})

	resp, err := c.Classify(context.Background(), "Wireless bluetooth speaker", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "preprocess", got["action"])
	assert.Equal(t, "Wireless bluetooth speaker", got["product_description"])
	assert.Equal(t, "user-1", got["user_id"])

	assert.Equal(t, "wireless bluetooth speaker", resp.Normalized)
	assert.Equal(t, "audio", resp.Attributes["category"])
	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, "8518.22.0000", resp.Candidates[0].HTS)
	assert.Equal(t, model.MissingHTS, resp.Candidates[1].HTS, "missing code gets a placeholder")
	assert.Equal(t, "", resp.Candidates[1].Description)
	assert.InDelta(t, 1.0, resp.Candidates[1].Score, 1e-9)
}

func TestProxyClient_StringEncodedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		inner := `{"normalized":"smart watch","attributes":{},"candidates":[]}`
		encoded, _ := json.Marshal(inner)
		_, _ = w.Write(encoded)
	})

	resp, err := c.Classify(context.Background(), "smart watch", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "smart watch", resp.Normalized)
	assert.False(t, resp.HasCandidates())
}

func TestProxyClient_DataEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"candidates": [{"hts": "9102.11.0000", "score": 0.68}]}}`))
	})

	resp, err := c.Classify(context.Background(), "watch", "user-1")
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "9102.11.0000", resp.Candidates[0].HTS)
}

func TestProxyClient_NullIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	_, err := c.Classify(context.Background(), "anything", "user-1")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestProxyClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"hts":"8517.62.0050","score":0.96}]}`))
	})

	resp, err := c.Classify(context.Background(), "speaker", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "8517.62.0050", resp.Candidates[0].HTS)
}

func TestProxyClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := c.Classify(context.Background(), "speaker", "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestProxyClient_CachesResolvedAnswersOnly(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["product_description"] == "vague" {
			_, _ = w.Write([]byte(`{"normalized":"vague","candidates":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"hts":"8517.62.0050","score":0.96}]}`))
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Classify(ctx, "speaker", "user-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	for i := 0; i < 2; i++ {
		_, err := c.Classify(ctx, "vague", "user-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestProxyClient_TimeoutViaContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		_, _ = w.Write([]byte(`null`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Classify(ctx, "speaker", "user-1")
	require.Error(t, err)
}

func TestProxyClient_Ruling(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain string", `"Duty is 1.7%"`, "Duty is 1.7%"},
		{"response field", `{"response": "Use 9031.80.8000"}`, "Use 9031.80.8000"},
		{"text field", `{"text": "Need materials"}`, "Need materials"},
		{"data string", `{"data": "from data"}`, "from data"},
		{"data object", `{"data": {"a": 1}}`, `{"a": 1}`},
		{"unknown object", `{"other": true}`, `{"other": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = w.Write([]byte(tt.body))
			})

			reply, err := c.Ruling(context.Background(), RulingRequest{
				Message: "what is the duty?",
				Product: ProductContext{Name: "Smart Watch", HTS: "9102.11.0000"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
			assert.Equal(t, "rulings", got["action"])
			assert.Equal(t, []any{}, got["conversation_history"])
		})
	}
}

func TestNewProxyClient_RequiresEndpoint(t *testing.T) {
	_, err := NewProxyClient(Config{}, nil)
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{in: "", want: 0},
		{in: "2", want: 2 * time.Second},
		{in: " 30 ", want: 30 * time.Second},
		{in: "-1", want: 0},
		{in: "Wed, 21 Oct 2015 07:28:00 GMT", want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRetryAfter(tt.in), tt.in)
	}
}
