package classifier

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewClient(server.URL, time.Second, logger)
}

func TestClient_EvaluateCondition(t *testing.T) {
	var received ConditionRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conditions/evaluate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"met":true,"confidence":0.92,"reasoning":"mentions an overdue invoice"}`))
	})

	judgment, err := client.EvaluateCondition(t.Context(), ConditionRequest{
		Condition: "the sender asks for payment",
		Event:     &models.Event{ID: "evt-1", Subject: "Overdue invoice"},
	})
	require.NoError(t, err)
	assert.True(t, judgment.Met)
	assert.InDelta(t, 0.92, judgment.Confidence, 1e-9)
	assert.Equal(t, "the sender asks for payment", received.Condition)
	assert.Equal(t, "evt-1", received.Event.ID)
}

func TestClient_GenerateContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/content/generate", r.URL.Path)
		_, _ = w.Write([]byte(`{"subject":"Re: Invoice","content":"Thanks, we are on it."}`))
	})

	generated, err := client.GenerateContent(t.Context(), GenerateRequest{Instructions: "short and polite"})
	require.NoError(t, err)
	assert.Equal(t, "Thanks, we are on it.", generated.Content)
}

func TestClient_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.EvaluateCondition(t.Context(), ConditionRequest{Condition: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate condition")
}
