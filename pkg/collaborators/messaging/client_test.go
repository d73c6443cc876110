package messaging

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendReply(t *testing.T) {
	var received Reply

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages/reply", r.URL.Path)
		assert.Equal(t, "exec-1:reply", r.Header.Get(collaborators.IdempotencyKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"message_id":"msg-42"}`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := NewClient(server.URL, time.Second, 100, logger)

	receipt, err := client.SendReply(t.Context(), Reply{
		IdempotencyKey: "exec-1:reply",
		InReplyTo:      "evt-1",
		To:             []string{"billing@acme.com"},
		Subject:        "Re: Invoice",
		Body:           "Thanks",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", receipt.MessageID)
	assert.Equal(t, "evt-1", received.InReplyTo)
	assert.Equal(t, []string{"billing@acme.com"}, received.To)
}

func TestClient_NotifyFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := NewClient(server.URL, time.Second, 100, logger)

	_, err := client.Notify(t.Context(), Notification{Channel: "inbox", Title: "t", Message: "m"})
	require.Error(t, err)
	assert.True(t, collaborators.IsRetryable(err))
}
