package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientLoginAndSend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"invalid credentials"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"user":{"id":"u1","name":"Uma","role":"user"},"auth":{"token":"tok","expires_at":"2030-01-01T00:00:00Z"}}}`))
	})
	mux.HandleFunc("/tickets/t1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"m1","ticket_id":"t1","content":"Hello","sender":{"id":"u1","name":"Uma"}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api := NewAPIClient(srv.URL, time.Second)
	ctx := context.Background()

	_, err := api.Login(ctx, "uma@example.com", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)

	identity, err := api.Login(ctx, "uma@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.User.ID)
	assert.Equal(t, "tok", api.Token())

	msg, err := api.SendMessage(ctx, "t1", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Uma", msg.Sender.Name)
}

func TestAPIClientHonoursCancelledContext(t *testing.T) {
	api := NewAPIClient("http://127.0.0.1:1", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := api.MyChats(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
