package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newQuoteServer(t *testing.T, status int, body string) *Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewClient(&http.Client{}, server.URL, time.Second)
}

func TestClient_GetSolPrice(t *testing.T) {
	client := newQuoteServer(t, http.StatusOK, `{"solana":{"usd":142.35}}`)

	quote, err := client.GetSolPrice(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 142.35, quote)
}

func TestClient_GetSolPrice_MissingField(t *testing.T) {
	client := newQuoteServer(t, http.StatusOK, `{"solana":{}}`)

	_, err := client.GetSolPrice(context.Background())
	assert.ErrorContains(t, err, "missing the solana.usd field")
}

func TestClient_GetSolPrice_BadStatus(t *testing.T) {
	client := newQuoteServer(t, http.StatusTooManyRequests, `{"error":"rate limited"}`)

	_, err := client.GetSolPrice(context.Background())
	assert.ErrorContains(t, err, "http status 429")
}

func TestClient_GetSolPrice_BadJson(t *testing.T) {
	client := newQuoteServer(t, http.StatusOK, `not json`)

	_, err := client.GetSolPrice(context.Background())
	assert.ErrorContains(t, err, "failed to decode")
}

func TestClient_GetSolPrice_Unreachable(t *testing.T) {
	client := NewClient(&http.Client{}, "http://127.0.0.1:1", time.Second)

	_, err := client.GetSolPrice(context.Background())
	assert.Error(t, err)
}
