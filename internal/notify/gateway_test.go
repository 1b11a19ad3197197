package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/notify"
)

func TestSendTextRetriesGatewayErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"msg-1"}]}`))
	}))
	defer srv.Close()

	g := notify.NewGateway(notify.GatewayConfig{BaseURL: srv.URL, Token: "tok", Sender: "12345", Timeout: 5 * time.Second}, nil)
	require.NoError(t, g.SendText(context.Background(), "+911234567890", "hello"))
	require.EqualValues(t, 3, hits.Load())
}

func TestSendTextDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad recipient","code":131026}}`))
	}))
	defer srv.Close()

	g := notify.NewGateway(notify.GatewayConfig{BaseURL: srv.URL, Token: "tok", Sender: "12345", Timeout: 5 * time.Second}, nil)
	err := g.SendText(context.Background(), "+911234567890", "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "131026")
	require.EqualValues(t, 1, hits.Load())
}
