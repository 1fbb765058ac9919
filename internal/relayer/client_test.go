package relayer_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/httpx"
	"healthvault/internal/relayer"
)

func fastClient(url string, hc *http.Client) *relayer.Client {
	c := relayer.NewClient(url, hc, nil)
	c.Retry = relayer.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return c
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ids := make(chan string, 3)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get(relayer.RequestIDHeader)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	}))
	defer ts.Close()

	var out map[string]string
	require.NoError(t, fastClient(ts.URL, ts.Client()).GetJSON(context.Background(), "/x", &out))
	assert.Equal(t, "yes", out["ok"])
	assert.EqualValues(t, 3, calls.Load())

	first := <-ids
	assert.NotEmpty(t, first)
	assert.Equal(t, first, <-ids, "retries reuse the request id")
	assert.Equal(t, first, <-ids)
}

func TestClient_NonRetryablePostIsSentOnce(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := fastClient(ts.URL, ts.Client()).Post(context.Background(), "/tx", struct{}{}, nil, false)
	var se *relayer.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_ParsesErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(httpx.WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusConflict, "REVERTED", "inputs already submitted")
	})))
	defer ts.Close()

	err := fastClient(ts.URL, ts.Client()).Post(context.Background(), "/v1/tx", struct{}{}, nil, true)
	var se *relayer.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "REVERTED", se.Code)
	assert.Equal(t, "inputs already submitted", se.Message)
	assert.NotEmpty(t, se.RequestID)
	assert.Contains(t, err.Error(), "409 REVERTED")
}

func TestClient_StopsOnCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := relayer.NewClient(ts.URL, ts.Client(), nil)
	c.Retry = relayer.RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.GetJSON(ctx, "/slow", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}
