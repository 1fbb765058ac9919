package httpx_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/httpx"
)

func TestWithRequestID_EchoesCallerID(t *testing.T) {
	var seen string
	h := httpx.WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpx.RequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(httpx.RequestIDHeader, "req_fixed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req_fixed", seen)
	assert.Equal(t, "req_fixed", rec.Header().Get(httpx.RequestIDHeader))
}

func TestWithRequestID_Mints(t *testing.T) {
	h := httpx.WithRequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.HasPrefix(rec.Header().Get(httpx.RequestIDHeader), "req_"))
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusConflict, "REVERTED", "nope")

	assert.Equal(t, http.StatusConflict, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"code":"REVERTED"`)
	assert.Contains(t, string(body), `"message":"nope"`)
}

func TestReadJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1,"b":2}`))
	var dst struct {
		A int `json:"a"`
	}
	assert.Error(t, httpx.ReadJSON(req, &dst))
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	log := logrus.New()
	var buf strings.Builder
	log.SetOutput(&buf)

	h := httpx.AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/x")
}
