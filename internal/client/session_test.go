package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/stall", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, host string, timeout time.Duration, observe Observer) *Session {
	t.Helper()
	return NewSession(Options{
		Host:    host,
		User:    7,
		Started: time.Now(),
		Timeout: timeout,
	}, observe)
}

func TestGetSuccess(t *testing.T) {
	srv := testServer(t)
	var observed []metrics.Sample
	s := newTestSession(t, srv.URL, time.Second, func(sm metrics.Sample) {
		observed = append(observed, sm)
	})

	sample, err := s.Get(context.Background(), "ok page", "/ok")
	require.NoError(t, err)
	assert.True(t, sample.Success)
	assert.Equal(t, 200, sample.StatusCode)
	assert.Equal(t, metrics.MethodGet, sample.Method)
	assert.Equal(t, "ok page", sample.Name)
	assert.Equal(t, srv.URL+"/ok", sample.URL)
	assert.Equal(t, srv.URL+"/ok", sample.FinalURL)
	assert.False(t, sample.Redirected)
	assert.Empty(t, sample.Error)
	assert.Equal(t, 7, sample.User)
	assert.Zero(t, sample.CoordinatedOmissionElapsed)

	require.Len(t, observed, 1)
	assert.Equal(t, sample, observed[0])
}

func TestRedirectTracked(t *testing.T) {
	srv := testServer(t)
	s := newTestSession(t, srv.URL, time.Second, nil)

	sample, err := s.Get(context.Background(), "redirect", "/redirect")
	require.NoError(t, err)
	assert.True(t, sample.Redirected)
	assert.Equal(t, srv.URL+"/redirect", sample.URL)
	assert.Equal(t, srv.URL+"/ok", sample.FinalURL)
}

func TestStatusFailureCarriesPhrase(t *testing.T) {
	srv := testServer(t)
	s := newTestSession(t, srv.URL, time.Second, nil)

	sample, err := s.Get(context.Background(), "missing", "/missing")
	require.Error(t, err)
	assert.False(t, sample.Success)
	assert.Equal(t, 404, sample.StatusCode)
	assert.Contains(t, sample.Error, "404")
}

func TestTimeoutSample(t *testing.T) {
	srv := testServer(t)
	const timeout = 100 * time.Millisecond
	s := newTestSession(t, srv.URL, timeout, nil)

	sample, err := s.Get(context.Background(), "stall", "/stall")
	require.Error(t, err)
	assert.False(t, sample.Success)
	assert.Equal(t, "timeout", sample.Error)
	// A timed-out request reports the full timeout as its response time.
	assert.Equal(t, timeout.Milliseconds(), sample.ResponseTime)
}

func TestTransportErrorRecorded(t *testing.T) {
	srv := testServer(t)
	url := srv.URL
	srv.Close()

	s := newTestSession(t, url, time.Second, nil)
	sample, err := s.Get(context.Background(), "down", "/ok")
	require.Error(t, err)
	assert.False(t, sample.Success)
	assert.NotEmpty(t, sample.Error)
	assert.NotEqual(t, "timeout", sample.Error)
	assert.Zero(t, sample.StatusCode)
}

func TestPostSuccess(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL, time.Second, nil)
	sample, err := s.Post(context.Background(), "create", "/things", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, metrics.MethodPost, sample.Method)
	assert.True(t, sample.Success)
}

func TestSuccessPredicateOverride(t *testing.T) {
	srv := testServer(t)
	s := NewSession(Options{
		Host:    srv.URL,
		Started: time.Now(),
		Timeout: time.Second,
		Success: func(code int) bool { return code == 404 },
	}, nil)

	sample, err := s.Get(context.Background(), "missing", "/missing")
	require.NoError(t, err)
	assert.True(t, sample.Success)
}
