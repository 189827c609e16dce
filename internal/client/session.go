// Package client is the thin HTTP session a virtual user drives. It turns
// each request into a metrics.Sample and hands it to the observer installed
// by the user loop; it knows nothing about cadence or back-fill.
package client

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

// Observer receives every sample the session produces, in issue order.
type Observer func(metrics.Sample)

// Session issues requests on behalf of one virtual user.
type Session struct {
	client  *http.Client
	host    string
	user    int
	started time.Time
	timeout time.Duration
	observe Observer

	// successful decides whether a status code counts as a success.
	// The default accepts 2xx and 3xx.
	successful func(int) bool
}

// Options configures a Session.
type Options struct {
	Host    string
	User    int
	Started time.Time
	Timeout time.Duration
	// Success overrides the default 2xx/3xx success predicate.
	Success func(int) bool
}

func NewSession(opts Options, observe Observer) *Session {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	success := opts.Success
	if success == nil {
		success = func(code int) bool { return code >= 200 && code < 400 }
	}

	return &Session{
		client: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
		host:       strings.TrimRight(opts.Host, "/"),
		user:       opts.User,
		started:    opts.Started,
		timeout:    timeout,
		observe:    observe,
		successful: success,
	}
}

// User returns the owning virtual user's id.
func (s *Session) User() int {
	return s.user
}

// Get issues a GET request for path under the named task.
func (s *Session) Get(ctx context.Context, name, path string) (metrics.Sample, error) {
	return s.Request(ctx, metrics.MethodGet, name, path, "", nil)
}

// Post issues a POST request for path under the named task.
func (s *Session) Post(ctx context.Context, name, path, contentType string, body io.Reader) (metrics.Sample, error) {
	return s.Request(ctx, metrics.MethodPost, name, path, contentType, body)
}

// Request issues one HTTP request, records it as a sample and reports it
// to the observer. The returned error is informational; per-request
// failures never abort the user loop.
func (s *Session) Request(ctx context.Context, method metrics.Method, name, path, contentType string, body io.Reader) (metrics.Sample, error) {
	url := s.url(path)
	dispatched := time.Now()

	sample := metrics.Sample{
		Elapsed:  dispatched.Sub(s.started).Milliseconds(),
		Method:   method,
		Name:     name,
		URL:      url,
		FinalURL: url,
		User:     s.user,
	}

	req, err := http.NewRequestWithContext(ctx, method.HTTP(), url, body)
	if err != nil {
		sample.Error = err.Error()
		s.emit(sample)
		return sample, errors.Wrapf(err, "failed to build request for %q", url)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	elapsed := time.Since(dispatched)

	if err != nil {
		if isTimeout(err) {
			// A timed-out request counts the full timeout as its
			// response time so it weighs into cadence like any other.
			sample.ResponseTime = s.timeout.Milliseconds()
			sample.Error = "timeout"
		} else {
			sample.ResponseTime = elapsed.Milliseconds()
			sample.Error = err.Error()
		}
		s.emit(sample)
		return sample, err
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	sample.ResponseTime = elapsed.Milliseconds()
	sample.StatusCode = resp.StatusCode
	if resp.Request != nil && resp.Request.URL != nil {
		sample.FinalURL = resp.Request.URL.String()
	}
	sample.Redirected = sample.FinalURL != url
	sample.Success = s.successful(resp.StatusCode)
	if !sample.Success {
		sample.Error = resp.Status
	}

	s.emit(sample)
	if !sample.Success {
		return sample, errors.Errorf("request to %q failed: %s", url, resp.Status)
	}
	return sample, nil
}

func (s *Session) emit(sample metrics.Sample) {
	if s.observe != nil {
		s.observe(sample)
	}
}

func (s *Session) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.host + path
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
