package logger

import (
	"bufio"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestLogger writes every sample, raw and synthetic, as one line of
// JSON. Samples from all users funnel through a single buffered channel
// into a dedicated writer goroutine, keeping encoding and file I/O off
// the user loops.
type RequestLogger struct {
	ch   chan metrics.Sample
	done chan struct{}

	file *os.File
	w    *bufio.Writer

	closeOnce sync.Once
	err       error
}

// NewRequestLogger opens the request log at path and starts the writer
// goroutine. A nil logger is returned for an empty path; all methods on a
// nil RequestLogger are no-ops.
func NewRequestLogger(path string) (*RequestLogger, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open request-log %q", path)
	}

	l := &RequestLogger{
		ch:   make(chan metrics.Sample, 1024),
		done: make(chan struct{}),
		file: f,
		w:    bufio.NewWriter(f),
	}
	go l.run()
	return l, nil
}

func (l *RequestLogger) run() {
	defer close(l.done)
	enc := json.NewEncoder(l.w)
	for s := range l.ch {
		if err := enc.Encode(s); err != nil && l.err == nil {
			l.err = err
		}
	}
}

// Log enqueues one sample. Safe for concurrent use.
func (l *RequestLogger) Log(s metrics.Sample) {
	if l == nil {
		return
	}
	l.ch <- s
}

// Close drains pending samples, flushes and closes the file.
func (l *RequestLogger) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		close(l.ch)
		<-l.done
		if err := l.w.Flush(); err != nil && l.err == nil {
			l.err = err
		}
		if err := l.file.Close(); err != nil && l.err == nil {
			l.err = err
		}
	})
	return l.err
}
