// Package logger owns the two log streams of an attack: the textual
// swanling-log and the structured per-request JSON log.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config mirrors the log-related runtime options.
type Config struct {
	// SwanlingLog is the path of the textual log file; empty disables it.
	SwanlingLog string
	// Verbose additionally copies INFO and above to standard error.
	Verbose bool
}

// attackFormatter renders entries as `HH:MM:SS [LEVEL] message`.
type attackFormatter struct{}

func (attackFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s [%s] %s\n",
		entry.Time.Format("15:04:05"),
		strings.ToUpper(entry.Level.String()),
		entry.Message,
	)), nil
}

// New builds the swanling-log logger. The returned closer flushes and
// closes the log file, if any.
func New(cfg Config) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.SetFormatter(attackFormatter{})
	log.SetLevel(logrus.InfoLevel)

	var writers []io.Writer
	var file *os.File
	if cfg.SwanlingLog != "" {
		f, err := os.OpenFile(cfg.SwanlingLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to open swanling-log %q", cfg.SwanlingLog)
		}
		file = f
		writers = append(writers, f)
	}
	if cfg.Verbose {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		// Warnings still matter even with no log file configured.
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.WarnLevel)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}

	closer := func() error {
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return log, closer, nil
}
