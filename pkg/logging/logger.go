// Package logging provides per-run file logging for erpkey components.
//
// Every component logger in the same process writes to one shared log file
// under ~/.erpkey/logs/, named after a run-scoped UUID so that a single
// invocation (and the browser acquisition it may trigger) can be traced
// end to end. Secrets must never reach a logger in full; callers are
// expected to mask them first (see credential.MaskSecret).
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes timestamped, component-tagged entries to the run log file.
// All methods are safe for concurrent use and safe on a nil receiver, so
// components may run without logging wired up (as in most tests).
type Logger struct {
	runID     string
	component string
	file      *os.File
	out       *log.Logger
	mu        sync.Mutex
	path      string
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once

	logDir   string
	dirOnce  sync.Once
	dirErr   error
)

func currentRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func ensureLogDir() error {
	dirOnce.Do(func() {
		if logDir != "" {
			// Already pointed somewhere (tests override this).
			dirErr = os.MkdirAll(logDir, 0750)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			dirErr = fmt.Errorf("failed to resolve home directory: %w", err)
			return
		}
		logDir = filepath.Join(home, ".erpkey", "logs")
		dirErr = os.MkdirAll(logDir, 0750)
	})
	return dirErr
}

// NewLogger creates a logger for the named component, writing to
// ~/.erpkey/logs/<run-id>.log. If the file cannot be opened the returned
// logger falls back to stderr and the error is reported so callers can
// surface the degraded state.
func NewLogger(component string) (*Logger, error) {
	if err := ensureLogDir(); err != nil {
		return fallbackLogger(component, err), err
	}

	id := currentRunID()
	path := filepath.Join(logDir, id+".log")

	// Append mode: every component in the run shares one file.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return fallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		file:      file,
		out:       log.New(file, "", 0),
		path:      path,
	}, nil
}

func fallbackLogger(component string, err error) *Logger {
	out := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
	out.Printf("file logging unavailable, writing to stderr: %v", err)
	return &Logger{
		runID:     currentRunID(),
		component: component,
		out:       out,
	}
}

func (l *Logger) logf(level, format string, v ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("[%s] [%s] [%s] %s", ts, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf("DEBUG", format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf("INFO", format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf("WARN", format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf("ERROR", format, v...) }

// RunID returns the run-scoped identifier shared by all loggers in this process.
func (l *Logger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Path returns the log file path, or an empty string in stderr fallback mode.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the underlying log file. Safe to call multiple times and on
// a nil or fallback logger.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
