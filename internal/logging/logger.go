// Package logging provides the leveled, optionally colored logger used by
// the worker and pipeline. Output goes to stdout (errors to stderr) and,
// when configured, to a log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	mu      sync.Mutex
	color   bool
	verbose bool
	quiet   bool
	file    *os.File
}

type Options struct {
	Color   bool
	Verbose bool
	LogFile string
}

func New(opts Options) (*Logger, error) {
	l := &Logger{color: opts.Color, verbose: opts.Verbose}
	if opts.Color && (os.Getenv("NO_COLOR") != "" || strings.ToLower(os.Getenv("TERM")) == "dumb") {
		l.color = false
	}
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.LogFile, err)
		}
		l.file = f
	}
	return l, nil
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

const (
	colorBlue   = "\033[1;94m"
	colorGreen  = "\033[1;92m"
	colorYellow = "\033[1;93m"
	colorRed    = "\033[1;91m"
	colorCyan   = "\033[1;96m"
	colorReset  = "\033[0m"
)

func (l *Logger) line(level, color, text string) {
	if l.quiet {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	plain := ts + " [" + level + "] " + text + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	out := os.Stdout
	if level == "ERROR" {
		out = os.Stderr
	}
	if l.color {
		_, _ = io.WriteString(out, ts+" "+color+"["+level+"]"+colorReset+" "+text+"\n")
	} else {
		_, _ = io.WriteString(out, plain)
	}
	if l.file != nil {
		_, _ = io.WriteString(l.file, plain)
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.line("INFO", colorBlue, fmt.Sprintf(format, args...))
}

func (l *Logger) Success(format string, args ...any) {
	l.line("SUCCESS", colorGreen, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.line("WARN", colorYellow, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.line("ERROR", colorRed, fmt.Sprintf(format, args...))
}

// Debug logs only when verbose was enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.line("DEBUG", colorCyan, fmt.Sprintf(format, args...))
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *Logger {
	return &Logger{quiet: true}
}
