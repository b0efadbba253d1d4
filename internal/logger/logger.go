// Package logger provides verbose diagnostics for the secondbrain client.
// Nothing is written unless verbose mode is switched on with --verbose or
// SECONDBRAIN_VERBOSE; output goes to stderr so it never mixes with answers.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu         sync.RWMutex
	verbose    bool
	timestamps bool
	output     io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetTimestamps prefixes every line with the wall-clock time. The TUI turns
// this on when it redirects logs to a file.
func SetTimestamps(v bool) {
	mu.Lock()
	defer mu.Unlock()
	timestamps = v
}

// SetOutput sets the output writer for verbose logs.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug logs request-level detail.
func Debug(format string, args ...any) {
	write("DEBUG", format, args...)
}

// Info logs a notable step.
func Info(format string, args ...any) {
	write("INFO", format, args...)
}

// Warn logs a recoverable problem.
func Warn(format string, args ...any) {
	write("WARN", format, args...)
}

// Section prints a section header.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

func write(level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	if timestamps {
		fmt.Fprintf(output, "%s [%s] "+format+"\n", append([]any{time.Now().Format("15:04:05.000"), level}, args...)...)
		return
	}
	fmt.Fprintf(output, "[%s] "+format+"\n", append([]any{level}, args...)...)
}
