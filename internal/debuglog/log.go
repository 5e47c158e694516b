// Package debuglog provides the SDK-wide debug logger. It writes to
// io.Discard until debug mode routes it somewhere visible, so that an SDK
// embedded in arbitrary applications stays quiet by default.
package debuglog

import (
	"io"
	"log"
	"sync"
)

var (
	mu     sync.RWMutex
	logger = log.New(io.Discard, "[Faultline] ", log.LstdFlags)
)

// SetLogger replaces the current debug logger. Safe for concurrent use.
func SetLogger(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetOutput redirects the debug logger to w. Safe for concurrent use.
func SetOutput(w io.Writer) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.SetOutput(w)
}

// GetLogger returns the current debug logger. Safe for concurrent use.
func GetLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Printf calls Printf on the current debug logger.
func Printf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Printf(format, args...)
}

// Print calls Print on the current debug logger.
func Print(args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Print(args...)
}

// Println calls Println on the current debug logger.
func Println(args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Println(args...)
}
