// Package notify delivers user-facing error notifications (toasts) raised by
// the route guard.
package notify

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// FlashCookieName is read and cleared by the dashboard to render a toast
const FlashCookieName = "flash_error"

// Notifier shows an error message to the user. Delivery is fire-and-forget.
type Notifier interface {
	Error(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, message string)

// Error calls f
func (f NotifierFunc) Error(ctx context.Context, message string) {
	f(ctx, message)
}

// Log writes notifications to the application log
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log-backed notifier
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Error logs the message
func (l *Log) Error(_ context.Context, message string) {
	l.logger.Info("user notification", zap.String("message", message))
}

// Flash hands the message to the browser in a short-lived cookie
type Flash struct {
	w      http.ResponseWriter
	secure bool
}

// NewFlash creates a notifier writing to w
func NewFlash(w http.ResponseWriter, secure bool) *Flash {
	return &Flash{w: w, secure: secure}
}

// Error sets the flash cookie
func (f *Flash) Error(_ context.Context, message string) {
	http.SetCookie(f.w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Recorder keeps notifications in memory, for API responses and tests
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Error records the message
func (r *Recorder) Error(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the recorded messages
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Last returns the most recent message, or ""
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

// Error forwards to every notifier
func (m Multi) Error(ctx context.Context, message string) {
	for _, n := range m {
		n.Error(ctx, message)
	}
}
