// Package notify surfaces user-facing outcome messages for mutations
// and background completions.
package notify

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Notifier receives success and failure messages after the cache has
// settled. Implementations must be safe for concurrent use.
type Notifier interface {
	Success(title, message string)
	Failure(title, message string)
}

// LogNotifier writes notifications through a structured logger.
type LogNotifier struct {
	Logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Success(title, message string) {
	n.Logger.Info(title, "detail", message)
}

func (n *LogNotifier) Failure(title, message string) {
	n.Logger.Error(title, "detail", message)
}

// Notification is one recorded message.
type Notification struct {
	Kind    string
	Title   string
	Message string
}

// Recorder captures notifications for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Success(title, message string) {
	r.mu.Lock()
	r.sent = append(r.sent, Notification{Kind: "success", Title: title, Message: message})
	r.mu.Unlock()
}

func (r *Recorder) Failure(title, message string) {
	r.mu.Lock()
	r.sent = append(r.sent, Notification{Kind: "failure", Title: title, Message: message})
	r.mu.Unlock()
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
