// Package notify is the fire-and-forget channel used to report save outcomes
// to the reviewer.
package notify

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notifier delivers a message. Implementations must not block the caller for
// long and return nothing the caller could act on.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}

// Funcs adapts plain functions. A nil field drops that kind.
type Funcs struct {
	OnSuccess func(message string)
	OnError   func(message string)
}

func (f Funcs) Success(message string) {
	if f.OnSuccess != nil {
		f.OnSuccess(message)
	}
}

func (f Funcs) Error(message string) {
	if f.OnError != nil {
		f.OnError(message)
	}
}

// LogNotifier writes notifications to a logrus logger.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Success(message string) {
	n.log.WithField("kind", KindSuccess).Info(message)
}

func (n *LogNotifier) Error(message string) {
	n.log.WithField("kind", KindError).Error(message)
}

// Message is one delivered notification.
type Message struct {
	Kind Kind
	Text string
}

// Recorder keeps every message it receives. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Success(message string) { r.add(KindSuccess, message) }
func (r *Recorder) Error(message string)   { r.add(KindError, message) }

func (r *Recorder) add(kind Kind, text string) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Kind: kind, Text: text})
	r.mu.Unlock()
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Multi fans a message out to several notifiers in order.
type Multi []Notifier

func (m Multi) Success(message string) {
	for _, n := range m {
		n.Success(message)
	}
}

func (m Multi) Error(message string) {
	for _, n := range m {
		n.Error(message)
	}
}
