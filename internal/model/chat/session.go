package chat

import "sync"

// State is the send state of a chat session.
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
)

// Snapshot is a read-only copy of a session, handed to views for rendering.
type Snapshot struct {
	Messages        []Message `json:"messages"`
	State           State     `json:"state"`
	Error           string    `json:"error,omitempty"`
	Unauthenticated bool      `json:"unauthenticated,omitempty"`
}

// Sending reports whether input should be disabled.
func (s Snapshot) Sending() bool {
	return s.State == StateSending
}

// Log is the append-only, ordered record of a session's messages.
// Insertion order is display order.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{messages: make([]Message, 0, 16)}
}

// Append adds a message at the end of the log.
func (l *Log) Append(message Message) {
	message.Tools = append([]string(nil), message.Tools...)

	l.mu.Lock()
	l.messages = append(l.messages, message)
	l.mu.Unlock()
}

// Messages returns a copy of the logged messages.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	copied := make([]Message, len(l.messages))
	for i, message := range l.messages {
		message.Tools = append([]string(nil), message.Tools...)
		copied[i] = message
	}
	return copied
}

// Reset discards every message. Only used when the session itself ends.
func (l *Log) Reset() {
	l.mu.Lock()
	l.messages = make([]Message, 0, 16)
	l.mu.Unlock()
}
