package live

import (
	"context"
	"sync"
	"time"
)

// Message is one live update pushed to connected clients.
type Message struct {
	// Kind distinguishes the payload: "health", "tip", "rule", "schedule".
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
	Time    time.Time   `json:"time"`
}

// Publisher delivers live updates. Publishing never blocks rule
// execution; slow consumers are the transport's problem.
type Publisher interface {
	Publish(ctx context.Context, msg Message)
}

// Capture is a Publisher that records messages, for tests.
type Capture struct {
	mu   sync.Mutex
	msgs []Message
}

// NewCapture creates an empty capturing publisher.
func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Publish(ctx context.Context, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

// Messages returns a copy of everything published so far.
func (c *Capture) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}
