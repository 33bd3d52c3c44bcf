package bridge

import (
	"strings"
	"sync"
)

// Message is one publish seen by FakeBroker.
type Message struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// FakeBroker records publishes and lets tests inject messages.
type FakeBroker struct {
	mu       sync.Mutex
	messages []Message
	handlers map[string]func(string, []byte)

	// PublishError, if set, is returned by Publish.
	PublishError error

	Closed bool
}

// NewFakeBroker creates an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{handlers: make(map[string]func(string, []byte))}
}

func (f *FakeBroker) Publish(topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.messages = append(f.messages, Message{Topic: topic, Retained: retained, Payload: append([]byte(nil), payload...)})
	return nil
}

func (f *FakeBroker) Subscribe(topic string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *FakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Deliver invokes the handler subscribed to topic. It reports whether one
// was found.
func (f *FakeBroker) Deliver(topic string, payload string) bool {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(topic, []byte(payload))
	return true
}

// Messages returns every publish so far.
func (f *FakeBroker) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// Last returns the most recent publish on topic.
func (f *FakeBroker) Last(topic string) (Message, bool) {
	msgs := f.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Topic == topic {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// WithPrefix returns publishes whose topic starts with prefix.
func (f *FakeBroker) WithPrefix(prefix string) []Message {
	var out []Message
	for _, m := range f.Messages() {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

// Subscribed lists topics with a handler.
func (f *FakeBroker) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.handlers))
	for t := range f.handlers {
		out = append(out, t)
	}
	return out
}
