package broker

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/streamdsl/pkg/compression"
)

// MockMessage is one dispatch recorded by MockClient.
type MockMessage struct {
	Topic       string
	Key         string
	Message     interface{}
	Version     int
	Compression compression.Type
	Mode        string // send, buffer, buffer_format
}

// MockClient is an in-memory Client with the ProducerSetup capability,
// used in tests and local topology development. It records every dispatch
// in order.
type MockClient struct {
	mu       sync.Mutex
	messages []MockMessage
	setups   []string

	// SendErr, when set, is returned from every dispatch.
	SendErr error
	// SetupErr, when set, is returned from SetupProducer.
	SetupErr error

	stats Stats
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Send implements Client.
func (m *MockClient) Send(_ context.Context, topic string, message interface{}) error {
	return m.record(MockMessage{Topic: topic, Message: message, Mode: "send"})
}

// Buffer implements Client.
func (m *MockClient) Buffer(_ context.Context, topic, key string, message interface{}, compressionType compression.Type) error {
	return m.record(MockMessage{Topic: topic, Key: key, Message: message, Compression: compressionType, Mode: "buffer"})
}

// BufferFormat implements Client.
func (m *MockClient) BufferFormat(_ context.Context, topic, key string, message interface{}, version int, compressionType compression.Type) error {
	return m.record(MockMessage{Topic: topic, Key: key, Message: message, Version: version, Compression: compressionType, Mode: "buffer_format"})
}

func (m *MockClient) record(msg MockMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		m.stats.MessagesFailed++
		return m.SendErr
	}
	m.messages = append(m.messages, msg)
	m.stats.MessagesSent++
	m.stats.LastProducedTime = time.Now()
	return nil
}

// SetupProducer implements ProducerSetup.
func (m *MockClient) SetupProducer(_ context.Context, topic string, partitions int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetupErr != nil {
		return m.SetupErr
	}
	m.setups = append(m.setups, topic)
	return nil
}

// Messages returns a copy of all recorded dispatches.
func (m *MockClient) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Setups returns the topics for which SetupProducer was called.
func (m *MockClient) Setups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.setups))
	copy(out, m.setups)
	return out
}

// Stats implements Client.
func (m *MockClient) Stats() *Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	return &s
}

// ProduceOnlyClient wraps a Client and hides any ProducerSetup capability.
// A clone pipeline bound through it fails its terminal binding, which is the
// expected behavior for clients that cannot create producers.
type ProduceOnlyClient struct {
	inner Client
}

// NewProduceOnlyClient wraps inner, exposing only the Client contract.
func NewProduceOnlyClient(inner Client) *ProduceOnlyClient {
	return &ProduceOnlyClient{inner: inner}
}

// Send implements Client.
func (p *ProduceOnlyClient) Send(ctx context.Context, topic string, message interface{}) error {
	return p.inner.Send(ctx, topic, message)
}

// Buffer implements Client.
func (p *ProduceOnlyClient) Buffer(ctx context.Context, topic, key string, message interface{}, compressionType compression.Type) error {
	return p.inner.Buffer(ctx, topic, key, message, compressionType)
}

// BufferFormat implements Client.
func (p *ProduceOnlyClient) BufferFormat(ctx context.Context, topic, key string, message interface{}, version int, compressionType compression.Type) error {
	return p.inner.BufferFormat(ctx, topic, key, message, version, compressionType)
}

// Stats implements Client.
func (p *ProduceOnlyClient) Stats() *Stats {
	return p.inner.Stats()
}
