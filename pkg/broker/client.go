// Package broker defines the broker client contract the production state
// machine drives, and a Kafka implementation built on sarama.
//
// The contract splits produce operations from producer lifecycle: every
// client can dispatch messages, but only clients that also implement
// ProducerSetup can create a producer for a new output topic. Clone
// pipelines re-acquire a producer at terminal-binding time and therefore
// require the ProducerSetup capability.
package broker

import (
	"context"
	"time"

	"github.com/ajitpratap0/streamdsl/pkg/compression"
)

// DefaultBufferFlushThreshold is the number of buffered messages that
// triggers an automatic flush.
const DefaultBufferFlushThreshold = 100

// Client is the produce-side broker contract.
type Client interface {
	// Send dispatches one message directly, without buffering.
	Send(ctx context.Context, topic string, message interface{}) error

	// Buffer queues one keyed message for batched dispatch, compressing
	// the payload with the given codec. Buffered messages are flushed
	// once DefaultBufferFlushThreshold messages accumulate for a topic,
	// or on the flush interval, whichever comes first.
	Buffer(ctx context.Context, topic, key string, message interface{}, compressionType compression.Type) error

	// BufferFormat queues one keyed message like Buffer, additionally
	// stamping the payload format version on the message.
	BufferFormat(ctx context.Context, topic, key string, message interface{}, version int, compressionType compression.Type) error

	// Stats returns a snapshot of producer statistics, or nil when the
	// client has none to report.
	Stats() *Stats
}

// ProducerSetup is the optional producer-lifecycle capability. Clients that
// implement it can create a producer (and, where the broker requires it, the
// topic itself) for an output topic.
type ProducerSetup interface {
	// SetupProducer prepares a producer for the topic with the given
	// partition count, returning once the producer is ready to dispatch.
	SetupProducer(ctx context.Context, topic string, partitions int32) error
}

// Stats is a snapshot of a client's producer counters.
type Stats struct {
	MessagesSent     int64     `json:"messages_sent"`
	MessagesBuffered int64     `json:"messages_buffered"`
	MessagesFailed   int64     `json:"messages_failed"`
	BytesProduced    int64     `json:"bytes_produced"`
	LastProducedTime time.Time `json:"last_produced_time"`
}
