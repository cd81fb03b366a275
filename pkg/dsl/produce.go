package dsl

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/streamdsl/pkg/broker"
	"github.com/ajitpratap0/streamdsl/pkg/compression"
	"github.com/ajitpratap0/streamdsl/pkg/metrics"
	"github.com/ajitpratap0/streamdsl/pkg/sderrors"
	"github.com/ajitpratap0/streamdsl/pkg/streams"
)

// ProduceMode selects the dispatch strategy of a terminal binding.
type ProduceMode string

const (
	// ProduceSend dispatches each payload directly through the client.
	ProduceSend ProduceMode = "send"
	// ProduceBuffer queues keyed payloads with compression.
	ProduceBuffer ProduceMode = "buffer"
	// ProduceBufferFormat queues keyed payloads with a format version and
	// compression.
	ProduceBufferFormat ProduceMode = "buffer_format"
)

// ParseProduceMode normalizes a produce mode: input is case-insensitive and
// is normalized to lower case. An unknown mode is a configuration error
// naming the valid set.
func ParseProduceMode(raw string) (ProduceMode, error) {
	switch mode := ProduceMode(strings.ToLower(raw)); mode {
	case ProduceSend, ProduceBuffer, ProduceBufferFormat:
		return mode, nil
	default:
		return "", sderrors.Newf(sderrors.ErrorTypeConfig,
			"invalid produce mode %q, must be one of: send, buffer, buffer_format", raw)
	}
}

type produceConfig struct {
	partitions      int32
	modeRaw         string
	formatVersion   int
	compressionType compression.Type
	onProducerError func(error)
}

// ProduceOption configures a terminal binding.
type ProduceOption func(*produceConfig)

// WithPartitions sets the output topic's partition count (default 1).
func WithPartitions(n int32) ProduceOption {
	return func(c *produceConfig) { c.partitions = n }
}

// WithProduceMode sets the dispatch strategy (default "send"). Input is
// case-insensitive.
func WithProduceMode(mode string) ProduceOption {
	return func(c *produceConfig) { c.modeRaw = mode }
}

// WithFormatVersion sets the payload format version stamped by the
// buffer_format mode (default 1).
func WithFormatVersion(v int) ProduceOption {
	return func(c *produceConfig) { c.formatVersion = v }
}

// WithCompression sets the payload compression for the buffered modes
// (default none).
func WithCompression(t compression.Type) ProduceOption {
	return func(c *produceConfig) { c.compressionType = t }
}

// WithProducerErrorHandler routes producer setup failures and per-message
// dispatch failures to fn instead of the default handling (setup failures
// returned from To, dispatch failures logged and swallowed).
func WithProducerErrorHandler(fn func(error)) ProduceOption {
	return func(c *produceConfig) { c.onProducerError = fn }
}

// To establishes the pipeline's terminal binding: every terminal event is
// dispatched to the output topic according to the produce mode. A pipeline
// binds at most once; a second call is a configuration error regardless of
// whether the first binding succeeded.
//
// A non-clone pipeline binds immediately, on the assumption that its owner
// already holds a live producer for the topic. A clone re-acquires a
// producer: its client must implement broker.ProducerSetup — checked before
// any event is consumed — and setup must complete before To returns. A
// setup failure is routed to the error handler when one was supplied (To
// then returns nil without attaching a terminal consumer); otherwise it is
// returned.
//
// Per-message dispatch failures are non-fatal: each is caught
// independently, forwarded to the error handler when supplied and logged
// otherwise, and the pipeline continues with subsequent messages. No
// message-level retry is performed.
func (p *Pipeline) To(ctx context.Context, topic string, opts ...ProduceOption) error {
	cfg := produceConfig{
		partitions:      1,
		modeRaw:         string(ProduceSend),
		formatVersion:   1,
		compressionType: compression.None,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p.bindMu.Lock()
	if p.bound {
		p.bindMu.Unlock()
		return sderrors.New(sderrors.ErrorTypeConfig, "binding already established").
			WithDetail("output_topic", p.outputTopic)
	}
	// The handle is bound from here on, even if the rest of the binding
	// fails: bound transitions false to true exactly once.
	p.bound = true

	mode, err := ParseProduceMode(cfg.modeRaw)
	if err != nil {
		p.bindMu.Unlock()
		return err
	}

	p.outputTopic = topic
	p.outputPartitions = cfg.partitions
	p.produceMode = mode
	p.formatVersion = cfg.formatVersion
	p.compressionType = cfg.compressionType
	p.bindMu.Unlock()

	if p.isClone {
		setup, ok := p.client.(broker.ProducerSetup)
		if !ok {
			return sderrors.New(sderrors.ErrorTypeConfig,
				"clone pipeline requires a producer-setup-capable broker client").
				WithDetail("output_topic", topic)
		}
		if err := setup.SetupProducer(ctx, topic, cfg.partitions); err != nil {
			err = sderrors.Wrap(err, sderrors.ErrorTypeConnection, "producer setup failed").
				WithDetail("output_topic", topic)
			if cfg.onProducerError != nil {
				cfg.onProducerError(err)
				return nil
			}
			return err
		}
	}

	p.logger.Info("terminal binding established",
		zap.String("output_topic", topic),
		zap.Int32("partitions", cfg.partitions),
		zap.String("mode", string(mode)))

	go p.produceLoop(p.source, topic, mode, cfg)
	return nil
}

// produceLoop is the terminal consumer: it dispatches every terminal event
// to the broker client according to the produce mode.
func (p *Pipeline) produceLoop(src *streams.Stream, topic string, mode ProduceMode, cfg produceConfig) {
	ctx := p.baseCtx
	for it := range src.Out() {
		if it.Err != nil {
			p.handleProduceError(it.Err, topic, cfg)
			continue
		}

		var err error
		switch mode {
		case ProduceSend:
			err = p.client.Send(ctx, topic, it.Value)
		case ProduceBuffer:
			err = p.client.Buffer(ctx, topic, messageKey(it.Value), it.Value, cfg.compressionType)
		case ProduceBufferFormat:
			err = p.client.BufferFormat(ctx, topic, messageKey(it.Value), it.Value, cfg.formatVersion, cfg.compressionType)
		}
		if err != nil {
			metrics.MessagesProduced.WithLabelValues(topic, string(mode), "failure").Inc()
			p.handleProduceError(err, topic, cfg)
		}
	}
	p.logger.Debug("terminal consumer finished", zap.String("output_topic", topic))
}

func (p *Pipeline) handleProduceError(err error, topic string, cfg produceConfig) {
	if cfg.onProducerError != nil {
		cfg.onProducerError(err)
		return
	}
	p.logger.Error("message dispatch failed",
		zap.String("output_topic", topic),
		zap.Error(err))
}

// messageKey derives the broker message key for buffered dispatch: the
// event's "key" field when present, the envelope ID for formatted events,
// otherwise empty.
func messageKey(v interface{}) string {
	switch e := v.(type) {
	case Envelope:
		return e.ID
	case *Envelope:
		return e.ID
	case map[string]interface{}:
		if k, ok := e["key"].(string); ok {
			return k
		}
	}
	return ""
}
