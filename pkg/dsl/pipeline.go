// Package dsl provides the fluent stream-processing pipeline: a mutable
// handle over a single logical event source that is progressively rewrapped
// by each DSL call. Events enter through the injection point (fed by a
// broker-consumer bridge or written manually), flow through the composed
// operator chain, and once a terminal binding exists are dispatched to the
// broker output topic.
//
// A Pipeline is built single-threaded: every operator call swaps the held
// source reference synchronously and returns the same handle for chaining.
// At run time events flow through the chain cooperatively; only async
// transforms (keyed aggregation, AsyncMap) and the time-based operators
// suspend an event's progress.
package dsl

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/streamdsl/pkg/broker"
	"github.com/ajitpratap0/streamdsl/pkg/compression"
	"github.com/ajitpratap0/streamdsl/pkg/logger"
	"github.com/ajitpratap0/streamdsl/pkg/metrics"
	"github.com/ajitpratap0/streamdsl/pkg/sderrors"
	"github.com/ajitpratap0/streamdsl/pkg/store"
	"github.com/ajitpratap0/streamdsl/pkg/streams"
)

// Pipeline is one stream-processing topology under construction and
// execution. It wraps exactly one logical event source plus the
// collaborators the stateful and production protocols depend on.
type Pipeline struct {
	topicName string
	isClone   bool

	store  store.KeyedStore
	client broker.Client

	injector *streams.Injector
	source   *streams.Stream

	baseCtx context.Context
	logger  *zap.Logger

	// production binding state, written exactly once by To
	bindMu           sync.Mutex
	bound            bool
	outputTopic      string
	outputPartitions int32
	produceMode      ProduceMode
	formatVersion    int
	compressionType  compression.Type
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithBaseContext sets the context under which the pipeline's own async
// transforms (keyed aggregation) run their store operations.
func WithBaseContext(ctx context.Context) Option {
	return func(p *Pipeline) { p.baseCtx = ctx }
}

// New creates a pipeline for the given input topic. The keyed store and the
// broker client are required collaborators; a nil value for either is a
// construction error and the pipeline never becomes usable. An empty topic
// name is allowed only for produce-only pipelines.
func New(topic string, st store.KeyedStore, client broker.Client, opts ...Option) (*Pipeline, error) {
	if st == nil {
		return nil, sderrors.New(sderrors.ErrorTypeValidation, "pipeline requires a keyed store").
			WithDetail("topic", topic)
	}
	if client == nil {
		return nil, sderrors.New(sderrors.ErrorTypeValidation, "pipeline requires a broker client").
			WithDetail("topic", topic)
	}

	p := newPipeline(topic, st, client, false, opts...)
	return p, nil
}

// newClone builds a pipeline produced by the composition layer. Clones are
// created without the producer assumption of a regular pipeline: binding a
// clone to an output topic re-acquires a producer through the client's
// ProducerSetup capability.
func newClone(st store.KeyedStore, client broker.Client, opts ...Option) *Pipeline {
	return newPipeline("", st, client, true, opts...)
}

func newPipeline(topic string, st store.KeyedStore, client broker.Client, isClone bool, opts ...Option) *Pipeline {
	p := &Pipeline{
		topicName: topic,
		isClone:   isClone,
		store:     st,
		client:    client,
		injector:  streams.NewInjector(),
		baseCtx:   context.Background(),
	}
	p.source = p.injector.Stream()
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get()
	}
	p.logger = p.logger.With(zap.String("pipeline", topic), zap.Bool("clone", isClone))
	return p
}

// Topic returns the input topic name this pipeline was constructed with.
func (p *Pipeline) Topic() string { return p.topicName }

// IsClone reports whether this pipeline was produced by the composition
// layer.
func (p *Pipeline) IsClone() bool { return p.isClone }

// Store returns the keyed store collaborator.
func (p *Pipeline) Store() store.KeyedStore { return p.store }

// Stats returns the broker client's producer statistics, or nil when the
// client has none.
func (p *Pipeline) Stats() *broker.Stats { return p.client.Stats() }

// WriteToStream injects one event synchronously into the source at the root
// of the pipeline. This is the entry point used by the event-source bridge.
func (p *Pipeline) WriteToStream(v interface{}) {
	metrics.EventsProcessed.WithLabelValues(p.topicName).Inc()
	p.injector.Write(v)
}

// Close completes the pipeline's root source. Completion ripples through
// the operator chain and terminates any terminal consumer.
func (p *Pipeline) Close() {
	p.injector.Close()
}

// ReplaceSource performs the clone/merge splice: the existing injection
// point is detached, a fresh one is created, and the held source becomes the
// union of the supplied source and a source fed by the fresh injection
// point. The pipeline therefore stays writable after participating in a
// join.
func (p *Pipeline) ReplaceSource(newSrc *streams.Stream) {
	p.injector.Detach()
	p.injector = streams.NewInjector()
	p.source = streams.Merge(newSrc, p.injector.Stream())
}

// Map applies fn to every event.
func (p *Pipeline) Map(fn func(v interface{}) (interface{}, error)) *Pipeline {
	p.source = streams.Map(p.source, fn)
	return p
}

// AsyncMap applies fn to every event on its own goroutine and flattens the
// pending results back into the event source. Results are emitted in
// completion order, not arrival order; see streams.AsyncMap.
func (p *Pipeline) AsyncMap(fn func(v interface{}) (interface{}, error)) *Pipeline {
	p.source = streams.AsyncMap(p.source, fn)
	return p
}

// Filter keeps only events for which pred returns true.
func (p *Pipeline) Filter(pred func(v interface{}) bool) *Pipeline {
	p.source = streams.Filter(p.source, pred)
	return p
}

// Tap invokes fn for every event without altering the stream.
func (p *Pipeline) Tap(fn func(v interface{})) *Pipeline {
	p.source = streams.Tap(p.source, fn)
	return p
}

// Scan emits the running accumulation of fn over the stream.
func (p *Pipeline) Scan(fn func(acc, v interface{}) interface{}, seed interface{}) *Pipeline {
	p.source = streams.Scan(p.source, fn, seed)
	return p
}

// Throttle drops events arriving within period of the last emitted event.
func (p *Pipeline) Throttle(period time.Duration) *Pipeline {
	p.source = streams.Throttle(p.source, period)
	return p
}

// Delay shifts every event by the given duration.
func (p *Pipeline) Delay(d time.Duration) *Pipeline {
	p.source = streams.Delay(p.source, d)
	return p
}

// Debounce emits an event only once the stream has been quiet for the given
// duration.
func (p *Pipeline) Debounce(d time.Duration) *Pipeline {
	p.source = streams.Debounce(p.source, d)
	return p
}

// Skip discards the first n events.
func (p *Pipeline) Skip(n int) *Pipeline {
	p.source = streams.Skip(p.source, n)
	return p
}

// Take forwards the first n events and then completes the pipeline.
func (p *Pipeline) Take(n int) *Pipeline {
	p.source = streams.Take(p.source, n)
	return p
}

// SkipWhile discards events while pred holds.
func (p *Pipeline) SkipWhile(pred func(v interface{}) bool) *Pipeline {
	p.source = streams.SkipWhile(p.source, pred)
	return p
}

// TakeWhile forwards events while pred holds, then completes.
func (p *Pipeline) TakeWhile(pred func(v interface{}) bool) *Pipeline {
	p.source = streams.TakeWhile(p.source, pred)
	return p
}

// SkipRepeats drops events equal to the previously emitted event.
func (p *Pipeline) SkipRepeats() *Pipeline {
	p.source = streams.SkipRepeats(p.source)
	return p
}

// SkipRepeatsWith drops events for which eq reports equality with the
// previously emitted event.
func (p *Pipeline) SkipRepeatsWith(eq func(a, b interface{}) bool) *Pipeline {
	p.source = streams.SkipRepeatsWith(p.source, eq)
	return p
}

// Slice forwards events with index in [start, end).
func (p *Pipeline) Slice(start, end int) *Pipeline {
	p.source = streams.Slice(p.source, start, end)
	return p
}

// Constant replaces every event with v.
func (p *Pipeline) Constant(v interface{}) *Pipeline {
	p.source = streams.Constant(p.source, v)
	return p
}

// Timestamp wraps every event in a streams.Timestamped.
func (p *Pipeline) Timestamp() *Pipeline {
	p.source = streams.Timestamp(p.source)
	return p
}

// Until forwards events until the other pipeline emits its first event.
func (p *Pipeline) Until(signal *Pipeline) *Pipeline {
	p.source = streams.Until(p.source, signal.source)
	return p
}

// Since discards events until the other pipeline emits its first event.
func (p *Pipeline) Since(signal *Pipeline) *Pipeline {
	p.source = streams.Since(p.source, signal.source)
	return p
}

// ForEach consumes the pipeline, invoking fn for every terminal event. It
// returns when the source completes, when an error item reaches the
// terminal, or when ctx is done.
func (p *Pipeline) ForEach(ctx context.Context, fn func(v interface{})) error {
	return drainStream(ctx, p.source, fn)
}

// Reduce consumes the pipeline, folding fn over every terminal event
// starting from seed, and returns the final accumulation.
func (p *Pipeline) Reduce(ctx context.Context, fn func(acc, v interface{}) interface{}, seed interface{}) (interface{}, error) {
	acc := seed
	err := drainStream(ctx, p.source, func(v interface{}) {
		acc = fn(acc, v)
	})
	return acc, err
}

// Drain consumes and discards the pipeline's terminal events.
func (p *Pipeline) Drain(ctx context.Context) error {
	return drainStream(ctx, p.source, func(interface{}) {})
}

// ChainForEach fans the source out before draining: fn observes every
// terminal event on a side branch while the pipeline itself stays
// consumable (for a later To or drain). The returned channel yields the
// drain result once the side branch completes.
//
// Unsuitable for production topologies: the multicast fan-out defers
// backpressure decisions to the engine's default policy, so one slow
// consumer stalls all of them.
func (p *Pipeline) ChainForEach(ctx context.Context, fn func(v interface{})) <-chan error {
	outs := streams.Multicast(p.source, 2)
	p.source = outs[0]

	errCh := make(chan error, 1)
	go func() {
		errCh <- drainStream(ctx, outs[1], fn)
		close(errCh)
	}()
	return errCh
}

// ChainReduce fans the source out and folds fn over the side branch,
// delivering the final accumulation on the returned channel. Carries the
// same production caveat as ChainForEach.
func (p *Pipeline) ChainReduce(ctx context.Context, fn func(acc, v interface{}) interface{}, seed interface{}) <-chan ReduceResult {
	outs := streams.Multicast(p.source, 2)
	p.source = outs[0]

	resCh := make(chan ReduceResult, 1)
	go func() {
		acc := seed
		err := drainStream(ctx, outs[1], func(v interface{}) {
			acc = fn(acc, v)
		})
		resCh <- ReduceResult{Value: acc, Err: err}
		close(resCh)
	}()
	return resCh
}

// ReduceResult is the outcome of a chained reduce.
type ReduceResult struct {
	Value interface{}
	Err   error
}

func drainStream(ctx context.Context, src *streams.Stream, fn func(v interface{})) error {
	for {
		select {
		case it, ok := <-src.Out():
			if !ok {
				return nil
			}
			if it.Err != nil {
				return it.Err
			}
			fn(it.Value)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
