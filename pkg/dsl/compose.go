package dsl

import (
	"github.com/ajitpratap0/streamdsl/pkg/streams"
)

// The composition layer produces new pipelines whose event source is
// derived from combining two existing sources. Every combinator returns a
// clone: a pipeline that inherits the left side's store and client but must
// re-acquire a producer (via broker.ProducerSetup) if it is later bound to
// an output topic. The clone is spliced through ReplaceSource, so it stays
// writable through its own fresh injection point.

// Merge returns a clone whose source is the union of both pipelines' event
// sources; both originals keep flowing into it.
func Merge(left, right *Pipeline, opts ...Option) *Pipeline {
	return spliceClone(left, streams.Merge(left.source, right.source), opts)
}

// Zip returns a clone emitting one combined event per FIFO-matched pair,
// one from each side.
func Zip(left, right *Pipeline, fn func(l, r interface{}) interface{}, opts ...Option) *Pipeline {
	return spliceClone(left, streams.Zip(left.source, right.source, fn), opts)
}

// Combine returns a clone emitting on every event from either side,
// combined with the other side's most recent value. The first combined
// event is emitted only once both sides have emitted at least once.
func Combine(left, right *Pipeline, fn func(l, r interface{}) interface{}, opts ...Option) *Pipeline {
	return spliceClone(left, streams.Combine(left.source, right.source, fn), opts)
}

// Sample returns a clone driven by the sampler pipeline: on each sampler
// event it combines the most recent value from each data pipeline.
func Sample(sampler, left, right *Pipeline, fn func(l, r interface{}) interface{}, opts ...Option) *Pipeline {
	return spliceClone(left, streams.Sample(sampler.source, left.source, right.source, fn), opts)
}

// Join flattens a pipeline of streams into a clone over a single source:
// every value of every inner stream is forwarded as it arrives. This is the
// basis for dynamic per-key subtopologies fanning back into one pipeline.
func Join(outer *Pipeline, opts ...Option) *Pipeline {
	return spliceClone(outer, streams.Join(outer.source), opts)
}

func spliceClone(donor *Pipeline, combined *streams.Stream, opts []Option) *Pipeline {
	clone := newClone(donor.store, donor.client, opts...)
	clone.ReplaceSource(combined)
	return clone
}
