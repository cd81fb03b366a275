// Package streamdsl provides a declarative, single-process stream-processing
// layer over Kafka topics: a fluent pipeline handle composing transformations
// (map, filter, throttle, windowless keyed aggregation) and stream
// combinators (merge, zip, combine, sample, join) over a push-based channel
// engine, with an at-most-once terminal binding that republishes results to
// an output topic.
//
// # Architecture
//
// A topology is built by chaining operators on a Pipeline handle. Each call
// rewraps the handle's single logical event source; at run time every stage
// is a goroutine pumping items from its upstream channel to its downstream
// channel. Errors raised by transforms travel the same channel as values and
// surface at the terminal consumer instead of tearing the chain down.
//
// Stateful aggregation (count, sum, min, max by key) runs as asynchronous
// read-modify-write cycles against a pluggable keyed store: in-memory,
// SQLite-backed, or MongoDB-backed.
//
// Binding a pipeline to an output topic is a one-shot operation. Three
// produce modes are available: direct synchronous dispatch, compressed
// keyed buffering, and compressed keyed buffering with a format version
// stamp.
//
// # Quick Start
//
// Count words from an input stream and publish the running counts:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/streamdsl/pkg/broker"
//	    "github.com/ajitpratap0/streamdsl/pkg/dsl"
//	    "github.com/ajitpratap0/streamdsl/pkg/store"
//	)
//
//	client := broker.NewSaramaClient(broker.DefaultConfig(), logger)
//	_ = client.Connect()
//
//	p, _ := dsl.New("words", store.NewMemoryStore(), client)
//	p.Map(toEvent).
//	    Filter(hasKey).
//	    CountByKey("key", "count")
//	_ = p.To(context.Background(), "wordcount-output")
//
//	p.WriteToStream("if")
//	p.WriteToStream("bla")
//
// # Key Packages
//
//	pkg/dsl         - Fluent pipeline handle, composition, terminal binding
//	pkg/streams     - Push-based channel engine and stream operators
//	pkg/aggregate   - Keyed aggregation actions (count, sum, min, max)
//	pkg/store       - Keyed accumulator stores (memory, sqlite, mongodb)
//	pkg/broker      - Broker client contract and Kafka implementation
//	pkg/compression - Payload codecs for buffered production
package streamdsl
