// Package aggregate implements the stateful aggregation actions (count, sum,
// min, max by key) used by the pipeline DSL. Each action turns one incoming
// event into a read-modify-write against the keyed store without halting the
// pipeline.
//
// An event whose key field is absent (or that is not a map at all) passes
// through unmodified and leaves the store untouched. This silent
// pass-through is part of the public contract: topologies mixing keyed and
// unkeyed events aggregate only the keyed ones.
package aggregate

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/streamdsl/pkg/metrics"
	"github.com/ajitpratap0/streamdsl/pkg/sderrors"
	"github.com/ajitpratap0/streamdsl/pkg/store"
)

// Action is one keyed aggregation step. Execute performs at most one store
// read and one store write and returns the event to forward downstream.
type Action interface {
	// Execute processes one event. Store failures are returned as errors
	// and surface on the pipeline as a failed async transform.
	Execute(ctx context.Context, event interface{}) (interface{}, error)
}

// Count counts events per key and annotates each event with the running
// count for its key.
type Count struct {
	store    store.KeyedStore
	keyField string
	outField string
}

// NewCount creates a count action. The running count is written back onto
// the event under outField.
func NewCount(st store.KeyedStore, keyField, outField string) *Count {
	return &Count{store: st, keyField: keyField, outField: outField}
}

// Execute implements Action.
func (c *Count) Execute(ctx context.Context, event interface{}) (interface{}, error) {
	m, key, ok := extractKey(event, c.keyField)
	if !ok {
		return event, nil
	}

	count, err := c.store.Increment(ctx, key)
	if err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "count accumulator update failed").
			WithDetail("key", key)
	}

	metrics.AggregateUpdates.WithLabelValues("count").Inc()
	m[c.outField] = count
	return m, nil
}

// Sum sums a value field per key and annotates each event with the running
// sum for its key.
type Sum struct {
	store      store.KeyedStore
	keyField   string
	valueField string
	outField   string
}

// NewSum creates a sum action over event[valueField]. The running sum is
// written back onto the event under outField.
func NewSum(st store.KeyedStore, keyField, valueField, outField string) *Sum {
	return &Sum{store: st, keyField: keyField, valueField: valueField, outField: outField}
}

// Execute implements Action.
func (s *Sum) Execute(ctx context.Context, event interface{}) (interface{}, error) {
	m, key, ok := extractKey(event, s.keyField)
	if !ok {
		return event, nil
	}

	value, ok := toFloat(m[s.valueField])
	if !ok {
		return event, nil
	}

	current, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sum accumulator read failed").
			WithDetail("key", key)
	}
	sum, _ := toFloat(current)
	sum += value

	if err := s.store.Put(ctx, key, sum); err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sum accumulator write failed").
			WithDetail("key", key)
	}

	metrics.AggregateUpdates.WithLabelValues("sum").Inc()
	m[s.outField] = sum
	return m, nil
}

// Min tracks the per-key minimum of a value field. The event itself is
// forwarded unmodified; callers read the extremum from the store.
type Min struct {
	store      store.KeyedStore
	keyField   string
	valueField string
}

// NewMin creates a min action over event[valueField].
func NewMin(st store.KeyedStore, keyField, valueField string) *Min {
	return &Min{store: st, keyField: keyField, valueField: valueField}
}

// Execute implements Action.
func (m *Min) Execute(ctx context.Context, event interface{}) (interface{}, error) {
	return compareAndStore(ctx, m.store, event, m.keyField, m.valueField, "min",
		func(candidate, stored float64) bool { return candidate < stored })
}

// Max tracks the per-key maximum of a value field. The event itself is
// forwarded unmodified; callers read the extremum from the store.
type Max struct {
	store      store.KeyedStore
	keyField   string
	valueField string
}

// NewMax creates a max action over event[valueField].
func NewMax(st store.KeyedStore, keyField, valueField string) *Max {
	return &Max{store: st, keyField: keyField, valueField: valueField}
}

// Execute implements Action.
func (m *Max) Execute(ctx context.Context, event interface{}) (interface{}, error) {
	return compareAndStore(ctx, m.store, event, m.keyField, m.valueField, "max",
		func(candidate, stored float64) bool { return candidate > stored })
}

func compareAndStore(ctx context.Context, st store.KeyedStore, event interface{},
	keyField, valueField, action string, replace func(candidate, stored float64) bool) (interface{}, error) {

	m, key, ok := extractKey(event, keyField)
	if !ok {
		return event, nil
	}

	candidate, ok := toFloat(m[valueField])
	if !ok {
		return event, nil
	}

	current, exists, err := st.Get(ctx, key)
	if err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, action+" accumulator read failed").
			WithDetail("key", key)
	}

	if exists {
		stored, valid := toFloat(current)
		if valid && !replace(candidate, stored) {
			return event, nil
		}
	}

	// first occurrence, or a new extremum
	if err := st.Put(ctx, key, candidate); err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, action+" accumulator write failed").
			WithDetail("key", key)
	}

	metrics.AggregateUpdates.WithLabelValues(action).Inc()
	return event, nil
}

// extractKey pulls the string form of event[keyField]. Returns ok=false for
// non-map events and absent keys, which the actions treat as pass-through.
func extractKey(event interface{}, keyField string) (map[string]interface{}, string, bool) {
	m, ok := event.(map[string]interface{})
	if !ok {
		return nil, "", false
	}
	raw, ok := m[keyField]
	if !ok || raw == nil {
		return nil, "", false
	}
	switch k := raw.(type) {
	case string:
		return m, k, true
	default:
		return m, fmt.Sprintf("%v", k), true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
