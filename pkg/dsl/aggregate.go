package dsl

import (
	"github.com/ajitpratap0/streamdsl/pkg/aggregate"
)

// CountByKey counts events per event[keyField] and annotates each keyed
// event with its running count under outField. Events without the key field
// pass through unchanged and do not touch the store.
//
// The aggregation is an async transform: each event performs a
// read-modify-write against the keyed store while later events proceed
// concurrently, so terminal order follows completion order.
func (p *Pipeline) CountByKey(keyField, outField string) *Pipeline {
	return p.runAction(aggregate.NewCount(p.store, keyField, outField))
}

// SumByKey sums event[valueField] per event[keyField] and annotates each
// keyed event with its running sum under outField.
func (p *Pipeline) SumByKey(keyField, valueField, outField string) *Pipeline {
	return p.runAction(aggregate.NewSum(p.store, keyField, valueField, outField))
}

// MinByKey tracks the per-key minimum of event[valueField] in the keyed
// store. Events flow through structurally unchanged; read the extremum from
// the store directly.
func (p *Pipeline) MinByKey(keyField, valueField string) *Pipeline {
	return p.runAction(aggregate.NewMin(p.store, keyField, valueField))
}

// MaxByKey tracks the per-key maximum of event[valueField] in the keyed
// store. Events flow through structurally unchanged; read the extremum from
// the store directly.
func (p *Pipeline) MaxByKey(keyField, valueField string) *Pipeline {
	return p.runAction(aggregate.NewMax(p.store, keyField, valueField))
}

func (p *Pipeline) runAction(action aggregate.Action) *Pipeline {
	return p.AsyncMap(func(v interface{}) (interface{}, error) {
		return action.Execute(p.baseCtx, v)
	})
}
