package dsl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/streamdsl/pkg/broker"
	"github.com/ajitpratap0/streamdsl/pkg/sderrors"
	"github.com/ajitpratap0/streamdsl/pkg/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.MemoryStore, *broker.MockClient) {
	t.Helper()
	st := store.NewMemoryStore()
	client := broker.NewMockClient()
	p, err := New("test-input", st, client)
	require.NoError(t, err)
	return p, st, client
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		_, err := New("t", nil, broker.NewMockClient())
		require.Error(t, err)
		assert.True(t, sderrors.IsType(err, sderrors.ErrorTypeValidation))
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := New("t", store.NewMemoryStore(), nil)
		require.Error(t, err)
		assert.True(t, sderrors.IsType(err, sderrors.ErrorTypeValidation))
	})
}

func TestPipelineAccessors(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	assert.Equal(t, "test-input", p.Topic())
	assert.False(t, p.IsClone())
	assert.Same(t, store.KeyedStore(st), p.Store())
}

func TestWriteToStreamForEach(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	p.Map(func(v interface{}) (interface{}, error) {
		return v.(int) * 2, nil
	}).Filter(func(v interface{}) bool {
		return v.(int) > 2
	})

	for i := 1; i <= 3; i++ {
		p.WriteToStream(i)
	}
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{4, 6}, got)
}

func TestSkipTakeThroughPipeline(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.Skip(2).Take(3)

	for i := 0; i < 10; i++ {
		p.WriteToStream(i)
	}
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2, 3, 4}, got)
}

func TestReduce(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	for i := 1; i <= 4; i++ {
		p.WriteToStream(i)
	}
	p.Close()

	total, err := p.Reduce(context.Background(), func(acc, v interface{}) interface{} {
		return acc.(int) + v.(int)
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestForEachStopsOnContextCancel(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.ForEach(ctx, func(interface{}) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChainForEachObservesWithoutConsuming(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	var observed []interface{}
	sideDone := p.ChainForEach(context.Background(), func(v interface{}) {
		observed = append(observed, v)
	})

	terminal := make(chan []interface{}, 1)
	go func() {
		var vals []interface{}
		_ = p.ForEach(context.Background(), func(v interface{}) {
			vals = append(vals, v)
		})
		terminal <- vals
	}()

	p.WriteToStream(1)
	p.WriteToStream(2)
	p.Close()

	require.NoError(t, <-sideDone)
	assert.Equal(t, []interface{}{1, 2}, observed)
	assert.Equal(t, []interface{}{1, 2}, <-terminal)
}

func TestChainReduce(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	resCh := p.ChainReduce(context.Background(), func(acc, v interface{}) interface{} {
		return acc.(int) + v.(int)
	}, 0)

	go func() {
		_ = p.Drain(context.Background())
	}()

	p.WriteToStream(3)
	p.WriteToStream(4)
	p.Close()

	res := <-resCh
	require.NoError(t, res.Err)
	assert.Equal(t, 7, res.Value)
}

func TestReplaceSourceKeepsPipelineWritable(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	donor, _, _ := newTestPipeline(t)

	p.ReplaceSource(donor.source)

	donor.WriteToStream("from-donor")
	donor.Close()
	p.WriteToStream("direct")
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{"from-donor", "direct"}, got)
}

func TestMergeUnionAndCloneWritability(t *testing.T) {
	left, _, _ := newTestPipeline(t)
	right, _, _ := newTestPipeline(t)

	merged := Merge(left, right)
	assert.True(t, merged.IsClone())
	assert.Same(t, left.Store(), merged.Store())

	left.WriteToStream("l")
	right.WriteToStream("r")
	merged.WriteToStream("m")
	left.Close()
	right.Close()
	merged.Close()

	var got []interface{}
	err := merged.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{"l", "r", "m"}, got)
}

func TestZipPipelines(t *testing.T) {
	left, _, _ := newTestPipeline(t)
	right, _, _ := newTestPipeline(t)

	zipped := Zip(left, right, func(l, r interface{}) interface{} {
		return l.(string) + r.(string)
	})

	left.WriteToStream("a")
	left.WriteToStream("b")
	right.WriteToStream("1")
	right.WriteToStream("2")
	left.Close()
	right.Close()
	zipped.Close()

	var got []interface{}
	err := zipped.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a1", "b2"}, got)
}

func TestCombinePipelines(t *testing.T) {
	left, _, _ := newTestPipeline(t)
	right, _, _ := newTestPipeline(t)

	combined := Combine(left, right, func(l, r interface{}) interface{} {
		return []interface{}{l, r}
	})

	left.WriteToStream(1)
	right.WriteToStream("a")
	left.Close()
	right.Close()
	combined.Close()

	var got []interface{}
	err := combined.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, []interface{}{1, "a"}, got[0])
}

func TestCountByKeyTopology(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	p.CountByKey("key", "count")

	words := []string{"if", "bla", "if", "blup", "if", "bla", "if", "bla", "if", "blup"}
	for _, w := range words {
		p.WriteToStream(map[string]interface{}{"key": w})
	}
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	require.Len(t, got, len(words))

	ctx := context.Background()
	expected := map[string]int64{"if": 5, "bla": 3, "blup": 2}
	for key, want := range expected {
		v, found, err := st.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, v, "final count for %q", key)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.MapToFormat("word", nil).MapFromFormat()

	payload := map[string]interface{}{"key": "if", "count": int64(1)}
	p.WriteToStream(payload)
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}

func TestMapToFormatFields(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.MapToFormat("sensor", func(payload interface{}) string {
		return payload.(map[string]interface{})["key"].(string)
	})

	p.WriteToStream(map[string]interface{}{"key": "s-1"})
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	env, ok := got[0].(Envelope)
	require.True(t, ok)
	assert.Equal(t, "sensor", env.Type)
	assert.Equal(t, "s-1", env.ID)
	assert.NotEmpty(t, env.Time)
	_, err = time.Parse(time.RFC3339Nano, env.Time)
	assert.NoError(t, err)
}

func TestMapToFormatGeneratesUniqueIDs(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.MapToFormat("word", nil)

	p.WriteToStream("a")
	p.WriteToStream("b")
	p.Close()

	ids := map[string]bool{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		ids[v.(Envelope).ID] = true
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestMapFromFormatUnwrapsDecodedMap(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.MapFromFormat()

	// the shape a JSON decode of an envelope produces
	p.WriteToStream(map[string]interface{}{
		"payload": map[string]interface{}{"key": "a"},
		"time":    "2026-01-01T00:00:00Z",
		"type":    "word",
		"id":      "x",
	})
	p.WriteToStream("plain value")
	p.Close()

	var got []interface{}
	err := p.ForEach(context.Background(), func(v interface{}) {
		got = append(got, v)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, map[string]interface{}{"key": "a"}, got[0])
	assert.Equal(t, "plain value", got[1])
}
