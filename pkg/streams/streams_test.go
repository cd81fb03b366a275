package streams

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains a stream to completion, returning values and the first
// error item encountered.
func collect(t *testing.T, s *Stream) ([]interface{}, error) {
	t.Helper()
	var out []interface{}
	var firstErr error
	for it := range s.Out() {
		if it.Err != nil {
			if firstErr == nil {
				firstErr = it.Err
			}
			continue
		}
		out = append(out, it.Value)
	}
	return out, firstErr
}

func TestInjectorWriteAndClose(t *testing.T) {
	inj := NewInjector()
	go func() {
		inj.Write(1)
		inj.Write(2)
		inj.Close()
	}()

	values, err := collect(t, inj.Stream())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, values)
}

func TestInjectorWriteAfterDetachIsDropped(t *testing.T) {
	inj := NewInjector()
	inj.Write(1)
	inj.Detach()
	inj.Write(2) // must not panic or deliver

	values, err := collect(t, inj.Stream())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1}, values)
}

func TestMap(t *testing.T) {
	src := From(1, 2, 3)
	doubled := Map(src, func(v interface{}) (interface{}, error) {
		return v.(int) * 2, nil
	})

	values, err := collect(t, doubled)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2, 4, 6}, values)
}

func TestMapErrorBecomesErrorItem(t *testing.T) {
	boom := errors.New("boom")
	src := From(1, 2, 3)
	mapped := Map(src, func(v interface{}) (interface{}, error) {
		if v.(int) == 2 {
			return nil, boom
		}
		return v, nil
	})

	values, err := collect(t, mapped)
	assert.Equal(t, boom, err)
	assert.Equal(t, []interface{}{1, 3}, values)
}

func TestAsyncMapDeliversAllResults(t *testing.T) {
	src := From(1, 2, 3, 4, 5)
	mapped := AsyncMap(src, func(v interface{}) (interface{}, error) {
		return v.(int) * 10, nil
	})

	values, err := collect(t, mapped)
	require.NoError(t, err)
	// completion order is unspecified; check the multiset
	assert.ElementsMatch(t, []interface{}{10, 20, 30, 40, 50}, values)
}

func TestAsyncMapPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	src := From(1, 2)
	mapped := AsyncMap(src, func(v interface{}) (interface{}, error) {
		if v.(int) == 1 {
			return nil, boom
		}
		return v, nil
	})

	values, err := collect(t, mapped)
	assert.Equal(t, boom, err)
	assert.Equal(t, []interface{}{2}, values)
}

func TestFilter(t *testing.T) {
	src := From(1, 2, 3, 4, 5)
	evens := Filter(src, func(v interface{}) bool { return v.(int)%2 == 0 })

	values, err := collect(t, evens)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2, 4}, values)
}

func TestTap(t *testing.T) {
	var seen []interface{}
	src := From("a", "b")
	tapped := Tap(src, func(v interface{}) { seen = append(seen, v) })

	values, err := collect(t, tapped)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, values)
	assert.Equal(t, []interface{}{"a", "b"}, seen)
}

func TestScan(t *testing.T) {
	src := From(1, 2, 3)
	sums := Scan(src, func(acc, v interface{}) interface{} {
		return acc.(int) + v.(int)
	}, 0)

	values, err := collect(t, sums)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 3, 6}, values)
}

func TestSkipTakeProperty(t *testing.T) {
	// skip(n) then take(m) on length L yields min(m, max(0, L-n)) events
	// in original relative order.
	cases := []struct {
		length, skip, take, want int
	}{
		{10, 3, 4, 4},
		{10, 8, 4, 2},
		{10, 12, 4, 0},
		{5, 0, 5, 5},
		{5, 0, 9, 5},
	}

	for _, tc := range cases {
		input := make([]interface{}, tc.length)
		for i := range input {
			input[i] = i
		}
		result := Take(Skip(From(input...), tc.skip), tc.take)

		values, err := collect(t, result)
		require.NoError(t, err)
		require.Len(t, values, tc.want)
		for i, v := range values {
			assert.Equal(t, tc.skip+i, v, "relative order must be preserved")
		}
	}
}

func TestSkipWhileTakeWhile(t *testing.T) {
	small := func(v interface{}) bool { return v.(int) < 3 }

	values, err := collect(t, SkipWhile(From(1, 2, 3, 1, 2), small))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{3, 1, 2}, values)

	values, err = collect(t, TakeWhile(From(1, 2, 3, 1, 2), small))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, values)
}

func TestSkipRepeats(t *testing.T) {
	values, err := collect(t, SkipRepeats(From(1, 1, 2, 2, 2, 1, 3)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2, 1, 3}, values)
}

func TestSlice(t *testing.T) {
	values, err := collect(t, Slice(From(0, 1, 2, 3, 4, 5), 1, 4))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2, 3}, values)
}

func TestConstant(t *testing.T) {
	values, err := collect(t, Constant(From(1, 2, 3), "x"))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"x", "x", "x"}, values)
}

func TestTimestamp(t *testing.T) {
	before := time.Now()
	values, err := collect(t, Timestamp(From("v")))
	require.NoError(t, err)
	require.Len(t, values, 1)

	ts, ok := values[0].(Timestamped)
	require.True(t, ok)
	assert.Equal(t, "v", ts.Value)
	assert.False(t, ts.Time.Before(before))
}

func TestThrottleKeepsFirstOfBurst(t *testing.T) {
	// All writes land well within the period, so only the first survives.
	values, err := collect(t, Throttle(From(1, 2, 3, 4), time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1}, values)
}

func TestDebounceFlushesTrailingValueOnCompletion(t *testing.T) {
	values, err := collect(t, Debounce(From(1, 2, 3), time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{3}, values)
}

func TestMerge(t *testing.T) {
	left := From(1, 2, 3)
	right := From(4, 5)

	values, err := collect(t, Merge(left, right))
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{1, 2, 3, 4, 5}, values)
}

func TestZipPairsFIFO(t *testing.T) {
	left := From(1, 2, 3)
	right := From("a", "b")

	zipped := Zip(left, right, func(l, r interface{}) interface{} {
		return []interface{}{l, r}
	})

	values, err := collect(t, zipped)
	require.NoError(t, err)
	// completes when the shorter side completes
	assert.Equal(t, []interface{}{
		[]interface{}{1, "a"},
		[]interface{}{2, "b"},
	}, values)
}

func TestCombineWaitsForBothSides(t *testing.T) {
	leftInj := NewInjector()
	rightInj := NewInjector()

	combined := Combine(leftInj.Stream(), rightInj.Stream(), func(l, r interface{}) interface{} {
		return []interface{}{l, r}
	})

	leftInj.Write(1)
	leftInj.Write(2)
	rightInj.Write("a")
	leftInj.Close()
	rightInj.Close()

	values, err := collect(t, combined)
	require.NoError(t, err)
	require.NotEmpty(t, values)
	// every emission carries the latest right value; the final one pairs it
	// with the latest left value
	for _, v := range values {
		assert.Equal(t, "a", v.([]interface{})[1])
	}
	assert.Equal(t, []interface{}{2, "a"}, values[len(values)-1])
}

func TestSampleSnapshotsOnSamplerEvent(t *testing.T) {
	samplerInj := NewInjector()
	leftInj := NewInjector()
	rightInj := NewInjector()

	sampled := Sample(samplerInj.Stream(), leftInj.Stream(), rightInj.Stream(),
		func(l, r interface{}) interface{} {
			return []interface{}{l, r}
		})

	leftInj.Write(1)
	rightInj.Write("a")
	// give the sampler goroutine time to record both latests
	time.Sleep(50 * time.Millisecond)
	samplerInj.Write("tick")
	samplerInj.Close()
	leftInj.Close()
	rightInj.Close()

	values, err := collect(t, sampled)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, []interface{}{1, "a"}, values[0])
}

func TestJoinFlattensStreamOfStreams(t *testing.T) {
	outer := From(From(1, 2), From(3, 4))

	values, err := collect(t, Join(outer))
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{1, 2, 3, 4}, values)
}

func TestMulticastDeliversToEveryConsumer(t *testing.T) {
	outs := Multicast(From(1, 2, 3), 2)

	done := make(chan []interface{}, 2)
	for _, o := range outs {
		go func(s *Stream) {
			values, _ := collect(t, s)
			done <- values
		}(o)
	}

	first := <-done
	second := <-done
	assert.Equal(t, []interface{}{1, 2, 3}, first)
	assert.Equal(t, []interface{}{1, 2, 3}, second)
}

func TestUntilStopsOnSignal(t *testing.T) {
	srcInj := NewInjector()
	signalInj := NewInjector()

	limited := Until(srcInj.Stream(), signalInj.Stream())

	srcInj.Write(1)
	srcInj.Write(2)

	got := make(chan []interface{}, 1)
	go func() {
		values, _ := collect(t, limited)
		got <- values
	}()

	// let both values through before firing the signal
	time.Sleep(50 * time.Millisecond)
	signalInj.Write("stop")

	values := <-got
	assert.Equal(t, []interface{}{1, 2}, values)
	srcInj.Close()
	signalInj.Close()
}

func TestSinceDropsUntilSignal(t *testing.T) {
	srcInj := NewInjector()
	signalInj := NewInjector()

	gated := Since(srcInj.Stream(), signalInj.Stream())

	got := make(chan []interface{}, 1)
	go func() {
		values, _ := collect(t, gated)
		got <- values
	}()

	srcInj.Write(1)
	time.Sleep(50 * time.Millisecond)
	signalInj.Write("open")
	time.Sleep(50 * time.Millisecond)
	srcInj.Write(2)
	srcInj.Close()
	signalInj.Close()

	values := <-got
	assert.Equal(t, []interface{}{2}, values)
}
