package streams

import (
	"sync"
	"time"
)

// transform spawns one pumping goroutine for a new stage. The body receives
// the upstream and downstream channels; the downstream channel is closed when
// the body returns.
func transform(up *Stream, body func(in <-chan Item, out chan<- Item)) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		body(up.out, down.out)
	}()
	return down
}

// drain discards the remainder of an upstream after early completion so
// producers never block on an abandoned stage.
func drain(in <-chan Item) {
	for range in {
	}
}

// Map applies fn to every value. A returned error becomes an error item.
func Map(up *Stream, fn func(v interface{}) (interface{}, error)) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		for it := range in {
			if it.Err != nil {
				out <- it
				continue
			}
			v, err := fn(it.Value)
			if err != nil {
				out <- Item{Err: err}
				continue
			}
			out <- Item{Value: v}
		}
	})
}

// AsyncMap applies fn to every value on its own goroutine and flattens the
// results back into a single stage.
//
// Results are emitted in completion order, not arrival order: while the
// transform for one event is pending, later events start their own
// transforms concurrently. Downstream consumers that need arrival order
// (ordered production to a partition) must keep synchronous operators
// between the async stage and the terminal consumer, or serialize inside fn.
func AsyncMap(up *Stream, fn func(v interface{}) (interface{}, error)) *Stream {
	down := newStream(0)
	go func() {
		var wg sync.WaitGroup
		for it := range up.out {
			if it.Err != nil {
				down.out <- it
				continue
			}
			wg.Add(1)
			go func(v interface{}) {
				defer wg.Done()
				res, err := fn(v)
				if err != nil {
					down.out <- Item{Err: err}
					return
				}
				down.out <- Item{Value: res}
			}(it.Value)
		}
		wg.Wait()
		close(down.out)
	}()
	return down
}

// Filter forwards only values for which pred returns true.
func Filter(up *Stream, pred func(v interface{}) bool) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		for it := range in {
			if it.Err != nil || pred(it.Value) {
				out <- it
			}
		}
	})
}

// Tap invokes fn for every value without altering the stream.
func Tap(up *Stream, fn func(v interface{})) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		for it := range in {
			if it.Err == nil {
				fn(it.Value)
			}
			out <- it
		}
	})
}

// Scan emits the running accumulation of fn over the stream, starting from
// seed. The seed itself is not emitted.
func Scan(up *Stream, fn func(acc, v interface{}) interface{}, seed interface{}) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		acc := seed
		for it := range in {
			if it.Err != nil {
				out <- it
				continue
			}
			acc = fn(acc, it.Value)
			out <- Item{Value: acc}
		}
	})
}

// Throttle drops values that arrive within period of the last emitted value.
func Throttle(up *Stream, period time.Duration) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		var last time.Time
		for it := range in {
			if it.Err != nil {
				out <- it
				continue
			}
			now := time.Now()
			if !last.IsZero() && now.Sub(last) < period {
				continue
			}
			last = now
			out <- it
		}
	})
}

// Delay shifts every value by the given duration.
func Delay(up *Stream, d time.Duration) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		for it := range in {
			if it.Err == nil {
				time.Sleep(d)
			}
			out <- it
		}
	})
}

// Debounce emits a value only once the stream has been quiet for the given
// duration; earlier values within a burst are discarded. The trailing value
// of a burst is flushed when the stream completes.
func Debounce(up *Stream, d time.Duration) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		var pending Item
		var has bool
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case it, ok := <-up.out:
				if !ok {
					if timer != nil {
						timer.Stop()
					}
					if has {
						down.out <- pending
					}
					return
				}
				if it.Err != nil {
					down.out <- it
					continue
				}
				pending, has = it, true
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(d)
				timerC = timer.C
			case <-timerC:
				if has {
					down.out <- pending
					has = false
				}
				timerC = nil
			}
		}
	}()
	return down
}

// Skip discards the first n values.
func Skip(up *Stream, n int) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		skipped := 0
		for it := range in {
			if it.Err == nil && skipped < n {
				skipped++
				continue
			}
			out <- it
		}
	})
}

// Take forwards the first n values and then completes, discarding the
// remainder of the upstream.
func Take(up *Stream, n int) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		if n <= 0 {
			drain(in)
			return
		}
		taken := 0
		for it := range in {
			out <- it
			if it.Err != nil {
				continue
			}
			taken++
			if taken >= n {
				break
			}
		}
		drain(in)
	})
}

// SkipWhile discards values while pred holds; once it fails, everything
// flows through.
func SkipWhile(up *Stream, pred func(v interface{}) bool) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		skipping := true
		for it := range in {
			if it.Err == nil && skipping {
				if pred(it.Value) {
					continue
				}
				skipping = false
			}
			out <- it
		}
	})
}

// TakeWhile forwards values while pred holds, then completes.
func TakeWhile(up *Stream, pred func(v interface{}) bool) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		for it := range in {
			if it.Err != nil {
				out <- it
				continue
			}
			if !pred(it.Value) {
				break
			}
			out <- it
		}
		drain(in)
	})
}

// SkipRepeats drops values equal (==-comparable) to the previously emitted
// value.
func SkipRepeats(up *Stream) *Stream {
	return SkipRepeatsWith(up, func(a, b interface{}) bool { return a == b })
}

// SkipRepeatsWith drops values for which eq reports equality with the
// previously emitted value.
func SkipRepeatsWith(up *Stream, eq func(a, b interface{}) bool) *Stream {
	return transform(up, func(in <-chan Item, out chan<- Item) {
		var prev interface{}
		first := true
		for it := range in {
			if it.Err != nil {
				out <- it
				continue
			}
			if !first && eq(prev, it.Value) {
				continue
			}
			prev, first = it.Value, false
			out <- it
		}
	})
}

// Slice forwards values with index in [start, end).
func Slice(up *Stream, start, end int) *Stream {
	return Take(Skip(up, start), end-start)
}

// Constant replaces every value with v.
func Constant(up *Stream, v interface{}) *Stream {
	return Map(up, func(interface{}) (interface{}, error) { return v, nil })
}

// Timestamp wraps every value in a Timestamped carrying the emission time.
func Timestamp(up *Stream) *Stream {
	return Map(up, func(v interface{}) (interface{}, error) {
		return Timestamped{Time: time.Now(), Value: v}, nil
	})
}

// Until forwards values until the signal stream emits its first value, then
// completes.
func Until(up *Stream, signal *Stream) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		defer drain(up.out)
		for {
			select {
			case it, ok := <-up.out:
				if !ok {
					go drain(signal.out)
					return
				}
				down.out <- it
			case _, ok := <-signal.out:
				if ok {
					go drain(signal.out)
					return
				}
				// signal completed without emitting: keep flowing
				for it := range up.out {
					down.out <- it
				}
				return
			}
		}
	}()
	return down
}

// Since discards values until the signal stream emits its first value.
func Since(up *Stream, signal *Stream) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		open := false
		for {
			select {
			case it, ok := <-up.out:
				if !ok {
					go drain(signal.out)
					return
				}
				if open || it.Err != nil {
					down.out <- it
				}
			case _, ok := <-signal.out:
				open = open || ok
				go drain(signal.out)
				for it := range up.out {
					if open || it.Err != nil {
						down.out <- it
					}
				}
				return
			}
		}
	}()
	return down
}
