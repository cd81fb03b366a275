package streams

import "sync"

// Merge emits the interleaved union of all given streams. Each input keeps
// flowing independently; the merged stage completes when every input has
// completed.
func Merge(inputs ...*Stream) *Stream {
	down := newStream(0)
	var wg sync.WaitGroup
	for _, s := range inputs {
		wg.Add(1)
		go func(s *Stream) {
			defer wg.Done()
			for it := range s.out {
				down.out <- it
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(down.out)
	}()
	return down
}

// Zip pairs values FIFO, one from each side, and emits fn(left, right) per
// pair. The zipped stage completes when either side completes.
func Zip(left, right *Stream, fn func(l, r interface{}) interface{}) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		defer func() {
			go drain(left.out)
			go drain(right.out)
		}()
		for {
			l, ok := next(left.out, down.out)
			if !ok {
				return
			}
			r, ok := next(right.out, down.out)
			if !ok {
				return
			}
			down.out <- Item{Value: fn(l, r)}
		}
	}()
	return down
}

// next pulls the next value item from in, forwarding error items to out.
// Returns false when in completes.
func next(in <-chan Item, out chan<- Item) (interface{}, bool) {
	for it := range in {
		if it.Err != nil {
			out <- it
			continue
		}
		return it.Value, true
	}
	return nil, false
}

// Combine emits fn(latestLeft, latestRight) on every value from either side,
// starting once both sides have emitted at least one value. The combined
// stage completes when both sides have completed.
func Combine(left, right *Stream, fn func(l, r interface{}) interface{}) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		var latestL, latestR interface{}
		var hasL, hasR bool
		lch, rch := left.out, right.out
		for lch != nil || rch != nil {
			select {
			case it, ok := <-lch:
				if !ok {
					lch = nil
					continue
				}
				if it.Err != nil {
					down.out <- it
					continue
				}
				latestL, hasL = it.Value, true
				if hasL && hasR {
					down.out <- Item{Value: fn(latestL, latestR)}
				}
			case it, ok := <-rch:
				if !ok {
					rch = nil
					continue
				}
				if it.Err != nil {
					down.out <- it
					continue
				}
				latestR, hasR = it.Value, true
				if hasL && hasR {
					down.out <- Item{Value: fn(latestL, latestR)}
				}
			}
		}
	}()
	return down
}

// Sample snapshots the latest value from each data stream on every sampler
// event, emitting fn(latestLeft, latestRight) once both sides have emitted.
// The sampled stage completes when the sampler completes.
func Sample(sampler, left, right *Stream, fn func(l, r interface{}) interface{}) *Stream {
	down := newStream(0)
	go func() {
		defer close(down.out)
		defer func() {
			go drain(left.out)
			go drain(right.out)
		}()
		var latestL, latestR interface{}
		var hasL, hasR bool
		lch, rch := left.out, right.out
		for {
			select {
			case it, ok := <-lch:
				if !ok {
					lch = nil
					continue
				}
				if it.Err == nil {
					latestL, hasL = it.Value, true
				}
			case it, ok := <-rch:
				if !ok {
					rch = nil
					continue
				}
				if it.Err == nil {
					latestR, hasR = it.Value, true
				}
			case it, ok := <-sampler.out:
				if !ok {
					return
				}
				if it.Err != nil {
					down.out <- it
					continue
				}
				if hasL && hasR {
					down.out <- Item{Value: fn(latestL, latestR)}
				}
			}
		}
	}()
	return down
}

// Join flattens a stream of streams into a single stage: every value of
// every inner stream is forwarded as it arrives. Used as the basis for
// stream-of-streams fan-in topologies such as dynamic per-key subtopologies.
// Outer values that are not *Stream are forwarded unchanged.
func Join(outer *Stream) *Stream {
	down := newStream(0)
	go func() {
		var wg sync.WaitGroup
		for it := range outer.out {
			if it.Err != nil {
				down.out <- it
				continue
			}
			inner, ok := it.Value.(*Stream)
			if !ok {
				down.out <- it
				continue
			}
			wg.Add(1)
			go func(s *Stream) {
				defer wg.Done()
				for iit := range s.out {
					down.out <- iit
				}
			}(inner)
		}
		wg.Wait()
		close(down.out)
	}()
	return down
}

// Multicast fans one stage out to n consumers. Every item is delivered to
// every output in order; a slow consumer therefore backpressures all of
// them, which is the engine's default policy and the reason the chained
// drains built on this are unsuitable for production topologies.
func Multicast(up *Stream, n int) []*Stream {
	outs := make([]*Stream, n)
	for i := range outs {
		outs[i] = newStream(0)
	}
	go func() {
		defer func() {
			for _, o := range outs {
				close(o.out)
			}
		}()
		for it := range up.out {
			for _, o := range outs {
				o.out <- it
			}
		}
	}()
	return outs
}
