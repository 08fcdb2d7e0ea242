// Package pump implements §4.2's C2: a back-pressured copy from one byte
// source to one byte sink, a fan-out tee across many sinks, and a
// combinator that waits for two independent completions before surfacing
// either result. The reactive source suspends at every I/O point and
// explicit async combinator (§9); Go's blocking io.Reader/io.Writer
// already suspend the calling goroutine at I/O, so back-pressure falls out
// of ordinary blocking calls rather than a driven event loop. Grounded on
// the teacher's own goroutine+channel fan-out in
// weed/topology/store_replicate.go's distributedOperation and
// weed/operation/delete_content.go's DeleteFiles, generalized from
// "fan out N independent calls, wait on a WaitGroup" to a genuine
// streaming tee with bounded per-sink buffering.
package pump

import (
	"context"
	"io"
)

// Pump copies from src to dst until src is exhausted, returning the number
// of bytes copied and the first error encountered on either side. It is a
// thin named wrapper over io.Copy so call sites read like the spec's
// pump(source, sink) contract rather than a bare io.Copy call.
func Pump(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := io.Copy(dst, src)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// Tee copies src to every sink concurrently, advancing at the rate of the
// slowest sink (§4.2). If any sink's Write fails, Tee cancels the source
// read and every remaining sink by closing their pipe with the error, and
// returns that error. Each sinks[i] is fed through an io.Pipe so a slow or
// failing sink cannot stall the others indefinitely beyond one buffered
// chunk. When a sink's copy finishes, Tee closes that sink if it can be
// closed (CloseWithError with the copy's error, nil at source end, where the
// sink has it), so a reader on the other side sees end of stream or the
// failure.
func Tee(ctx context.Context, src io.Reader, sinks []io.Writer) error {
	n := len(sinks)
	pipeWriters := make([]*io.PipeWriter, n)
	errCh := make(chan error, n)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, sink := range sinks {
		pr, pw := io.Pipe()
		pipeWriters[i] = pw
		go func(sink io.Writer, pr *io.PipeReader) {
			_, err := io.Copy(sink, pr)
			pr.Close()
			if c, ok := sink.(interface{ CloseWithError(error) error }); ok {
				c.CloseWithError(err)
			} else if c, ok := sink.(io.Closer); ok {
				c.Close()
			}
			errCh <- err
		}(sink, pr)
	}

	mw := io.MultiWriter(toWriters(pipeWriters)...)
	copyErrCh := make(chan error, 1)
	go func() {
		_, err := io.Copy(mw, src)
		for _, pw := range pipeWriters {
			pw.CloseWithError(err)
		}
		copyErrCh <- err
	}()

	var firstErr error
	remaining := n
	for remaining > 0 {
		select {
		case err := <-errCh:
			remaining--
			if err != nil && err != io.EOF && firstErr == nil {
				firstErr = err
				cancel()
				for _, pw := range pipeWriters {
					pw.CloseWithError(err)
				}
			}
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}
	<-copyErrCh
	return firstErr
}

func toWriters(pws []*io.PipeWriter) []io.Writer {
	out := make([]io.Writer, len(pws))
	for i, pw := range pws {
		out[i] = pw
	}
	return out
}

// Single is a one-shot result of type T, the "memoising handler" §9
// describes: the first value or error to arrive is stored and replayed to
// any caller of Wait, including callers that attach after completion.
type Single[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewSingle returns a Single that resolves when resolve is called exactly
// once from any goroutine.
func NewSingle[T any]() *Single[T] {
	return &Single[T]{done: make(chan struct{})}
}

// Resolve completes the Single. Only the first call has effect.
func (s *Single[T]) Resolve(val T, err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.val, s.err = val, err
	close(s.done)
}

// Wait blocks until the Single resolves or ctx is cancelled.
func (s *Single[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.val, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// CombineDelayError waits for both a and b to settle, delaying the first
// failure until both have completed, then either returns merge(a,b) or an
// error: a's error takes precedence, and when both failed the returned
// error's message also carries b's error while Unwrap yields a's (§4.2).
// Grounded on
// original_source's HttpClientResponseBodyBuffer "combine singles, delay
// error" usage for createWriteStream's receipt: the pump completion and
// the response-parse completion must both be observed before either
// success or failure is reported.
func CombineDelayError[A, B, R any](ctx context.Context, a *Single[A], b *Single[B], merge func(A, B) (R, error)) (R, error) {
	av, aerr := a.Wait(ctx)
	bv, berr := b.Wait(ctx)
	var zero R
	switch {
	case aerr != nil && berr != nil:
		return zero, &delayedError{first: aerr, second: berr}
	case aerr != nil:
		return zero, aerr
	case berr != nil:
		return zero, berr
	default:
		return merge(av, bv)
	}
}

type delayedError struct {
	first  error
	second error
}

func (e *delayedError) Error() string {
	return e.first.Error() + " (also: " + e.second.Error() + ")"
}

func (e *delayedError) Unwrap() error { return e.first }
