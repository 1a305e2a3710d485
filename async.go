// Copyright (c) 2024 Contributors to the Eclipse Foundation
//
// See the NOTICE file(s) distributed with this work for additional
// information regarding copyright ownership.
//
// This program and the accompanying materials are made available under the
// terms of the Apache Software License 2.0 which is available at
// https://www.apache.org/licenses/LICENSE-2.0, or the MIT license
// which is available at https://opensource.org/licenses/MIT.
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package lola

import (
	"context"
	"time"
)

// ReceiveHandler is invoked by whatever goroutine detects that new data
// might be available (spec §4.H.3). Handlers must be non-blocking: the
// core does not own a dedicated callback thread, so a blocking handler
// stalls whichever poller last observed the event.
type ReceiveHandler func()

// SetHandler installs h, replacing any existing handler (spec §4.H.3:
// "set_handler(h) replaces any existing handler"). A subscription may
// register exactly one handler at a time.
func (sub *Subscription[T]) SetHandler(h ReceiveHandler) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.handler = h
}

// UnsetHandler guarantees that after it returns, the previous handler will
// not be invoked again (spec §4.H.3).
func (sub *Subscription[T]) UnsetHandler() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.handler = nil
}

func (sub *Subscription[T]) fireHandler() {
	sub.mu.Lock()
	h := sub.handler
	sub.mu.Unlock()
	if h != nil {
		h()
	}
}

// Receive implements spec §4.H.2's async receive: it resolves when
// TryReceive would yield at least newSamples, or when ctx is done. There
// is no transport-pushed wakeup in this binding (spec §6 describes
// availability via polling the discovery segment, not a blocking futex),
// so the "handler" here re-polls on a short interval instead of being
// woken by an interrupt; cancellation still unregisters it synchronously
// exactly as spec §4.H.2 requires ("dropping the future unregisters the
// handler synchronously").
func (sub *Subscription[T]) Receive(ctx context.Context, newSamples, maxSamples int) (int, error) {
	total := 0
	done := make(chan struct{})
	var once bool

	poll := func() {
		if total >= maxSamples {
			return
		}
		n, err := sub.TryReceive(maxSamples - total)
		if err != nil {
			return
		}
		total += n
		if total >= newSamples && !once {
			once = true
			close(done)
		}
	}

	sub.SetHandler(poll)
	defer sub.UnsetHandler()

	poll()
	if once {
		return total, nil
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return total, WrapError("Subscription.Receive", ErrTimeout)
		case <-done:
			return total, nil
		case <-ticker.C:
			sub.fireHandler()
		}
	}
}

// Stream adapts the subscription into a lazy, infinite sequence of sample
// references (spec §4.H.4). Not restartable: call Stream once per
// subscription lifetime.
type Stream[T any] struct {
	sub *Subscription[T]
}

// Stream converts the subscription into a Stream. The subscription must
// not be used directly for TryReceive afterward.
func (sub *Subscription[T]) Stream() *Stream[T] {
	return &Stream[T]{sub: sub}
}

// Next polls the stream: if a new sample is available, it is returned
// with ok == true and any pending handler is cleared; otherwise Next
// installs a receive handler and returns ok == false (spec §4.H.4: "if a
// new sample is available, yield it; otherwise, install a receive handler
// ... and return 'not ready'"). As with Subscription.Receive, this
// binding has no transport-pushed wakeup, so the installed handler is not
// itself invoked by Next — a caller driving its own poll loop (as
// Subscription.Receive does, on a ticker) is what actually re-fires it;
// Next only guarantees the handler is registered while no sample is ready
// and cleared once one is, or once Close is called. If ctx is already done
// and no sample is ready, Next clears the handler instead of installing
// one and returns ok == false with a nil error.
func (st *Stream[T]) Next(ctx context.Context) (*SampleRef[T], bool, error) {
	n, err := st.sub.TryReceive(1)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		st.sub.UnsetHandler()
		return st.sub.container.Newest(), true, nil
	}

	select {
	case <-ctx.Done():
		st.sub.UnsetHandler()
		return nil, false, nil
	default:
	}
	st.sub.SetHandler(func() { _, _ = st.sub.TryReceive(1) })
	return nil, false, nil
}

// Close unsets the stream's receive handler (spec §4.H.4: "Dropping the
// sequence unsets the handler").
func (st *Stream[T]) Close() {
	st.sub.UnsetHandler()
}
