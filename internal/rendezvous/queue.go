/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package rendezvous implements a FIFO handoff queue: a typed channel
// where Wait and Provide calls pair up in arrival order, with
// close-cancels-all semantics. It is the Go counterpart of the
// strand-guarded waitqueue<R> used to hand worker sockets between a
// share's producer and consumer sides.
package rendezvous

import (
	"context"
	"sync"

	"github.com/sabouaram/zrp/errors"

	"github.com/sabouaram/zrp/internal/zerr"
)

// Queue is a FIFO rendezvous point between producers and consumers of T.
// A Wait pairs with the oldest pending Provide (or blocks until one
// arrives); a Provide pairs with the oldest pending Wait (or blocks
// until one arrives). Close fails every pending and future operation
// with zerr.Cancelled.
type Queue[T any] struct {
	mu     sync.Mutex
	waiter []chan result[T]
	giver  []chan error
	items  []T
	closed bool
}

type result[T any] struct {
	val T
	err error
}

// New returns an empty, open Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Wait suspends until an item is available or the queue is closed or ctx
// is done. On close it fails with zerr.Cancelled.
func (q *Queue[T]) Wait(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, cancelled()
	}

	if len(q.giver) > 0 {
		gc := q.giver[0]
		q.giver = q.giver[1:]
		v := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		close(gc)
		return v, nil
	}

	rc := make(chan result[T], 1)
	q.waiter = append(q.waiter, rc)
	q.mu.Unlock()

	select {
	case r := <-rc:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Provide suspends until a waiter accepts the item, the queue closes, or
// ctx is done. If a waiter is already pending it is handed the item
// immediately and Provide returns without further blocking.
func (q *Queue[T]) Provide(ctx context.Context, v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return cancelled()
	}

	if len(q.waiter) > 0 {
		rc := q.waiter[0]
		q.waiter = q.waiter[1:]
		q.mu.Unlock()

		rc <- result[T]{val: v}
		return nil
	}

	gc := make(chan error, 1)
	q.giver = append(q.giver, gc)
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case <-gc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close wakes every pending Wait and Provide with zerr.Cancelled and
// marks the queue closed; subsequent calls fail the same way.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true

	waiters := q.waiter
	givers := q.giver
	q.waiter = nil
	q.giver = nil
	q.items = nil
	q.mu.Unlock()

	for _, rc := range waiters {
		rc <- result[T]{err: cancelled()}
	}
	for _, gc := range givers {
		gc <- cancelled()
	}
}

func cancelled() errors.Error {
	return zerr.Cancelled.Error()
}
