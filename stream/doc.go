// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stream composes event pipelines on top of a reactor dispatcher.
//
// A pipeline starts at a Deferred, the write side, whose Compose method
// returns the Stream read side. Every operator derives a new stage bound to
// the same dispatcher, with a fresh routing key and the parent as its error
// source:
//
//	in := stream.NewSpec[int]().Dispatcher(d).Capacity(3).Deferred()
//	sums := stream.Reduce(in.Compose(), func(acc, v int) int { return acc + v }, 0)
//	sums.Consume(func(sum int) { fmt.Println(sum) })
//
//	in.Accept(1)
//	in.Accept(2)
//	in.Accept(3) // prints 6: the batch of 3 is closed
//
// # Batches and windows
//
// The batch size groups arrivals by count: First, Last, Collect and a
// batched Reduce close a group every n arrivals. Window and MovingWindow
// group by time and need a reactor.Timer, configured with Spec.Timer or
// WithTimer.
//
// # Errors
//
// Errors accepted by a Deferred or raised by a stage's consumers flow from
// the stage to every derived stage. OnError and When intercept them: an
// intercepted error goes no further. An error reaching a stage with neither
// handlers nor derived stages is logged.
//
// # Preconditions
//
// Invalid stage construction panics at once with an error wrapping
// ErrUnbounded, ErrNoTimer or ErrInvalidWindow.
package stream
