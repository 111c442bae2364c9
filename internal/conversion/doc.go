// Package conversion runs transcoding work under a strict concurrency bound.
//
// The Scheduler accepts conversion requests without blocking, queues them
// FIFO, and drives at most max-concurrent external engine invocations at a
// time from a single worker goroutine. Task state (pending, processing,
// completed, failed) and clamped progress percentages live in an in-memory
// registry; consumers observe lifecycle changes either by polling the
// registry or by subscribing to the scheduler's event stream.
//
// Engine failures never escape Submit: they surface as failed task state and
// emitted events. Only pending tasks are cancellable; a running ffmpeg
// process is never killed by the scheduler.
package conversion
