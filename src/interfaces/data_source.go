package interfaces

import (
	"context"

	"trading-console/src/events"
)

// -----------------------------------------------------------------------------
// IStreamSource is one producer of envelopes: the live transport or the synthetic feed.
// -----------------------------------------------------------------------------

type IStreamSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Start begins producing into sink.
	// ctx: controls the lifecycle (cancellation stops the source)
	// A source that is ready immediately calls sink.Ready() before Start returns;
	// otherwise it calls it from its own goroutine once the transport is open.
	// Emit and Fail are only ever called from the source's goroutine, never from
	// inside Start; a Start that cannot proceed returns an error instead.
	Start(ctx context.Context, sink ISourceSink) error

	// -----------------------------------------------------------------------------

	// Stop terminates the source. It must not block on the source's goroutines,
	// since it may be called from inside a dispatch.
	Stop() error
}

// -----------------------------------------------------------------------------
// ISourceSink receives everything a source produces.
// -----------------------------------------------------------------------------

type ISourceSink interface {

	// Ready reports that the source is open and delivering
	Ready()

	// -----------------------------------------------------------------------------

	// Emit hands over one decoded envelope, in source order
	Emit(env events.Envelope)

	// -----------------------------------------------------------------------------

	// Fail reports that the transport is gone. The source emits nothing afterwards.
	Fail(err error)
}
