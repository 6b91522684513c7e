// Package stream implements the incremental delivery engine that turns raw
// text fragments from a model backend into boundary-aware chunks for
// progressive display.
//
// The package is built from four pieces:
//
//   - Registry: per-session state, keyed by an opaque caller-supplied id.
//   - Segmenter: accumulates fragments into a rolling buffer and flushes it
//     as a Chunk on size, elapsed time, or a natural language/markup break.
//   - emitter: pushes status and chunk events to the session's Sink with
//     bounded exponential-backoff retry.
//   - Controller: drives a session through its lifecycle phases
//     (thinking -> analyzing -> writing -> complete/error/cancelled) and
//     schedules deferred cleanup after a terminal phase.
//
// Sessions are independent; the Controller is the only writer of a given
// session's state while a stream is running. Cancellation is cooperative and
// checked at fragment boundaries.
package stream
