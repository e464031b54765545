package mcastack

import (
	"context"
	"log/slog"
)

// EventKind identifies what a View reports to its Observer.
type EventKind int

const (
	// EventPlanned is emitted once the view has partitioned the array.
	EventPlanned EventKind = iota
	// EventMemoryUnknown is emitted when the row capacity had to fall back
	// to the minimum because available memory could not be determined.
	EventMemoryUnknown
	// EventChunkRead follows every chunk read into the buffer.
	EventChunkRead
	// EventChunkWritten follows every chunk written back to the source.
	EventChunkWritten
	// EventExhausted is emitted when the last chunk has been passed.
	EventExhausted
)

func (k EventKind) String() string {
	switch k {
	case EventPlanned:
		return "planned"
	case EventMemoryUnknown:
		return "memory_unknown"
	case EventChunkRead:
		return "chunk_read"
	case EventChunkWritten:
		return "chunk_written"
	case EventExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Event describes one step of a traversal.
type Event struct {
	Kind EventKind
	// Chunk is the 0-based chunk number for read and write events.
	Chunk int
	// Rows is the chunk's row count, or the buffer row count for EventPlanned.
	Rows     int
	Channels int
	// Chunks and Total are the planned chunk and row counts.
	Chunks int
	Total  int
	Masked bool
}

// Observer receives view events. It is called synchronously.
type Observer func(Event)

// SlogObserver reports events to l at debug level.
func SlogObserver(l *slog.Logger) Observer {
	return func(e Event) {
		ctx := context.Background()
		switch e.Kind {
		case EventPlanned:
			l.DebugContext(ctx, "iterate stack in chunks",
				"rows", e.Rows, "channels", e.Channels,
				"chunks", e.Chunks, "total", e.Total, "masked", e.Masked)
		case EventMemoryUnknown:
			l.WarnContext(ctx, "available memory unknown, using minimum row capacity", "rows", e.Rows)
		case EventChunkRead, EventChunkWritten:
			l.DebugContext(ctx, e.Kind.String(), "chunk", e.Chunk, "rows", e.Rows)
		case EventExhausted:
			l.DebugContext(ctx, "traversal done", "chunks", e.Chunks, "total", e.Total)
		}
	}
}

// Observers fans events out to several observers.
func Observers(obs ...Observer) Observer {
	return func(e Event) {
		for _, o := range obs {
			if o != nil {
				o(e)
			}
		}
	}
}
