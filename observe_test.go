package mcastack

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	count := 0
	obs := Observers(SlogObserver(logger), nil, func(Event) { count++ })

	v, err := NewView(newRamp(t, 6, 2), WithRowCapacity(4), WithObserver(obs))
	require.NoError(t, err)
	drain(t, v, nil)

	out := buf.String()
	assert.Contains(t, out, `msg="iterate stack in chunks" rows=4 channels=2 chunks=2 total=6 masked=false`)
	assert.Contains(t, out, "msg=chunk_read chunk=1 rows=2")
	assert.Contains(t, out, "msg=\"traversal done\" chunks=2 total=6")
	assert.NotContains(t, out, "chunk_written")
	assert.Equal(t, 4, count)
}

func TestSlogObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	_, err := NewView(newRamp(t, 6, 2), WithObserver(SlogObserver(logger)), WithMemoryQuery(unknownMemory))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.NotContains(t, buf.String(), "iterate stack in chunks")
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "planned", EventPlanned.String())
	assert.Equal(t, "chunk_written", EventChunkWritten.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
