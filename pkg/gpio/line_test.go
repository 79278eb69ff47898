package gpio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiocdev"
)

func testLine() *Line {
	return newLine(17, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNextEvent_RisingEdge(t *testing.T) {
	l := testLine()
	l.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})

	ev := l.NextEvent(context.Background(), NoTimeout)
	assert.Equal(t, EdgeRising, ev.Kind)
	assert.False(t, ev.Time.IsZero())
	assert.NoError(t, ev.Err)
}

func TestNextEvent_FallingEdge(t *testing.T) {
	l := testLine()
	l.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})

	ev := l.NextEvent(context.Background(), NoTimeout)
	assert.Equal(t, EdgeFalling, ev.Kind)
}

func TestNextEvent_Timeout(t *testing.T) {
	l := testLine()

	start := time.Now()
	ev := l.NextEvent(context.Background(), 20*time.Millisecond)
	assert.Equal(t, EdgeNone, ev.Kind)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestNextEvent_WaitsForLateEdge(t *testing.T) {
	l := testLine()

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})
	}()

	ev := l.NextEvent(context.Background(), NoTimeout)
	assert.Equal(t, EdgeRising, ev.Kind)
}

func TestNextEvent_ContextCancelled(t *testing.T) {
	l := testLine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := l.NextEvent(ctx, NoTimeout)
	assert.Equal(t, EdgeNone, ev.Kind)
}

func TestNextEvent_OverflowReportedOnce(t *testing.T) {
	l := testLine()
	for i := 0; i < eventBufferSize+3; i++ {
		l.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})
	}

	ev := l.NextEvent(context.Background(), NoTimeout)
	require.Equal(t, EdgeError, ev.Kind)
	assert.True(t, errors.Is(ev.Err, ErrOverflow))
	assert.Contains(t, ev.Err.Error(), "3 edges dropped")

	// Buffered edges are still delivered afterwards
	ev = l.NextEvent(context.Background(), NoTimeout)
	assert.Equal(t, EdgeRising, ev.Kind)
}

func TestClose(t *testing.T) {
	l := testLine()
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// Edges after close are ignored
	l.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})

	ev := l.NextEvent(context.Background(), NoTimeout)
	assert.Equal(t, EdgeError, ev.Kind)
	assert.True(t, errors.Is(ev.Err, ErrClosed))
}

func TestArm_MissingChip(t *testing.T) {
	_, err := Arm("gpiochip-does-not-exist", 17, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArmFailed))
}

func TestEdgeKindString(t *testing.T) {
	assert.Equal(t, "rising_edge", EdgeRising.String())
	assert.Equal(t, "falling_edge", EdgeFalling.String())
	assert.Equal(t, "none", EdgeNone.String())
	assert.Equal(t, "error", EdgeError.String())
	assert.Equal(t, "unknown", EdgeKind(42).String())
}
