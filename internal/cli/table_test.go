package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"ID", "Category"},
		[][]string{
			{"txn-1", "Dining"},
			{"txn-2", "Gas"},
		},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, out, "txn-1")
	assert.Contains(t, out, "Dining")
}

func TestRenderTableShortRows(t *testing.T) {
	out := RenderTable(
		[]string{"ID", "Category", "Confidence"},
		[][]string{{"txn-1"}},
	)
	assert.Contains(t, out, "txn-1")
}

func TestInterruptHandlerWatch(t *testing.T) {
	var buf bytes.Buffer
	handler := NewInterruptHandler(&buf)

	ctx, cancel := handler.Watch(context.Background())
	assert.False(t, handler.Interrupted())
	assert.NoError(t, ctx.Err())

	cancel()
	<-ctx.Done()
	assert.False(t, handler.Interrupted(), "manual cancel is not an interrupt")
}
