package canvas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diffusion-planet/ip-to-portrait/internal/canvas"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

func newLayout(t *testing.T, nodes model.PositionSnapshot) *canvas.Layout {
	t.Helper()

	l, err := canvas.NewLayout(canvas.LayoutConfig{})
	require.NoError(t, err)
	l.SetNodes(nodes)
	return l
}

func TestLayoutDragUndoRedo(t *testing.T) {
	l := newLayout(t, model.PositionSnapshot{
		"prompt":  {X: 100, Y: 500},
		"params":  {X: 800, Y: 80},
		"results": {X: 1500, Y: 380},
	})

	// Drag the params node.
	l.BeginDrag()
	l.EndDrag(model.PositionSnapshot{"params": {X: 900, Y: 120}})
	assert.Equal(t, model.Point{X: 900, Y: 120}, l.Positions()["params"])

	// Undo restores the pre-drag position.
	require.True(t, l.Undo())
	assert.Equal(t, model.Point{X: 800, Y: 80}, l.Positions()["params"])

	// Redo re-applies the drag.
	require.True(t, l.Redo())
	assert.Equal(t, model.Point{X: 900, Y: 120}, l.Positions()["params"])

	// Untouched nodes never move.
	assert.Equal(t, model.Point{X: 100, Y: 500}, l.Positions()["prompt"])
}

func TestLayoutBeginDragCapturesInitialOnce(t *testing.T) {
	l := newLayout(t, model.PositionSnapshot{"a": {X: 0, Y: 0}})

	// Two consecutive drags: the second BeginDrag must not re-capture the
	// "before" state, otherwise undo would need two steps per drag.
	l.BeginDrag()
	l.EndDrag(model.PositionSnapshot{"a": {X: 10, Y: 0}})
	l.BeginDrag()
	l.EndDrag(model.PositionSnapshot{"a": {X: 20, Y: 0}})

	require.True(t, l.Undo())
	assert.Equal(t, model.Point{X: 10, Y: 0}, l.Positions()["a"])
	require.True(t, l.Undo())
	assert.Equal(t, model.Point{X: 0, Y: 0}, l.Positions()["a"])
	assert.False(t, l.Undo(), "no history before the first captured state")
}

func TestLayoutUnknownNodeDragIgnored(t *testing.T) {
	l := newLayout(t, model.PositionSnapshot{"a": {X: 1, Y: 1}})

	l.BeginDrag()
	l.EndDrag(model.PositionSnapshot{"ghost": {X: 99, Y: 99}})

	pos := l.Positions()
	assert.NotContains(t, pos, "ghost")
	assert.Equal(t, model.Point{X: 1, Y: 1}, pos["a"])
}

func TestLayoutSetNodesResetsHistory(t *testing.T) {
	l := newLayout(t, model.PositionSnapshot{"a": {X: 0, Y: 0}})

	l.BeginDrag()
	l.EndDrag(model.PositionSnapshot{"a": {X: 5, Y: 5}})

	// Structural change: node set replaced, old snapshots are invalid.
	l.SetNodes(model.PositionSnapshot{"b": {X: 7, Y: 7}})

	assert.False(t, l.Undo(), "history must be reset after a structural change")
	assert.Equal(t, model.PositionSnapshot{"b": {X: 7, Y: 7}}, l.Positions())
}
