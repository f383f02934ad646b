package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEvaluator returns page-shaped map values, the way a real page evaluate
// call surfaces them before decoding.
type mapEvaluator struct {
	result any
	err    error

	lastScript string
	lastArg    any
}

func (m *mapEvaluator) Evaluate(_ context.Context, script string, arg any) (any, error) {
	m.lastScript = script
	m.lastArg = arg
	return m.result, m.err
}

func TestProbe_SnapshotDecodesPageShape(t *testing.T) {
	eval := &mapEvaluator{
		result: map[string]any{
			"viewport": map[string]any{"width": 1280.0, "height": 720.0},
			"elements": []any{
				map[string]any{
					"descriptor": map[string]any{
						"tagName":    "button",
						"attributes": map[string]any{"id": "go"},
						"text":       "Go",
						"geometry":   map[string]any{"x": 1.0, "y": 2.0, "width": 30.0, "height": 10.0},
						"computed":   map[string]any{"display": "inline-block", "visibility": "visible", "opacity": 1.0},
						"nthOfType":  1.0,
						"treePath":   []any{0.0, 2.0},
					},
					"hit": map[string]any{"match": "self", "topTag": "button"},
				},
			},
		},
	}
	probe := NewProbe(eval, zerolog.Nop(), 0)

	snap, err := probe.Snapshot(context.Background(), KindClickable)
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 1280, Height: 720}, snap.Viewport)
	require.Len(t, snap.Elements, 1)

	d := snap.Elements[0].Descriptor
	assert.Equal(t, "button", d.TagName)
	assert.Equal(t, "go", d.ID())
	assert.Equal(t, []int{0, 2}, d.TreePath)
	require.NotNil(t, snap.Elements[0].Hit)
	assert.Equal(t, HitSelf, snap.Elements[0].Hit.Match)

	// The kind and cap travel to the page script.
	arg, ok := eval.lastArg.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "clickable", arg["kind"])
	assert.Equal(t, defaultMaxElements, arg["limit"])
}

func TestProbe_EvaluateFailureWrapsProbeError(t *testing.T) {
	cause := errors.New("target closed")
	probe := NewProbe(&mapEvaluator{err: cause}, zerolog.Nop(), 10)

	_, err := probe.Snapshot(context.Background(), KindTextBearing)
	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, "snapshot", probeErr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := NewProbe(&mapEvaluator{}, zerolog.Nop(), 10)
	_, err := probe.Count(ctx, "#x")
	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbe_CountDecodesNumber(t *testing.T) {
	probe := NewProbe(&mapEvaluator{result: 3.0}, zerolog.Nop(), 10)

	n, err := probe.Count(context.Background(), ".btn")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProbe_ElementAtPointNilForEmptyHit(t *testing.T) {
	probe := NewProbe(&mapEvaluator{result: nil}, zerolog.Nop(), 10)

	d, err := probe.ElementAtPoint(context.Background(), 5, 5)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestProbe_QueryZeroMatchesIsSuccess(t *testing.T) {
	eval := &mapEvaluator{
		result: map[string]any{
			"viewport": map[string]any{"width": 800.0, "height": 600.0},
			"elements": []any{},
		},
	}
	probe := NewProbe(eval, zerolog.Nop(), 10)

	snap, err := probe.Query(context.Background(), ".nothing-matches")
	require.NoError(t, err)
	assert.Empty(t, snap.Elements)
	assert.Equal(t, Viewport{Width: 800, Height: 600}, snap.Viewport)
}
