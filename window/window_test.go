package window_test

import (
	"testing"

	"feedstrip/models"
	"feedstrip/window"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup map[string]models.FeedRenderResult

func (m mapLookup) Get(identity string) (models.FeedRenderResult, bool) {
	r, ok := m[identity]
	return r, ok
}

func loaded(sources ...string) mapLookup {
	m := mapLookup{}
	for _, s := range sources {
		m[s] = models.Ok(s, "Title "+s, nil)
	}
	return m
}

func columnSources(view window.View) []string {
	var out []string
	for _, c := range view.Columns {
		out = append(out, c.Source)
	}
	return out
}

func TestVisibleCount(t *testing.T) {
	tests := []struct {
		width    int
		expected int
	}{
		{width: 0, expected: 1},
		{width: -50, expected: 1},
		{width: 349, expected: 1},
		{width: 350, expected: 1},
		{width: 700, expected: 2},
		{width: 1000, expected: 2},
		{width: 1400, expected: 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, window.VisibleCount(tt.width, 350), "width %d", tt.width)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		state    models.WindowState
		count    int
		expected models.WindowState
	}{
		{name: "inside", state: models.WindowState{CurrentIndex: 1, VisibleCount: 2}, count: 5, expected: models.WindowState{CurrentIndex: 1, VisibleCount: 2}},
		{name: "past end", state: models.WindowState{CurrentIndex: 4, VisibleCount: 2}, count: 5, expected: models.WindowState{CurrentIndex: 3, VisibleCount: 2}},
		{name: "wider than list", state: models.WindowState{CurrentIndex: 2, VisibleCount: 10}, count: 3, expected: models.WindowState{CurrentIndex: 0, VisibleCount: 10}},
		{name: "empty", state: models.WindowState{CurrentIndex: 3, VisibleCount: 1}, count: 0, expected: models.WindowState{CurrentIndex: 0, VisibleCount: 1}},
		{name: "negative", state: models.WindowState{CurrentIndex: -2, VisibleCount: 1}, count: 4, expected: models.WindowState{CurrentIndex: 0, VisibleCount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, window.Clamp(tt.state, tt.count))
		})
	}
}

func TestNextUntilEnd(t *testing.T) {
	sources := []string{"A", "B", "C", "D", "E"}
	lookup := loaded(sources...)
	w := window.New(350)

	view := w.Recompute(sources, lookup, 1000)
	assert.Equal(t, 2, view.State.VisibleCount)
	assert.Equal(t, []string{"A", "B"}, columnSources(view))
	assert.False(t, view.CanPrevious)
	assert.True(t, view.CanNext)
	assert.True(t, view.ShowNavigation)

	for i := 0; i < 3; i++ {
		view = w.Next(sources, lookup)
	}
	assert.Equal(t, 3, view.State.CurrentIndex)
	assert.Equal(t, []string{"D", "E"}, columnSources(view))
	assert.False(t, view.CanNext)

	view = w.Next(sources, lookup)
	assert.Equal(t, 3, view.State.CurrentIndex)
	assert.Equal(t, []string{"D", "E"}, columnSources(view))
}

func TestPreviousAtStartIsNoop(t *testing.T) {
	sources := []string{"A", "B", "C"}
	w := window.New(350)
	w.Recompute(sources, loaded(sources...), 350)

	view := w.Previous(sources, loaded(sources...))
	assert.Equal(t, 0, view.State.CurrentIndex)
	assert.Equal(t, []string{"A"}, columnSources(view))
}

func TestNextThenPreviousRestoresCursor(t *testing.T) {
	sources := []string{"A", "B", "C", "D"}
	lookup := loaded(sources...)
	w := window.New(350)
	w.Recompute(sources, lookup, 700)

	before := w.State()
	w.Next(sources, lookup)
	w.Previous(sources, lookup)
	assert.Equal(t, before, w.State())
}

func TestRecomputeIsIdempotent(t *testing.T) {
	sources := []string{"A", "B", "C", "D", "E"}
	lookup := loaded(sources...)
	w := window.New(350)
	w.Recompute(sources, lookup, 1000)
	w.Next(sources, lookup)

	first := w.Recompute(sources, lookup, 1000)
	second := w.Recompute(sources, lookup, 1000)
	assert.Equal(t, first, second)
	assert.Equal(t, 1000, w.Width())
}

func TestWidenClampsCursor(t *testing.T) {
	sources := []string{"A", "B", "C", "D", "E"}
	lookup := loaded(sources...)
	w := window.New(350)
	w.Recompute(sources, lookup, 350)
	for i := 0; i < 4; i++ {
		w.Next(sources, lookup)
	}
	require.Equal(t, 4, w.State().CurrentIndex)

	view := w.Recompute(sources, lookup, 1400)
	assert.Equal(t, models.WindowState{CurrentIndex: 1, VisibleCount: 4}, view.State)
	assert.Equal(t, []string{"B", "C", "D", "E"}, columnSources(view))
}

func TestRemovalClampsCursor(t *testing.T) {
	sources := []string{"A", "B", "C"}
	lookup := loaded(sources...)
	w := window.New(350)
	w.Recompute(sources, lookup, 350)
	w.Next(sources, lookup)
	w.Next(sources, lookup)
	require.Equal(t, 2, w.State().CurrentIndex)

	view := w.Present([]string{"A", "B"}, lookup)
	assert.Equal(t, 1, view.State.CurrentIndex)
	assert.Equal(t, []string{"B"}, columnSources(view))
}

func TestEmptySources(t *testing.T) {
	w := window.New(350)
	view := w.Recompute(nil, mapLookup{}, 1000)

	assert.Empty(t, view.Columns)
	assert.NotNil(t, view.Columns)
	assert.Equal(t, window.EmptyMessage, view.Message)
	assert.False(t, view.ShowNavigation)
	assert.False(t, view.CanNext)
	assert.False(t, view.CanPrevious)
}

func TestNavigationHiddenWhenEverythingFits(t *testing.T) {
	sources := []string{"A", "B"}
	w := window.New(350)
	view := w.Recompute(sources, loaded(sources...), 1400)

	assert.False(t, view.ShowNavigation)
	assert.Equal(t, []string{"A", "B"}, columnSources(view))
}

func TestColumnsKeepOrderWithFailure(t *testing.T) {
	sources := []string{"A", "B", "C"}
	lookup := mapLookup{
		"A": models.Ok("A", "Alpha", []models.FeedItem{{Title: "a1"}}),
		"B": models.Failed("B", models.NetworkError),
		"C": models.Ok("C", "Gamma", nil),
	}
	w := window.New(350)
	view := w.Recompute(sources, lookup, 1050)

	require.Len(t, view.Columns, 3)
	assert.Equal(t, []string{"A", "B", "C"}, columnSources(view))

	assert.Equal(t, "Alpha", view.Columns[0].Title)
	assert.Empty(t, view.Columns[0].Error)

	assert.Equal(t, "Feed 2 (Error)", view.Columns[1].Title)
	assert.Equal(t, window.ErrorMessage, view.Columns[1].Error)
	require.NotNil(t, view.Columns[1].Result)
	assert.Equal(t, models.NetworkError, view.Columns[1].Result.Reason)

	assert.Equal(t, "Gamma", view.Columns[2].Title)
	assert.Equal(t, 3, view.Columns[2].Position)
}

func TestMissingResultIsPending(t *testing.T) {
	sources := []string{"A", "B"}
	w := window.New(350)
	view := w.Recompute(sources, loaded("A"), 700)

	require.Len(t, view.Columns, 2)
	assert.False(t, view.Columns[0].Pending)
	assert.True(t, view.Columns[1].Pending)
	assert.Nil(t, view.Columns[1].Result)
	assert.Equal(t, "Feed 2", view.Columns[1].Title)
}
