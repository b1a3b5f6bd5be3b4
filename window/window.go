// Package window computes which contiguous run of sources fits the viewport.
package window

import (
	"fmt"

	"feedstrip/models"

	"github.com/samber/lo"
)

const (
	DefaultMinColumnWidth = 350

	EmptyMessage   = "No feeds added. Please add an RSS feed URL."
	ErrorMessage   = "Error loading feed."
	PendingMessage = "Feed is still loading."
)

// Lookup is the read side of the FeedStore
type Lookup interface {
	Get(identity string) (models.FeedRenderResult, bool)
}

// Column is one visible source. Result is nil while the fetch is pending.
type Column struct {
	Source   string                   `json:"source"`
	Position int                      `json:"position"`
	Title    string                   `json:"title"`
	Result   *models.FeedRenderResult `json:"result,omitempty"`
	Pending  bool                     `json:"pending"`
	Error    string                   `json:"error,omitempty"`
}

// View is everything a rendering layer needs from the core
type View struct {
	State          models.WindowState `json:"state"`
	Sources        int                `json:"sources"`
	Columns        []Column           `json:"columns"`
	CanPrevious    bool               `json:"canPrevious"`
	CanNext        bool               `json:"canNext"`
	ShowNavigation bool               `json:"showNavigation"`
	Loading        bool               `json:"loading"`
	Message        string             `json:"message,omitempty"`
}

// Windower holds the cursor and the last known width. It is not safe for
// concurrent use; callers serialize access.
type Windower struct {
	minColumnWidth int
	width          int
	state          models.WindowState
}

func New(minColumnWidth int) *Windower {
	if minColumnWidth < 1 {
		minColumnWidth = DefaultMinColumnWidth
	}
	return &Windower{
		minColumnWidth: minColumnWidth,
		state:          models.WindowState{VisibleCount: 1},
	}
}

// VisibleCount is the number of columns of minColumnWidth that fit in width, at least one
func VisibleCount(width, minColumnWidth int) int {
	if width < 0 || minColumnWidth < 1 {
		return 1
	}
	return max(1, width/minColumnWidth)
}

// Clamp keeps the window inside [0, sourceCount)
func Clamp(state models.WindowState, sourceCount int) models.WindowState {
	if state.CurrentIndex+state.VisibleCount > sourceCount {
		state.CurrentIndex = max(0, sourceCount-state.VisibleCount)
	}
	if state.CurrentIndex < 0 {
		state.CurrentIndex = 0
	}
	return state
}

func (w *Windower) State() models.WindowState {
	return w.state
}

func (w *Windower) Width() int {
	return w.width
}

// Recompute records a new available width and presents the window
func (w *Windower) Recompute(sources []string, lookup Lookup, width int) View {
	w.width = width
	w.state.VisibleCount = VisibleCount(width, w.minColumnWidth)
	return w.Present(sources, lookup)
}

// Present clamps the cursor against the current sources and builds the view
func (w *Windower) Present(sources []string, lookup Lookup) View {
	w.state = Clamp(w.state, len(sources))
	return build(w.state, sources, lookup)
}

func (w *Windower) Next(sources []string, lookup Lookup) View {
	if w.state.CurrentIndex < len(sources)-w.state.VisibleCount {
		w.state.CurrentIndex++
	}
	return w.Present(sources, lookup)
}

func (w *Windower) Previous(sources []string, lookup Lookup) View {
	if w.state.CurrentIndex > 0 {
		w.state.CurrentIndex--
	}
	return w.Present(sources, lookup)
}

func build(state models.WindowState, sources []string, lookup Lookup) View {
	count := len(sources)
	view := View{
		State:          state,
		Sources:        count,
		Columns:        []Column{},
		CanPrevious:    state.CurrentIndex > 0,
		CanNext:        state.CurrentIndex+state.VisibleCount < count,
		ShowNavigation: count > state.VisibleCount,
	}

	if count == 0 {
		view.Message = EmptyMessage
		return view
	}

	end := min(count, state.CurrentIndex+state.VisibleCount)
	view.Columns = lo.Map(sources[state.CurrentIndex:end], func(source string, i int) Column {
		return column(source, state.CurrentIndex+i+1, lookup)
	})

	return view
}

func column(source string, position int, lookup Lookup) Column {
	col := Column{Source: source, Position: position}

	result, ok := lookup.Get(source)
	switch {
	case !ok:
		col.Pending = true
		col.Title = fmt.Sprintf("Feed %d", position)
		col.Error = PendingMessage
	case !result.OK():
		col.Result = &result
		col.Title = fmt.Sprintf("Feed %d (Error)", position)
		col.Error = ErrorMessage
	default:
		col.Result = &result
		col.Title = result.Title
	}

	return col
}
