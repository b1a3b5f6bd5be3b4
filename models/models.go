package models

import (
	"fmt"
	"time"
)

// Placeholders used when a feed entry lacks a field
const (
	NoTitle       = "No title"
	NoLink        = "#"
	NoDescription = "No description"
)

// ErrorKind classifies every failure the aggregator can surface
type ErrorKind string

const (
	InvalidURL       ErrorKind = "InvalidUrl"
	CapacityExceeded ErrorKind = "CapacityExceeded"
	NotFound         ErrorKind = "NotFound"
	DuplicateSource  ErrorKind = "DuplicateSource"
	NetworkError     ErrorKind = "NetworkError"
	ParseError       ErrorKind = "ParseError"
	MalformedFeed    ErrorKind = "MalformedFeed"
)

// FeedError carries an ErrorKind together with the source it concerns.
// Two FeedErrors match under errors.Is when their kinds are equal.
type FeedError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *FeedError) Error() string {
	msg := string(e.Kind)
	if e.Source != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Source)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

func (e *FeedError) Is(target error) bool {
	t, ok := target.(*FeedError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidURL       = &FeedError{Kind: InvalidURL}
	ErrCapacityExceeded = &FeedError{Kind: CapacityExceeded}
	ErrNotFound         = &FeedError{Kind: NotFound}
	ErrDuplicateSource  = &FeedError{Kind: DuplicateSource}
	ErrNetwork          = &FeedError{Kind: NetworkError}
	ErrParse            = &FeedError{Kind: ParseError}
	ErrMalformedFeed    = &FeedError{Kind: MalformedFeed}
)

// NewFeedError wraps err with a kind and the source identity
func NewFeedError(kind ErrorKind, source string, err error) *FeedError {
	return &FeedError{Kind: kind, Source: source, Err: err}
}

// Message returns the human readable rejection shown for registry errors
func (k ErrorKind) Message(maxSources int) string {
	switch k {
	case InvalidURL:
		return "Please enter a valid URL."
	case CapacityExceeded:
		return fmt.Sprintf("You can only add up to %d feeds.", maxSources)
	case NotFound:
		return "Feed not found."
	case DuplicateSource:
		return "This feed has already been added."
	default:
		return "Error loading feed."
	}
}

// FeedItem is one entry of a parsed feed
type FeedItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// FeedRenderResult is the outcome of fetching one source. Reason is empty
// for a successful fetch.
type FeedRenderResult struct {
	Source    string     `json:"source"`
	Title     string     `json:"title,omitempty"`
	Items     []FeedItem `json:"items,omitempty"`
	Reason    ErrorKind  `json:"reason,omitempty"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

func (r FeedRenderResult) OK() bool {
	return r.Reason == ""
}

func Ok(source, title string, items []FeedItem) FeedRenderResult {
	if items == nil {
		items = []FeedItem{}
	}
	return FeedRenderResult{
		Source:    source,
		Title:     title,
		Items:     items,
		FetchedAt: time.Now(),
	}
}

func Failed(source string, reason ErrorKind) FeedRenderResult {
	return FeedRenderResult{
		Source:    source,
		Reason:    reason,
		FetchedAt: time.Now(),
	}
}

// WindowState is the cursor over the ordered sources
type WindowState struct {
	CurrentIndex int `json:"currentIndex"`
	VisibleCount int `json:"visibleCount"`
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	}
	return "", fmt.Errorf("unknown theme %q, expected dark or light", s)
}

func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// CycleStartedEvent fired when an aggregation cycle begins
type CycleStartedEvent struct {
	Sources int `json:"sources"`
}

// SourceFetchedEvent fired when one source resolves during a cycle
type SourceFetchedEvent struct {
	Source   string    `json:"source"`
	Reason   ErrorKind `json:"reason,omitempty"`
	Admitted bool      `json:"admitted"`
}

// CycleCompletedEvent fired once every fetch of a cycle has resolved
type CycleCompletedEvent struct {
	Sources   int           `json:"sources"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}
