package playback

import (
	"github.com/Bugaddr/audiolens/internal/transcript"
)

// DefaultLeadBias nudges the clock forward so the highlight lands on the
// spoken word instead of trailing it through render latency.
const DefaultLeadBias = 0.15

// NoSegment marks frames with no active segment.
const NoSegment = -1

// Transition reports one frame's highlight change. Entered is the segment
// index now active and Exited the one that stopped being active; either
// may be NoSegment, never both.
type Transition struct {
	Entered int
	Exited  int
}

// Callback observes a segment entering or leaving the active position.
type Callback func(index int, segment transcript.Segment)

// Option customises the engine.
type Option func(*Engine)

// WithLeadBias overrides the forward clock bias, in seconds.
func WithLeadBias(seconds float64) Option {
	return func(e *Engine) {
		if seconds >= 0 {
			e.leadBias = seconds
		}
	}
}

// OnEnter registers a callback fired when a segment becomes active.
func OnEnter(fn Callback) Option {
	return func(e *Engine) {
		e.onEnter = fn
	}
}

// OnExit registers a callback fired when a segment stops being active.
func OnExit(fn Callback) Option {
	return func(e *Engine) {
		e.onExit = fn
	}
}

// Engine tracks the active segment for a transcript under a moving clock.
type Engine struct {
	segments []transcript.Segment
	leadBias float64
	onEnter  Callback
	onExit   Callback
	active   int
}

// New builds an engine over the transcript's segments. An empty transcript
// yields an engine that stays idle on every frame.
func New(tr transcript.Transcript, opts ...Option) *Engine {
	e := &Engine{
		segments: tr.Segments,
		leadBias: DefaultLeadBias,
		active:   NoSegment,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ActiveIndex reports the currently active segment, NoSegment when idle.
func (e *Engine) ActiveIndex() int {
	return e.active
}

// Active returns the active segment, if any.
func (e *Engine) Active() (transcript.Segment, bool) {
	if e.active == NoSegment {
		return transcript.Segment{}, false
	}
	return e.segments[e.active], true
}

// Advance recomputes the active segment for the given clock position, in
// seconds, and reports whether it changed. Exit fires before enter so a
// consumer never shows two highlights at once.
func (e *Engine) Advance(clock float64) (Transition, bool) {
	idx := e.scan(clock + e.leadBias)
	if idx == e.active {
		return Transition{Entered: NoSegment, Exited: NoSegment}, false
	}

	change := Transition{Entered: idx, Exited: e.active}
	previous := e.active
	e.active = idx

	if e.onExit != nil && previous != NoSegment {
		e.onExit(previous, e.segments[previous])
	}
	if e.onEnter != nil && idx != NoSegment {
		e.onEnter(idx, e.segments[idx])
	}
	return change, true
}

// scan finds the first segment whose half-open window [start, end) holds t.
// A shared boundary belongs to the segment starting there, so adjacent
// segments hand off with exactly one exit and one enter. Segments are
// time-sorted, so the scan stops at the first start beyond t; if upstream
// data ever overlaps, the earliest match wins.
func (e *Engine) scan(t float64) int {
	for i, seg := range e.segments {
		if seg.Start > t {
			break
		}
		if t < seg.End {
			return i
		}
	}
	return NoSegment
}
