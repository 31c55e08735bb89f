// Package track holds the backend-neutral state machines shared by the
// backends: query lifecycles, the render condition, render target
// attachment sets and explicit resource state transitions.
//
// Trackers run on the recording goroutine. They never touch device
// memory; backends pair every tracker call with the command they record.
package track

import (
	"fmt"
	"slices"

	"github.com/gogpu/rhi"
)

// Query is the tracked lifecycle of one query object. Backends embed it in
// their query type.
type Query struct {
	Type            rhi.QueryType
	RenderCondition bool

	state rhi.QueryState

	// submission is the submission holding the last recorded End, or 0
	// while that End is still unsubmitted.
	submission uint64
}

// NewQuery returns an idle query record.
func NewQuery(t rhi.QueryType, renderCondition bool) *Query {
	return &Query{Type: t, RenderCondition: renderCondition}
}

// State returns the lifecycle state.
func (q *Query) State() rhi.QueryState {
	return q.state
}

// Submission returns the submission index holding the last End, or 0.
func (q *Query) Submission() uint64 {
	return q.submission
}

// Tracked is a backend query object carrying a lifecycle record.
type Tracked interface {
	comparable
	Record() *Query
}

// Record returns q, so a bare *Query can be tracked.
func (q *Query) Record() *Query { return q }

// QueryTracker enforces query nesting and lifecycle rules for one command
// stream, and owns the render condition of that stream.
type QueryTracker[Q Tracked] struct {
	active      [rhi.NumQueryKinds]Q
	unsubmitted []Q

	condition     Q
	conditionMode rhi.RenderConditionMode
}

func isSet[Q comparable](q Q) bool {
	var zero Q
	return q != zero
}

// Begin moves q from Idle or Resolved to Recording. A Pending query whose
// submission is at or below completed counts as Resolved. At most one
// query of each kind may record at a time.
func (t *QueryTracker[Q]) Begin(q Q, completed uint64) error {
	r := q.Record()
	if r.state == rhi.QueryPending && r.submission != 0 && r.submission <= completed {
		r.state = rhi.QueryResolved
	}
	switch r.state {
	case rhi.QueryIdle, rhi.QueryResolved:
	default:
		return fmt.Errorf("begin %s query in state %s: %w", r.Type, r.state, rhi.ErrQueryState)
	}
	kind := r.Type.Kind()
	if a := t.active[kind]; isSet(a) {
		return fmt.Errorf("begin %s query while another %s query is recording: %w",
			r.Type, a.Record().Type, rhi.ErrQueryState)
	}
	if isSet(t.condition) && t.condition == q {
		return fmt.Errorf("begin %s query that drives the active render condition: %w", r.Type, rhi.ErrQueryState)
	}
	t.active[kind] = q
	r.state = rhi.QueryRecording
	r.submission = 0
	return nil
}

// End moves q from Recording to Pending. The query stays pending until the
// submission holding the End has been assigned and observed complete.
func (t *QueryTracker[Q]) End(q Q) error {
	r := q.Record()
	if r.state != rhi.QueryRecording || t.active[r.Type.Kind()] != q {
		return fmt.Errorf("end %s query in state %s: %w", r.Type, r.state, rhi.ErrQueryState)
	}
	var zero Q
	t.active[r.Type.Kind()] = zero
	r.state = rhi.QueryPending
	t.unsubmitted = append(t.unsubmitted, q)
	return nil
}

// Recording reports whether any query is recording.
func (t *QueryTracker[Q]) Recording() bool {
	for _, q := range t.active {
		if isSet(q) {
			return true
		}
	}
	return false
}

// Active returns the recording query of kind k and whether there is one.
func (t *QueryTracker[Q]) Active(k rhi.QueryKind) (Q, bool) {
	return t.active[k], isSet(t.active[k])
}

// Submitted assigns submission to every query whose End was recorded since
// the previous submission.
func (t *QueryTracker[Q]) Submitted(submission uint64) {
	for _, q := range t.unsubmitted {
		r := q.Record()
		if r.state == rhi.QueryPending && r.submission == 0 {
			r.submission = submission
		}
	}
	clear(t.unsubmitted)
	t.unsubmitted = t.unsubmitted[:0]
}

// Poll resolves q if its submission is at or below completed. It reports
// whether the result is available. Polling an idle or recording query is
// an error; polling never causes a submission.
func (t *QueryTracker[Q]) Poll(q Q, completed uint64) (bool, error) {
	r := q.Record()
	switch r.state {
	case rhi.QueryResolved:
		return true, nil
	case rhi.QueryPending:
		if r.submission != 0 && r.submission <= completed {
			r.state = rhi.QueryResolved
			return true, nil
		}
		return false, nil
	default:
		return false, fmt.Errorf("result of %s query in state %s: %w", r.Type, r.state, rhi.ErrQueryState)
	}
}

// BeginCondition makes q the render condition of the stream. q must have
// been created for render conditions, be of occlusion kind and have its End
// recorded; only one condition may be active.
func (t *QueryTracker[Q]) BeginCondition(q Q, mode rhi.RenderConditionMode) error {
	r := q.Record()
	if isSet(t.condition) {
		return fmt.Errorf("begin render condition while one is active: %w", rhi.ErrValidation)
	}
	if !r.RenderCondition {
		return fmt.Errorf("render condition on %s query created without the render condition flag: %w",
			r.Type, rhi.ErrValidation)
	}
	if r.Type.Kind() != rhi.QueryKindOcclusion {
		return fmt.Errorf("render condition on %s query: %w", r.Type, rhi.ErrValidation)
	}
	if mode > rhi.ConditionByRegionNoWaitInverted {
		return fmt.Errorf("render condition mode %s: %w", mode, rhi.ErrValidation)
	}
	switch r.state {
	case rhi.QueryPending, rhi.QueryResolved:
	default:
		return fmt.Errorf("render condition on %s query in state %s: %w", r.Type, r.state, rhi.ErrQueryState)
	}
	t.condition = q
	t.conditionMode = mode
	return nil
}

// EndCondition clears the active render condition.
func (t *QueryTracker[Q]) EndCondition() error {
	if !isSet(t.condition) {
		return fmt.Errorf("end render condition without an active one: %w", rhi.ErrValidation)
	}
	var zero Q
	t.condition = zero
	return nil
}

// Condition returns the active render condition.
func (t *QueryTracker[Q]) Condition() (Q, rhi.RenderConditionMode, bool) {
	return t.condition, t.conditionMode, isSet(t.condition)
}

// Forget drops every reference to q, for example when it is released. It
// reports whether q was recording or drove the render condition.
func (t *QueryTracker[Q]) Forget(q Q) bool {
	var zero Q
	held := false
	for k, a := range t.active {
		if a == q {
			t.active[k] = zero
			held = true
		}
	}
	if t.condition == q {
		t.condition = zero
		held = true
	}
	t.unsubmitted = slices.DeleteFunc(t.unsubmitted, func(u Q) bool { return u == q })
	return held
}
