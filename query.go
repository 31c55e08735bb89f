package rhi

import (
	"context"
	"fmt"
	"time"
)

// QueryType selects the counter a query observes.
type QueryType uint8

const (
	// QueryAnySamplesPassed resolves to 1 if any sample passed the depth
	// test between begin and end, else 0.
	QueryAnySamplesPassed QueryType = iota
	// QuerySamplesPassed resolves to the number of samples that passed.
	QuerySamplesPassed
	// QueryPrimitivesGenerated resolves to the number of primitives
	// assembled by draws that executed.
	QueryPrimitivesGenerated
	// QueryTimeElapsed resolves to device execution time in nanoseconds.
	QueryTimeElapsed
)

// String returns the type name.
func (t QueryType) String() string {
	switch t {
	case QueryAnySamplesPassed:
		return "AnySamplesPassed"
	case QuerySamplesPassed:
		return "SamplesPassed"
	case QueryPrimitivesGenerated:
		return "PrimitivesGenerated"
	case QueryTimeElapsed:
		return "TimeElapsed"
	default:
		return fmt.Sprintf("QueryType(%d)", uint8(t))
	}
}

// QueryKind groups query types that may not nest with each other.
type QueryKind uint8

const (
	QueryKindOcclusion QueryKind = iota
	QueryKindPrimitives
	QueryKindTimer
	queryKindCount
)

// NumQueryKinds is the number of query kinds.
const NumQueryKinds = int(queryKindCount)

// Kind returns the nesting kind of the type.
func (t QueryType) Kind() QueryKind {
	switch t {
	case QueryPrimitivesGenerated:
		return QueryKindPrimitives
	case QueryTimeElapsed:
		return QueryKindTimer
	default:
		return QueryKindOcclusion
	}
}

// RenderConditionMode controls how a render condition waits for and
// interprets its query.
type RenderConditionMode uint8

const (
	// ConditionWait waits for the query result and draws if it is nonzero.
	ConditionWait RenderConditionMode = iota
	// ConditionNoWait draws if the result is nonzero or not yet available.
	ConditionNoWait
	// ConditionByRegionWait is ConditionWait with per-region granularity.
	ConditionByRegionWait
	// ConditionByRegionNoWait is ConditionNoWait with per-region granularity.
	ConditionByRegionNoWait
	ConditionWaitInverted
	ConditionNoWaitInverted
	ConditionByRegionWaitInverted
	ConditionByRegionNoWaitInverted
)

// Inverted reports whether draws execute on a zero result.
func (m RenderConditionMode) Inverted() bool {
	return m >= ConditionWaitInverted
}

// Waits reports whether the mode waits for the result.
func (m RenderConditionMode) Waits() bool {
	switch m {
	case ConditionNoWait, ConditionByRegionNoWait, ConditionNoWaitInverted, ConditionByRegionNoWaitInverted:
		return false
	default:
		return true
	}
}

// Passes evaluates the predicate for a query result. A no-wait mode
// passes while the result is unavailable.
func (m RenderConditionMode) Passes(result uint64, available bool) bool {
	if !available {
		return !m.Waits()
	}
	return (result != 0) != m.Inverted()
}

// String returns the mode name.
func (m RenderConditionMode) String() string {
	names := [...]string{
		"Wait", "NoWait", "ByRegionWait", "ByRegionNoWait",
		"WaitInverted", "NoWaitInverted", "ByRegionWaitInverted", "ByRegionNoWaitInverted",
	}
	if int(m) < len(names) {
		return names[m]
	}
	return fmt.Sprintf("RenderConditionMode(%d)", uint8(m))
}

// QueryWaiter is implemented by render contexts that can block on the
// completion of the submission that ends a query.
type QueryWaiter interface {
	WaitQuery(ctx context.Context, q Query) error
}

// Poll intervals of GetAndSyncQueryResult for contexts without QueryWaiter.
const (
	minQueryPoll = 50 * time.Microsecond
	maxQueryPoll = 5 * time.Millisecond
)

// GetAndSyncQueryResult submits recorded work and blocks until the result
// of q is available. It returns ctx.Err() if ctx is done first. A result is
// never returned before the GPU work up to EndQuery has completed.
func GetAndSyncQueryResult(ctx context.Context, rc RenderContext, q Query) (uint64, error) {
	if err := rc.Flush(); err != nil {
		return 0, fmt.Errorf("sync query %q: %w", q.Label(), err)
	}
	if w, ok := rc.(QueryWaiter); ok {
		if err := w.WaitQuery(ctx, q); err != nil {
			return 0, err
		}
	}

	wait := minQueryPoll
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		v, ok, err := rc.QueryResult(q)
		if err != nil {
			return 0, err
		}
		if ok {
			return v, nil
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, maxQueryPoll)
	}
}
