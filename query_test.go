package rhi

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeQuery struct {
	typ QueryType
}

func (q fakeQuery) Label() string         { return "fake " + q.typ.String() }
func (q fakeQuery) Type() QueryType       { return q.typ }
func (q fakeQuery) RenderCondition() bool { return false }
func (q fakeQuery) State() QueryState     { return QueryPending }

// pollContext resolves its query after a number of QueryResult polls.
type pollContext struct {
	RenderContext
	flushes   int
	polls     int
	readyAt   int
	value     uint64
	flushErr  error
	waited    bool
	waitError error
}

func (c *pollContext) Flush() error {
	c.flushes++
	return c.flushErr
}

func (c *pollContext) QueryResult(Query) (uint64, bool, error) {
	c.polls++
	if c.readyAt >= 0 && c.polls >= c.readyAt {
		return c.value, true, nil
	}
	return 0, false, nil
}

// waitingContext adds QueryWaiter to pollContext.
type waitingContext struct {
	*pollContext
}

func (c waitingContext) WaitQuery(ctx context.Context, q Query) error {
	c.waited = true
	if c.waitError != nil {
		return c.waitError
	}
	c.readyAt = 0
	return nil
}

func TestGetAndSyncQueryResult_Polls(t *testing.T) {
	rc := &pollContext{readyAt: 3, value: 42}
	v, err := GetAndSyncQueryResult(context.Background(), rc, fakeQuery{QuerySamplesPassed})
	if err != nil {
		t.Fatalf("GetAndSyncQueryResult: %v", err)
	}
	if v != 42 {
		t.Errorf("value = %d, want 42", v)
	}
	if rc.flushes != 1 || rc.polls != 3 {
		t.Errorf("flushes = %d, polls = %d; want 1, 3", rc.flushes, rc.polls)
	}
}

func TestGetAndSyncQueryResult_Waiter(t *testing.T) {
	base := &pollContext{readyAt: -1, value: 7}
	v, err := GetAndSyncQueryResult(context.Background(), waitingContext{base}, fakeQuery{QueryPrimitivesGenerated})
	if err != nil {
		t.Fatalf("GetAndSyncQueryResult: %v", err)
	}
	if !base.waited || v != 7 || base.polls != 1 {
		t.Errorf("waited = %v, value = %d, polls = %d", base.waited, v, base.polls)
	}

	base = &pollContext{readyAt: -1, waitError: ErrReleased}
	if _, err := GetAndSyncQueryResult(context.Background(), waitingContext{base}, fakeQuery{}); !errors.Is(err, ErrReleased) {
		t.Errorf("wait error = %v", err)
	}
}

func TestGetAndSyncQueryResult_FlushError(t *testing.T) {
	rc := &pollContext{flushErr: ErrValidation}
	if _, err := GetAndSyncQueryResult(context.Background(), rc, fakeQuery{}); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if rc.polls != 0 {
		t.Errorf("polled %d times after a failed flush", rc.polls)
	}
}

func TestGetAndSyncQueryResult_Deadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rc := &pollContext{readyAt: -1}
	if _, err := GetAndSyncQueryResult(ctx, rc, fakeQuery{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestQueryType_Kind(t *testing.T) {
	tests := []struct {
		typ  QueryType
		kind QueryKind
	}{
		{QueryAnySamplesPassed, QueryKindOcclusion},
		{QuerySamplesPassed, QueryKindOcclusion},
		{QueryPrimitivesGenerated, QueryKindPrimitives},
		{QueryTimeElapsed, QueryKindTimer},
	}
	for _, tt := range tests {
		if got := tt.typ.Kind(); got != tt.kind {
			t.Errorf("%s.Kind() = %d, want %d", tt.typ, got, tt.kind)
		}
	}
	if got := QueryType(9).String(); got != "QueryType(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestRenderConditionMode_Passes(t *testing.T) {
	tests := []struct {
		mode      RenderConditionMode
		result    uint64
		available bool
		want      bool
	}{
		{ConditionWait, 5, true, true},
		{ConditionWait, 0, true, false},
		{ConditionWaitInverted, 0, true, true},
		{ConditionWaitInverted, 5, true, false},
		{ConditionNoWait, 0, false, true},
		{ConditionByRegionNoWaitInverted, 0, false, true},
		{ConditionByRegionWait, 0, false, false},
		{ConditionByRegionNoWait, 0, true, false},
	}
	for _, tt := range tests {
		if got := tt.mode.Passes(tt.result, tt.available); got != tt.want {
			t.Errorf("%s.Passes(%d, %v) = %v, want %v", tt.mode, tt.result, tt.available, got, tt.want)
		}
	}
}
