package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestLogFields(t *testing.T) {
	if got := LogFields(context.Background()); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"})
	got := LogFields(ctx)
	if len(got) != 4 || got[1] != "t1" || got[3] != "r1" {
		t.Fatalf("unexpected fields: %#v", got)
	}
}

func TestDetachKeepsValuesDropsCancel(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithTraceData(parent, &TraceData{TraceID: "t1"})
	cancel()

	ctx := Detach(parent)
	if ctx.Err() != nil {
		t.Fatalf("detached context should not be cancelled")
	}
	if td := GetTraceData(ctx); td == nil || td.TraceID != "t1" {
		t.Fatalf("trace data lost")
	}
}

func TestCarryKeepsRunCancellation(t *testing.T) {
	run, cancel := context.WithCancel(context.Background())
	origin := WithTraceData(context.Background(), &TraceData{RequestID: "r9"})

	ctx := Carry(run, origin)
	if td := GetTraceData(ctx); td == nil || td.RequestID != "r9" {
		t.Fatalf("trace data not carried")
	}
	cancel()
	if ctx.Err() == nil {
		t.Fatalf("carried context should follow run")
	}
	if Carry(run, context.Background()) != run {
		t.Fatalf("no trace data should return run unchanged")
	}
}
