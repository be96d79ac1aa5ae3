package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	audithook "github.com/xraph/verity/audit_hook"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/types"
)

func TestRecordsSlash(t *testing.T) {
	var got []*audithook.AuditEvent
	ext := audithook.New(audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		got = append(got, ev)
		return nil
	}))

	p := &producer.Producer{ID: id.NewProducerID(), Stake: types.USD(50000)}
	if err := ext.OnStakeSlashed(context.Background(), p, types.USD(50000), "fraud"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("recorded %d events, want 1", len(got))
	}
	ev := got[0]
	if ev.Action != audithook.ActionStakeSlashed || ev.Severity != audithook.SeverityCritical {
		t.Errorf("action=%q severity=%q", ev.Action, ev.Severity)
	}
	if ev.ResourceID != p.ID.String() {
		t.Errorf("resource id = %q, want %q", ev.ResourceID, p.ID.String())
	}
	if ev.Metadata["slashed"] != "500.00 usd" {
		t.Errorf("slashed = %v", ev.Metadata["slashed"])
	}
	if ev.Reason != "fraud" {
		t.Errorf("reason = %q", ev.Reason)
	}
}

func TestDisabledActionsAreSkipped(t *testing.T) {
	calls := 0
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		calls++
		return nil
	}), audithook.WithDisabledActions(audithook.ActionDisputeCreated))

	now := time.Now()
	d := &dispute.Dispute{ID: id.NewDisputeID(), EventID: id.NewEventID(), Resolved: true, ResolvedAt: &now}
	_ = ext.OnDisputeCreated(context.Background(), d)
	_ = ext.OnDisputeResolved(context.Background(), d)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	p := &producer.Producer{ID: id.NewProducerID()}
	if err := ext.OnProducerRegistered(context.Background(), p); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
