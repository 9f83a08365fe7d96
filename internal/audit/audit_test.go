package audit

import (
	"context"
	"testing"

	"github.com/tezrelay/relay/internal/models"
)

// recordingSink is an in-memory Sink substitute that records the audit
// entries passed to it.
type recordingSink struct {
	entries []Entry
}

func (r *recordingSink) Record(_ context.Context, e Entry) {
	r.entries = append(r.entries, e)
}

func TestRecordingSinkImplementsSink(t *testing.T) {
	var s Sink = &recordingSink{}
	s.Record(context.Background(), Entry{
		ActorUserID: "alice",
		Action:      models.ActionTezShared,
		TargetType:  "tez",
		TargetID:    "01ARZ3NDEKTSV4RRFFQ69G5FAV",
	})

	rs := s.(*recordingSink)
	if len(rs.entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(rs.entries))
	}
	if rs.entries[0].Action != models.ActionTezShared {
		t.Errorf("action = %q", rs.entries[0].Action)
	}
}

func TestEntryMetadataIsOptional(t *testing.T) {
	e := Entry{ActorUserID: "alice", Action: models.ActionTezRead, TargetType: "tez", TargetID: "x"}
	if e.Metadata != nil {
		t.Error("expected nil metadata by default")
	}
}
