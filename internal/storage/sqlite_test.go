package storage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gitlab_notify/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if _, ok, err := s.GetValue(ctx, "notificationCache"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.SetValue(ctx, "notificationCache", `{"a":true}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := s.GetValue(ctx, "notificationCache")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != `{"a":true}` {
		t.Errorf("got %q ok=%v, want %q", got, ok, `{"a":true}`)
	}

	// Overwrite replaces the previous value.
	if err := s.SetValue(ctx, "notificationCache", `{"a":true,"b":true}`); err != nil {
		t.Fatalf("set again: %v", err)
	}
	got, _, err = s.GetValue(ctx, "notificationCache")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if got != `{"a":true,"b":true}` {
		t.Errorf("got %q after overwrite", got)
	}
}

func TestNotifiedHistories(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	entries := []model.HistoryEntry{
		{
			ID:          "15_Issue_830_closed_2015-12-04T10:33:58.089Z",
			ProjectID:   15,
			ProjectName: "sue445/example",
			TargetType:  "Issue",
			TargetID:    830,
			TargetURL:   "http://example.com/sue445/example/issues/830",
			ActionName:  "closed",
			TargetTitle: "Public project search field",
			AuthorID:    1,
			AuthorName:  "Dmitriy Zaporozhets",
			Message:     "[Issue] #830 Public project search field closed",
			CreatedAt:   "2015-12-04T10:33:58.089Z",
			NotifiedAt:  "2015-12-04T11:00:00Z",
		},
		{
			ID:          "15_MergeRequest_12_opened_2015-12-05T08:00:00.000Z",
			ProjectID:   15,
			ProjectName: "sue445/example",
			TargetType:  "MergeRequest",
			TargetID:    3,
			TargetURL:   "http://example.com/sue445/example/merge_requests/3",
			ActionName:  "opened",
			TargetTitle: "Add search",
			AuthorID:    2,
			Message:     "[MergeRequest] #3 Add search opened",
			CreatedAt:   "2015-12-05T08:00:00.000Z",
			NotifiedAt:  "2015-12-05T08:05:00Z",
		},
	}

	if err := s.AddNotifiedHistories(ctx, entries); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Re-adding the same ids must not duplicate rows.
	if err := s.AddNotifiedHistories(ctx, entries[:1]); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	got, err := s.ListNotifiedHistories(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []model.HistoryEntry{entries[1], entries[0]} // newest first
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("histories mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.ListNotifiedHistories(ctx, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != entries[1].ID {
		t.Errorf("expected only the newest entry, got %+v", limited)
	}
}

func TestAddNotifiedHistoriesEmpty(t *testing.T) {
	s := newTestDB(t)
	if err := s.AddNotifiedHistories(context.Background(), nil); err != nil {
		t.Fatalf("empty add: %v", err)
	}
}
