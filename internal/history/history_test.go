package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()

	h, err := Open(filepath.Join(t.TempDir(), "deployments.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	return h
}

func TestAppendAndRecent(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	records := []*Record{
		{
			Environment:     "production",
			Revision:        "aaaaaaaaaaaa",
			Action:          "deployed",
			Status:          StatusSucceeded,
			DurationSeconds: 12.5,
		},
		{
			Environment: "staging",
			Revision:    "bbbbbbbbbbbb",
			Action:      "deployed",
			Status:      StatusSucceeded,
		},
		{
			Environment:  "production",
			Revision:     "cccccccccccc",
			Previous:     "aaaaaaaaaaaa",
			Action:       "deployed",
			Status:       StatusFailed,
			ErrorMessage: "librarian-puppet exited 1",
		},
	}
	for _, record := range records {
		id, err := h.Append(ctx, record)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if id == 0 {
			t.Error("Append returned zero ID")
		}
	}

	all, err := h.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Recent returned %d records, expected 3", len(all))
	}

	// Newest first
	if all[0].Revision != "cccccccccccc" {
		t.Errorf("first record revision = %q, expected newest", all[0].Revision)
	}
	if all[0].Previous != "aaaaaaaaaaaa" {
		t.Errorf("Previous = %q", all[0].Previous)
	}
	if all[0].Status != StatusFailed {
		t.Errorf("Status = %q, expected %q", all[0].Status, StatusFailed)
	}
	if all[0].ErrorMessage != "librarian-puppet exited 1" {
		t.Errorf("ErrorMessage = %q", all[0].ErrorMessage)
	}
	if all[0].StartedAt.IsZero() {
		t.Error("StartedAt not defaulted on append")
	}
	if all[0].CompletedAt == nil {
		t.Error("CompletedAt not defaulted on append")
	}
}

func TestRecent_FiltersByEnvironment(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	for _, env := range []string{"production", "staging", "production"} {
		if _, err := h.Append(ctx, &Record{
			Environment: env,
			Revision:    "aaaaaaaaaaaa",
			Action:      "deployed",
			Status:      StatusSucceeded,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := h.Recent(ctx, "production", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent returned %d records, expected 2", len(records))
	}
	for _, record := range records {
		if record.Environment != "production" {
			t.Errorf("filtered query returned environment %q", record.Environment)
		}
	}
}

func TestRecent_HonorsLimit(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := h.Append(ctx, &Record{
			Environment: "production",
			Revision:    "aaaaaaaaaaaa",
			Action:      "deployed",
			Status:      StatusSucceeded,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := h.Recent(ctx, "", 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Recent returned %d records, expected 2", len(records))
	}
}

func TestLatest(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	latest, err := h.Latest(ctx, "production")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest on empty ledger = %+v, expected nil", latest)
	}

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(30 * time.Second)
	for _, revision := range []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb"} {
		if _, err := h.Append(ctx, &Record{
			Environment: "production",
			Revision:    revision,
			Action:      "deployed",
			Status:      StatusSucceeded,
			StartedAt:   started,
			CompletedAt: &completed,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	latest, err = h.Latest(ctx, "production")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil {
		t.Fatal("Latest returned nil after appends")
	}
	if latest.Revision != "bbbbbbbbbbbb" {
		t.Errorf("Latest revision = %q, expected the most recent append", latest.Revision)
	}
	if !latest.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, expected %v", latest.StartedAt, started)
	}
	if latest.CompletedAt == nil || !latest.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, expected %v", latest.CompletedAt, completed)
	}
}
