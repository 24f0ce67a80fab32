package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/reactsync/internal/moderation"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testStagedAt is a fixed staging time so records compare exactly.
var testStagedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestCandidate creates a candidate with minimal required fields.
func createTestCandidate(subject string) moderation.Candidate {
	return moderation.Candidate{
		Subject:  subject,
		Handle:   subject + ".test",
		Source:   "at://did:plc:author/app.bsky.feed.post/3kpost",
		Action:   moderation.ActionAddToList,
		StagedAt: testStagedAt,
	}
}
