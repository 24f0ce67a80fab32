package moderation

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ActionKind is the moderation action requested for a candidate.
type ActionKind string

const (
	// ActionAddToList adds the subject to a curated list.
	ActionAddToList ActionKind = "add-to-list"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAddToList:
		return true
	default:
		return false
	}
}

// ParseActionKind converts a stored action tag back into an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

// Candidate is a staged subject awaiting a moderation action.
type Candidate struct {
	// Subject is the opaque actor identifier (a DID on Bluesky).
	Subject string `json:"subject"`

	// Handle is informational only.
	Handle string `json:"handle"`

	// Source references the post the reaction was observed on.
	Source string `json:"source"`

	Action   ActionKind `json:"action"`
	StagedAt time.Time  `json:"staged_at"`
}

// DoneRecord is a candidate whose action was applied.
// TargetList is assigned at drain time, not at ingestion.
type DoneRecord struct {
	Candidate
	TargetList string    `json:"target_list"`
	RunID      string    `json:"run_id"`
	DoneAt     time.Time `json:"done_at"`
}

// ListItem is the payload handed to the platform client when adding a
// subject to a list. It is a plain value; callers never mutate it.
type ListItem struct {
	Subject   string
	List      string
	CreatedAt time.Time
}

// NewListItem builds the add-to-list payload for a candidate.
func NewListItem(c Candidate, list string, at time.Time) ListItem {
	return ListItem{Subject: c.Subject, List: list, CreatedAt: at.UTC()}
}

// NormalizeHandle returns the canonical form of an account handle used as a
// storage key: leading "@" removed, NFC-normalized and case-folded.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return cases.Fold().String(norm.NFC.String(h))
}
