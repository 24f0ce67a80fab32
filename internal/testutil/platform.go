package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/reactsync/internal/bsky"
	"github.com/roach88/reactsync/internal/moderation"
)

// FakePlatform is an in-memory stand-in for the bsky client.
//
// Likes pages are keyed by the cursor that requests them; the first page is
// keyed by "". AddToList fails for subjects listed in FailFor.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakePlatform struct {
	mu sync.Mutex

	Pages      map[string]bsky.LikesPage
	PageErrors map[string]error
	FailFor    map[string]error
	Unresolved map[string]bool

	likesCalls []string
	added      []moderation.ListItem
}

// NewFakePlatform creates a platform with no pages.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Pages:      map[string]bsky.LikesPage{},
		PageErrors: map[string]error{},
		FailFor:    map[string]error{},
		Unresolved: map[string]bool{},
	}
}

// AddPage registers the page served for cursor.
func (f *FakePlatform) AddPage(cursor, next string, dids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := bsky.LikesPage{Cursor: next}
	for _, did := range dids {
		page.Actors = append(page.Actors, bsky.Actor{DID: did, Handle: did + ".test"})
	}
	f.Pages[cursor] = page
}

// ResolvePost returns the reference unchanged unless marked unresolved.
func (f *FakePlatform) ResolvePost(_ context.Context, postRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unresolved[postRef] {
		return "", moderation.NewResolutionError(postRef, errors.New("not found"))
	}
	return postRef, nil
}

// ResolveList returns the reference unchanged unless marked unresolved.
func (f *FakePlatform) ResolveList(_ context.Context, listRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unresolved[listRef] {
		return "", moderation.NewResolutionError(listRef, errors.New("not found"))
	}
	return listRef, nil
}

// GetLikes serves the page registered for cursor.
func (f *FakePlatform) GetLikes(_ context.Context, _ string, cursor string) (bsky.LikesPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likesCalls = append(f.likesCalls, cursor)
	if err := f.PageErrors[cursor]; err != nil {
		return bsky.LikesPage{}, err
	}
	page, ok := f.Pages[cursor]
	if !ok {
		return bsky.LikesPage{}, fmt.Errorf("no page for cursor %q", cursor)
	}
	return page, nil
}

// AddToList records item, or fails if item.Subject is in FailFor.
func (f *FakePlatform) AddToList(_ context.Context, item moderation.ListItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[item.Subject]; ok {
		return moderation.NewExternalActionError(item.Subject, err)
	}
	f.added = append(f.added, item)
	return nil
}

// LikesCalls returns the cursors GetLikes was called with, in order.
func (f *FakePlatform) LikesCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.likesCalls...)
}

// Added returns every successful AddToList item, in order.
func (f *FakePlatform) Added() []moderation.ListItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]moderation.ListItem(nil), f.added...)
}

// AddedSubjects returns the subjects of Added.
func (f *FakePlatform) AddedSubjects() []string {
	items := f.Added()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Subject
	}
	return out
}
