package bsky

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/reactsync/internal/moderation"
)

// Record collections used by the client.
const (
	CollectionPost     = "app.bsky.feed.post"
	CollectionList     = "app.bsky.graph.list"
	CollectionListItem = "app.bsky.graph.listitem"
)

// RecordRef points at a record by actor (handle or DID), collection and key.
type RecordRef struct {
	Actor      string
	Collection string
	RKey       string
}

// URI renders the reference as an at:// URI.
func (r RecordRef) URI() string {
	return fmt.Sprintf("at://%s/%s/%s", r.Actor, r.Collection, r.RKey)
}

// ParsePostRef accepts a bsky.app post URL
// (https://bsky.app/profile/<actor>/post/<rkey>) or an at:// post URI.
func ParsePostRef(s string) (RecordRef, error) {
	return parseRef(s, "post", CollectionPost)
}

// ParseListRef accepts a bsky.app list URL
// (https://bsky.app/profile/<actor>/lists/<rkey>) or an at:// list URI.
func ParseListRef(s string) (RecordRef, error) {
	return parseRef(s, "lists", CollectionList)
}

func parseRef(s, segment, collection string) (RecordRef, error) {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, "at://"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return RecordRef{}, moderation.NewResolutionError(s, fmt.Errorf("malformed at:// URI"))
		}
		if parts[1] != collection {
			return RecordRef{}, moderation.NewResolutionError(s,
				fmt.Errorf("collection %q, want %q", parts[1], collection))
		}
		return RecordRef{Actor: parts[0], Collection: collection, RKey: parts[2]}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return RecordRef{}, moderation.NewResolutionError(s, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return RecordRef{}, moderation.NewResolutionError(s, fmt.Errorf("unsupported reference"))
	}

	// profile/<actor>/<segment>/<rkey>
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "profile" || parts[2] != segment || parts[1] == "" || parts[3] == "" {
		return RecordRef{}, moderation.NewResolutionError(s,
			fmt.Errorf("expected /profile/<actor>/%s/<rkey>", segment))
	}
	return RecordRef{Actor: parts[1], Collection: collection, RKey: parts[3]}, nil
}
