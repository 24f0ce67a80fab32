package bsky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/reactsync/internal/moderation"
)

// likesPageLimit is the largest page getLikes serves.
const likesPageLimit = 100

// Actor is a profile reference embedded in feed responses.
type Actor struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// LikesPage is one page of app.bsky.feed.getLikes.
// An empty Cursor means there are no further pages.
type LikesPage struct {
	Actors []Actor
	Cursor string
}

// Post is the subset of a post view shown by inspect.
type Post struct {
	URI       string `json:"uri"`
	Author    Actor  `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	LikeCount int    `json:"like_count"`
}

// ResolveHandle returns the DID for handle. DIDs are returned unchanged.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}

	var resp struct {
		DID string `json:"did"`
	}
	err := c.query(ctx, "com.atproto.identity.resolveHandle", url.Values{"handle": {handle}}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return "", moderation.NewResolutionError(handle, err)
		}
		return "", fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	if resp.DID == "" {
		return "", moderation.NewResolutionError(handle, errors.New("empty DID"))
	}
	return resp.DID, nil
}

func (c *Client) resolveRef(ctx context.Context, ref RecordRef) (string, error) {
	did, err := c.ResolveHandle(ctx, ref.Actor)
	if err != nil {
		return "", err
	}
	ref.Actor = did
	return ref.URI(), nil
}

// ResolvePost turns a post URL or URI into an at:// URI keyed by DID.
func (c *Client) ResolvePost(ctx context.Context, postRef string) (string, error) {
	ref, err := ParsePostRef(postRef)
	if err != nil {
		return "", err
	}
	return c.resolveRef(ctx, ref)
}

// ResolveList turns a list URL or URI into an at:// URI keyed by DID.
func (c *Client) ResolveList(ctx context.Context, listRef string) (string, error) {
	ref, err := ParseListRef(listRef)
	if err != nil {
		return "", err
	}
	return c.resolveRef(ctx, ref)
}

// GetLikes returns one page of the accounts that liked the post at uri.
func (c *Client) GetLikes(ctx context.Context, uri, cursor string) (LikesPage, error) {
	params := url.Values{
		"uri":   {uri},
		"limit": {strconv.Itoa(likesPageLimit)},
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp struct {
		Cursor string `json:"cursor"`
		Likes  []struct {
			Actor Actor `json:"actor"`
		} `json:"likes"`
	}
	if err := c.query(ctx, "app.bsky.feed.getLikes", params, &resp); err != nil {
		return LikesPage{}, fmt.Errorf("get likes %s: %w", uri, err)
	}

	page := LikesPage{Cursor: resp.Cursor, Actors: make([]Actor, 0, len(resp.Likes))}
	for _, l := range resp.Likes {
		page.Actors = append(page.Actors, l.Actor)
	}
	return page, nil
}

// GetPost fetches the post at uri.
func (c *Client) GetPost(ctx context.Context, uri string) (Post, error) {
	var resp struct {
		Posts []struct {
			URI    string `json:"uri"`
			Author Actor  `json:"author"`
			Record struct {
				Text      string `json:"text"`
				CreatedAt string `json:"createdAt"`
			} `json:"record"`
			LikeCount int `json:"likeCount"`
		} `json:"posts"`
	}
	if err := c.query(ctx, "app.bsky.feed.getPosts", url.Values{"uris": {uri}}, &resp); err != nil {
		return Post{}, fmt.Errorf("get post %s: %w", uri, err)
	}
	if len(resp.Posts) == 0 {
		return Post{}, moderation.NewResolutionError(uri, errors.New("post not found"))
	}

	p := resp.Posts[0]
	return Post{
		URI:       p.URI,
		Author:    p.Author,
		Text:      p.Record.Text,
		CreatedAt: p.Record.CreatedAt,
		LikeCount: p.LikeCount,
	}, nil
}
