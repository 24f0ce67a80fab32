package bsky

import (
	"context"
	"net/http"
	"time"

	"github.com/roach88/reactsync/internal/moderation"
)

type listItemRecord struct {
	Type      string `json:"$type"`
	Subject   string `json:"subject"`
	List      string `json:"list"`
	CreatedAt string `json:"createdAt"`
}

type createRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

// AddToList creates an app.bsky.graph.listitem record in the authenticated
// repo. Failures are returned as moderation external action errors.
//
// createRecord without an rkey is not idempotent, so transport errors, 5xx
// and 429 responses are returned rather than retried.
func (c *Client) AddToList(ctx context.Context, item moderation.ListItem) error {
	cred, err := c.current()
	if err != nil {
		return moderation.NewExternalActionError(item.Subject, err)
	}

	input := createRecordInput{
		Repo:       cred.DID,
		Collection: CollectionListItem,
		Record: listItemRecord{
			Type:      CollectionListItem,
			Subject:   item.Subject,
			List:      item.List,
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	err = c.authed(ctx, xrpcCall{
		method:  http.MethodPost,
		nsid:    "com.atproto.repo.createRecord",
		body:    input,
		noRetry: true,
	}, nil)
	if err != nil {
		return moderation.NewExternalActionError(item.Subject, err)
	}
	return nil
}
