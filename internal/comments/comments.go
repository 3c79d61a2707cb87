// Package comments keeps a single bot comment per pull request up to date.
package comments

import (
	"context"
	"fmt"
)

// Comment is an issue comment on a pull request.
type Comment struct {
	ID    int64
	Login string
	Body  string
}

// Client is the part of the repository host that manages comments.
type Client interface {
	ListComments(ctx context.Context, number int) ([]Comment, error)
	CreateComment(ctx context.Context, number int, body string) error
	EditComment(ctx context.Context, id int64, body string) error
}

// Action is what Upsert did.
type Action int

const (
	Skipped Action = iota
	Created
	Updated
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "skipped"
	}
}

// Upsert edits the first comment written by login, or creates one. A body equal
// to quiet is only posted when it replaces a different previous comment.
func Upsert(ctx context.Context, c Client, number int, login, body, quiet string) (Action, error) {
	list, err := c.ListComments(ctx, number)
	if err != nil {
		return Skipped, fmt.Errorf("listing comments: %w", err)
	}

	var prev *Comment
	for i := range list {
		if list[i].Login == login {
			prev = &list[i]
			break
		}
	}

	if body == quiet && (prev == nil || prev.Body == quiet) {
		return Skipped, nil
	}
	if prev != nil {
		if err := c.EditComment(ctx, prev.ID, body); err != nil {
			return Skipped, fmt.Errorf("editing comment %d: %w", prev.ID, err)
		}
		return Updated, nil
	}
	if err := c.CreateComment(ctx, number, body); err != nil {
		return Skipped, fmt.Errorf("creating comment: %w", err)
	}
	return Created, nil
}
