package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/verte-zerg/cfplot/internal/store"
)

// handle links chat members to Codeforces handles:
// "handle set <member> <handle>" and "handle get [member]".
func (b *Bot) handle(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) == 0 {
		return Reply{}, userErrorf("Usage: handle set <member> <handle> | handle get [member]")
	}
	switch strings.ToLower(req.Args[0]) {
	case "set":
		if len(req.Args) != 3 {
			return Reply{}, userErrorf("Usage: handle set <member> <handle>")
		}
		return b.setHandle(ctx, strings.TrimPrefix(req.Args[1], "!"), req.Args[2])
	case "get":
		member := req.Member
		if len(req.Args) > 1 {
			member = strings.TrimPrefix(req.Args[1], "!")
		}
		handle, err := b.handles.Handle(ctx, member)
		if errors.Is(err, store.ErrNotFound) {
			return Reply{}, userErrorf("Handle for %s not found.", member)
		}
		if err != nil {
			return Reply{}, err
		}
		return Reply{Title: "Handle", Text: fmt.Sprintf("Handle for %s is `%s`", member, handle)}, nil
	}
	return Reply{}, userErrorf("Unknown handle subcommand `%s`", req.Args[0])
}

// setHandle checks the handle exists and stores its canonical spelling.
func (b *Bot) setHandle(ctx context.Context, member, handle string) (Reply, error) {
	users, err := b.source.UserInfo(ctx, []string{handle})
	if err != nil {
		return Reply{}, err
	}
	if len(users) == 1 && users[0].Handle != "" {
		handle = users[0].Handle
	}
	if err := b.handles.SetHandle(ctx, member, handle); err != nil {
		return Reply{}, fmt.Errorf("link %s: %w", member, err)
	}
	return Reply{Title: "Handle", Text: fmt.Sprintf("Handle for %s set to `%s`", member, handle)}, nil
}
