// Package bot answers plot commands: it resolves handles, fetches records,
// runs them through the stats pipeline and renders the resulting figure.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/cfplot/internal/codeforces"
	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/query"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/stats"
	"github.com/verte-zerg/cfplot/internal/store"
)

const (
	DefaultMaxHandles = 5
	maxCentileHandles = 50
	fetchConcurrency  = 4
)

// Source supplies raw Codeforces records.
type Source interface {
	UserRating(ctx context.Context, handle string) ([]model.RatingChange, error)
	UserStatus(ctx context.Context, handle string) ([]model.Submission, error)
	UserInfo(ctx context.Context, handles []string) ([]model.User, error)
}

// HandleResolver maps a chat member to a linked Codeforces handle.
type HandleResolver interface {
	Handle(ctx context.Context, member string) (string, error)
}

// HandleLinker also stores links.
type HandleLinker interface {
	HandleResolver
	SetHandle(ctx context.Context, member, handle string) error
}

// PopulationSource returns the rating population snapshot.
type PopulationSource interface {
	Population(ctx context.Context) (*stats.Population, error)
}

// Renderer encodes a figure as an image.
type Renderer interface {
	Render(fig render.Figure) ([]byte, error)
}

// Request is one command from a chat member, e.g. Command "rating" with Args
// ["tourist", "+zoom"].
type Request struct {
	Member  string
	Command string
	Args    []string
}

// Reply is what the chat front-end shows. Err is set for informational
// failures; Image is set for plots.
type Reply struct {
	Title    string
	Text     string
	Image    []byte
	Filename string
	// Figure is kept so terminal front-ends can draw a preview.
	Figure *render.Figure
	Err    string
}

// UserError is shown to the member verbatim.
type UserError struct {
	Msg string
}

func (e *UserError) Error() string {
	return e.Msg
}

func userErrorf(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// Options configures a Bot. Source, Handles and Renderer are required.
type Options struct {
	Source     Source
	Handles    HandleLinker
	Population PopulationSource
	Renderer   Renderer
	Logger     *slog.Logger
	Now        func() time.Time
	MaxHandles int
}

// Bot dispatches commands to handlers. It is safe for concurrent use.
type Bot struct {
	source     Source
	handles    HandleLinker
	population PopulationSource
	renderer   Renderer
	logger     *slog.Logger
	now        func() time.Time
	maxHandles int
	commands   map[string]handler
}

type handler func(ctx context.Context, req Request) (Reply, error)

// New builds a bot from opts.
func New(opts Options) *Bot {
	b := &Bot{
		source:     opts.Source,
		handles:    opts.Handles,
		population: opts.Population,
		renderer:   opts.Renderer,
		logger:     opts.Logger,
		now:        opts.Now,
		maxHandles: opts.MaxHandles,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.maxHandles <= 0 {
		b.maxHandles = DefaultMaxHandles
	}
	b.commands = map[string]handler{
		"rating":  b.rating,
		"solved":  b.solved,
		"hist":    b.hist,
		"curve":   b.curve,
		"scatter": b.scatter,
		"chilli":  b.scatter,
		"distrib": b.distrib,
		"centile": b.centile,
		"handle":  b.handle,
		"help":    b.help,
	}
	return b
}

// Commands lists the registered command names.
func (b *Bot) Commands() []string {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs req and never fails: errors become Reply.Err.
func (b *Bot) Handle(ctx context.Context, req Request) Reply {
	h, ok := b.commands[strings.ToLower(req.Command)]
	if !ok {
		return Reply{Err: fmt.Sprintf("Unknown command `%s`. Try `help`.", req.Command)}
	}
	start := time.Now()
	reply, err := h(ctx, req)
	if err != nil {
		msg, expected := describe(err)
		if expected {
			b.logger.Info("command rejected", "command", req.Command, "member", req.Member, "reason", msg)
		} else {
			b.logger.Error("command failed", "command", req.Command, "member", req.Member, "error", err)
		}
		return Reply{Err: msg}
	}
	b.logger.Debug("command done", "command", req.Command, "member", req.Member, "duration", time.Since(start))
	return reply
}

// describe turns err into chat text and reports whether it is an expected,
// user-facing failure.
func describe(err error) (string, bool) {
	var userErr *UserError
	var queryErr *query.Error
	var notFound *codeforces.HandleNotFoundError
	switch {
	case errors.As(err, &userErr):
		return userErr.Msg, true
	case errors.As(err, &queryErr):
		return queryErr.Error(), true
	case errors.Is(err, stats.ErrEmptyResult):
		msg := err.Error()
		return strings.ToUpper(msg[:1]) + msg[1:] + ".", true
	case errors.Is(err, stats.ErrConfiguration):
		return "Invalid parameters: " + err.Error(), true
	case errors.As(err, &notFound):
		return fmt.Sprintf("Handle `%s` not found on Codeforces.", notFound.Handle), true
	case errors.Is(err, codeforces.ErrRateLimited):
		return "Codeforces is rate limiting requests, try again in a moment.", true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled.", true
	}
	return "Something went wrong while plotting, see logs.", false
}

// resolveHandles applies the default member handle and resolves !member
// references. The result keeps argument order.
func (b *Bot) resolveHandles(ctx context.Context, member string, args []string, minCount, maxCount int) ([]string, error) {
	if len(args) == 0 {
		args = []string{"!" + member}
	}
	if len(args) < minCount {
		return nil, userErrorf("At least %d handles are required.", minCount)
	}
	if len(args) > maxCount {
		return nil, userErrorf("At most %d handles are allowed.", maxCount)
	}
	handles := make([]string, 0, len(args))
	for _, arg := range args {
		name, isMember := strings.CutPrefix(arg, "!")
		if !isMember {
			handles = append(handles, arg)
			continue
		}
		if name == "" {
			return nil, userErrorf("Empty member name.")
		}
		handle, err := b.handles.Handle(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return nil, userErrorf("Handle for %s not found. Link it with `handle set %s <handle>`.", name, name)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// fetchAll calls fetch for every handle concurrently and keeps input order.
func fetchAll[T any](ctx context.Context, handles []string, fetch func(context.Context, string) (T, error)) ([]T, error) {
	out := make([]T, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			v, err := fetch(gctx, h)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bot) imageReply(title, text string, fig render.Figure) (Reply, error) {
	img, err := b.renderer.Render(fig)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Title:    title,
		Text:     text,
		Image:    img,
		Filename: "plot.png",
		Figure:   &fig,
	}, nil
}

func quoteHandles(handles []string) string {
	quoted := make([]string, len(handles))
	for i, h := range handles {
		quoted[i] = "`" + h + "`"
	}
	return strings.Join(quoted, ", ")
}

func (b *Bot) help(_ context.Context, _ Request) (Reply, error) {
	lines := []string{
		"rating [+zoom] [+peak] [handles...] [d>=date] [d<date]",
		"solved [handles...] [filters...]",
		"hist [handles...] [filters...] [phase_days=N]",
		"curve [handles...] [filters...]",
		"scatter [handle] [filters...] [b=10] [s=3] [+nolegend]",
		"distrib [log|normal] [binsize]",
		"centile [handles...] [+zoom] [+nomarker] [+exact]",
		"handle set <member> <handle> | handle get [member]",
		"",
		"filters: +contest +outof +virtual +practice +team +tag ~tag r>=N r<=N d>=[[dd]mm]yyyy d<[[dd]mm]yyyy c+contest i+index",
		"handles: a Codeforces handle or !member for a linked member",
	}
	return Reply{Title: "Plot commands", Text: strings.Join(lines, "\n")}, nil
}

// SaveImage writes the reply image into dir as <prefix>-<timestamp>.png and
// returns the path.
func (r Reply) SaveImage(dir, prefix string, at time.Time) (string, error) {
	if len(r.Image) == 0 {
		return "", fmt.Errorf("reply has no image")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.png", prefix, at.UTC().Format("20060102-150405.000000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, r.Image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}
