// Package codeforces fetches rating histories, submissions and user info from
// the public Codeforces API.
package codeforces

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/verte-zerg/cfplot/internal/model"
)

const (
	DefaultBaseURL = "https://codeforces.com/api"
	DefaultTimeout = 15 * time.Second

	// contestRetryAfter is how long a failed contest.list is remembered.
	contestRetryAfter = time.Minute
)

var (
	// ErrHandleNotFound is matched by *HandleNotFoundError.
	ErrHandleNotFound = errors.New("handle not found")
	// ErrRateLimited is returned when the API reports its call limit.
	ErrRateLimited = errors.New("codeforces call limit exceeded")
)

// HandleNotFoundError names the handle the API rejected.
type HandleNotFoundError struct {
	Handle string
}

func (e *HandleNotFoundError) Error() string {
	return fmt.Sprintf("handle %q not found", e.Handle)
}

func (e *HandleNotFoundError) Is(target error) bool {
	return target == ErrHandleNotFound
}

// APIError is any other FAILED response.
type APIError struct {
	Method  string
	Comment string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("codeforces %s: %s", e.Method, e.Comment)
}

// Client calls the Codeforces API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	contestCalls  singleflight.Group
	mu            sync.Mutex
	contests      map[int]string
	contestsErr   error
	contestsErrAt time.Time
}

// New returns a client for baseURL; empty values fall back to the public API defaults.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// UserRating returns the rating history of handle in chronological order.
func (c *Client) UserRating(ctx context.Context, handle string) ([]model.RatingChange, error) {
	result, err := c.call(ctx, "user.rating", url.Values{"handle": {handle}})
	if err != nil {
		return nil, err
	}
	items := result.Array()
	out := make([]model.RatingChange, 0, len(items))
	for _, item := range items {
		out = append(out, model.RatingChange{
			ContestID:   int(item.Get("contestId").Int()),
			ContestName: item.Get("contestName").String(),
			Handle:      item.Get("handle").String(),
			OldRating:   int(item.Get("oldRating").Int()),
			NewRating:   int(item.Get("newRating").Int()),
			UpdateTime:  time.Unix(item.Get("ratingUpdateTimeSeconds").Int(), 0).UTC(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdateTime.Before(out[j].UpdateTime) })
	return out, nil
}

// UserStatus returns every submission of handle, oldest first, with contest
// names filled in so contest markers can match.
func (c *Client) UserStatus(ctx context.Context, handle string) ([]model.Submission, error) {
	result, err := c.call(ctx, "user.status", url.Values{"handle": {handle}})
	if err != nil {
		return nil, err
	}
	names, err := c.ContestNames(ctx)
	if err != nil {
		// Contest names only feed c+ markers; plots still work without them.
		c.logger.Warn("contest names unavailable", "error", err)
	}
	items := result.Array()
	out := make([]model.Submission, 0, len(items))
	for _, item := range items {
		sub := model.Submission{
			ID:              item.Get("id").Int(),
			CreationTime:    time.Unix(item.Get("creationTimeSeconds").Int(), 0).UTC(),
			ParticipantType: model.ParticipantType(item.Get("author.participantType").String()),
			TeamSize:        int(item.Get("author.members.#").Int()),
			Verdict:         item.Get("verdict").String(),
			Problem:         parseProblem(item.Get("problem")),
		}
		sub.Problem.ContestName = names[sub.Problem.ContestID]
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreationTime.Before(out[j].CreationTime) })
	return out, nil
}

// UserInfo returns current ratings for the given handles.
func (c *Client) UserInfo(ctx context.Context, handles []string) ([]model.User, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	result, err := c.call(ctx, "user.info", url.Values{"handles": {strings.Join(handles, ";")}})
	if err != nil {
		return nil, err
	}
	items := result.Array()
	out := make([]model.User, 0, len(items))
	for _, item := range items {
		out = append(out, parseUser(item))
	}
	return out, nil
}

// RatedList returns every rated user, used to build the population snapshot.
func (c *Client) RatedList(ctx context.Context, activeOnly bool) ([]model.User, error) {
	params := url.Values{"activeOnly": {fmt.Sprint(activeOnly)}}
	result, err := c.call(ctx, "user.ratedList", params)
	if err != nil {
		return nil, err
	}
	items := result.Array()
	out := make([]model.User, 0, len(items))
	for _, item := range items {
		out = append(out, parseUser(item))
	}
	return out, nil
}

// ContestNames returns contest id to name, fetched once per client.
// Concurrent callers share one request, and a failure is returned without
// retrying for contestRetryAfter.
func (c *Client) ContestNames(ctx context.Context) (map[int]string, error) {
	c.mu.Lock()
	names, failed, failedAt := c.contests, c.contestsErr, c.contestsErrAt
	c.mu.Unlock()
	if names != nil {
		return names, nil
	}
	if failed != nil && time.Since(failedAt) < contestRetryAfter {
		return nil, failed
	}

	// The shared request outlives any single caller; the http timeout bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.contestCalls.DoChan("contest.list", func() (any, error) {
		return c.fetchContestNames(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[int]string), nil
	}
}

func (c *Client) fetchContestNames(ctx context.Context) (map[int]string, error) {
	result, err := c.call(ctx, "contest.list", nil)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.contestsErr, c.contestsErrAt = err, time.Now()
		return nil, err
	}
	names := make(map[int]string)
	result.ForEach(func(_, item gjson.Result) bool {
		names[int(item.Get("id").Int())] = item.Get("name").String()
		return true
	})
	c.contests, c.contestsErr = names, nil
	return names, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (gjson.Result, error) {
	endpoint := c.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("codeforces %s: %w", method, err)
	}
	defer closeBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s response: %w", method, err)
	}
	c.logger.Debug("codeforces call", "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	if !gjson.ValidBytes(body) {
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
			return gjson.Result{}, ErrRateLimited
		}
		return gjson.Result{}, fmt.Errorf("codeforces %s: http status %d", method, resp.StatusCode)
	}
	parsed := gjson.ParseBytes(body)
	if parsed.Get("status").String() != "OK" {
		return gjson.Result{}, failure(method, params, parsed.Get("comment").String())
	}
	result := parsed.Get("result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("codeforces %s: response has no result", method)
	}
	return result, nil
}

func failure(method string, params url.Values, comment string) error {
	lower := strings.ToLower(comment)
	switch {
	case strings.Contains(lower, "call limit exceeded"):
		return ErrRateLimited
	case strings.Contains(lower, "not found"):
		return &HandleNotFoundError{Handle: missingHandle(comment, params)}
	}
	return &APIError{Method: method, Comment: comment}
}

// missingHandle extracts the handle from comments like
// "handles: User with handle foo not found".
func missingHandle(comment string, params url.Values) string {
	const marker = "User with handle "
	if i := strings.Index(comment, marker); i >= 0 {
		rest := comment[i+len(marker):]
		if j := strings.Index(rest, " "); j >= 0 {
			return rest[:j]
		}
		return rest
	}
	if h := params.Get("handle"); h != "" {
		return h
	}
	return params.Get("handles")
}

func parseProblem(p gjson.Result) model.Problem {
	problem := model.Problem{
		ContestID: int(p.Get("contestId").Int()),
		Index:     p.Get("index").String(),
		Name:      p.Get("name").String(),
	}
	if r := p.Get("rating"); r.Exists() {
		v := int(r.Int())
		problem.Rating = &v
	}
	for _, tag := range p.Get("tags").Array() {
		problem.Tags = append(problem.Tags, tag.String())
	}
	return problem
}

func parseUser(u gjson.Result) model.User {
	user := model.User{
		Handle:     u.Get("handle").String(),
		LastOnline: time.Unix(u.Get("lastOnlineTimeSeconds").Int(), 0).UTC(),
	}
	if r := u.Get("rating"); r.Exists() {
		v := int(r.Int())
		user.Rating = &v
	}
	if r := u.Get("maxRating"); r.Exists() {
		v := int(r.Int())
		user.MaxRating = &v
	}
	return user
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		slog.Debug("close response body", "error", err)
	}
}
