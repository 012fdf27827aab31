package codeforces

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUserRatingSortsAscending(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/user.rating": `{"status":"OK","result":[
			{"contestId":2,"contestName":"Round 2","handle":"tourist","ratingUpdateTimeSeconds":200,"oldRating":1400,"newRating":1600},
			{"contestId":1,"contestName":"Round 1","handle":"tourist","ratingUpdateTimeSeconds":100,"oldRating":0,"newRating":1400}]}`,
	})
	c := New(srv.URL, time.Second, nil)
	changes, err := c.UserRating(context.Background(), "tourist")
	if err != nil {
		t.Fatalf("user rating: %v", err)
	}
	if len(changes) != 2 || changes[0].ContestID != 1 || changes[1].NewRating != 1600 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
	if !changes[0].UpdateTime.Equal(time.Unix(100, 0)) {
		t.Fatalf("unexpected time: %v", changes[0].UpdateTime)
	}
}

func TestUserStatusParsesSubmissions(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/user.status": `{"status":"OK","result":[
			{"id":11,"creationTimeSeconds":300,"verdict":"OK",
			 "author":{"participantType":"PRACTICE","members":[{"handle":"a"},{"handle":"b"}]},
			 "problem":{"contestId":5,"index":"B","name":"Two","tags":["dp","math"]}},
			{"id":10,"creationTimeSeconds":200,"verdict":"WRONG_ANSWER",
			 "author":{"participantType":"CONTESTANT","members":[{"handle":"a"}]},
			 "problem":{"contestId":5,"index":"A","name":"One","rating":800,"tags":[]}}]}`,
		"/contest.list": `{"status":"OK","result":[{"id":5,"name":"Codeforces Round 5 (Div. 2)"}]}`,
	})
	c := New(srv.URL, time.Second, nil)
	subs, err := c.UserStatus(context.Background(), "a")
	if err != nil {
		t.Fatalf("user status: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	first, second := subs[0], subs[1]
	if first.ID != 10 || first.ParticipantType != model.Contestant || first.TeamSize != 1 {
		t.Fatalf("unexpected first submission: %+v", first)
	}
	if first.Problem.Rating == nil || *first.Problem.Rating != 800 {
		t.Fatalf("expected rating 800, got %v", first.Problem.Rating)
	}
	if second.Problem.Rating != nil || second.TeamSize != 2 || len(second.Problem.Tags) != 2 {
		t.Fatalf("unexpected second submission: %+v", second)
	}
	if second.Problem.ContestName != "Codeforces Round 5 (Div. 2)" {
		t.Fatalf("unexpected contest name: %q", second.Problem.ContestName)
	}
}

func TestUserInfoAndRatedList(t *testing.T) {
	users := `{"status":"OK","result":[{"handle":"a","rating":1500,"maxRating":1700,"lastOnlineTimeSeconds":10},{"handle":"b"}]}`
	srv := newTestServer(t, map[string]string{
		"/user.info":      users,
		"/user.ratedList": users,
	})
	c := New(srv.URL, time.Second, nil)
	info, err := c.UserInfo(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if len(info) != 2 || info[0].Rating == nil || *info[0].Rating != 1500 || info[1].Rating != nil {
		t.Fatalf("unexpected info: %+v", info)
	}
	list, err := c.RatedList(context.Background(), true)
	if err != nil {
		t.Fatalf("rated list: %v", err)
	}
	if len(list) != 2 || *list[0].MaxRating != 1700 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestHandleNotFound(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/user.rating": `{"status":"FAILED","comment":"handle: User with handle nobody not found"}`,
	})
	c := New(srv.URL, time.Second, nil)
	_, err := c.UserRating(context.Background(), "nobody")
	if !errors.Is(err, ErrHandleNotFound) {
		t.Fatalf("expected handle not found, got %v", err)
	}
	var nf *HandleNotFoundError
	if !errors.As(err, &nf) || nf.Handle != "nobody" {
		t.Fatalf("expected handle in error, got %v", err)
	}
}

func TestRateLimited(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/user.status": `{"status":"FAILED","comment":"Call limit exceeded"}`,
	})
	c := New(srv.URL, time.Second, nil)
	if _, err := c.UserStatus(context.Background(), "a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestNonJSONResponse(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/user.rating": "<html>oops</html>"})
	c := New(srv.URL, time.Second, nil)
	_, err := c.UserRating(context.Background(), "a")
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestContextCancel(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/user.rating": `{"status":"OK","result":[]}`})
	c := New(srv.URL, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.UserRating(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func contestServer(t *testing.T, delay time.Duration, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contest.list" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestContestNamesSharesOneRequest(t *testing.T) {
	srv, hits := contestServer(t, 200*time.Millisecond, `{"status":"OK","result":[{"id":1,"name":"Round 1"}]}`)
	c := New(srv.URL, 5*time.Second, nil)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			names, err := c.ContestNames(context.Background())
			if err == nil && names[1] != "Round 1" {
				err = errors.New("missing contest name")
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("contest names: %v", err)
		}
	}
	if _, err := c.ContestNames(context.Background()); err != nil {
		t.Fatalf("cached contest names: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected 1 contest.list request, got %d", got)
	}
}

func TestContestNamesRemembersFailure(t *testing.T) {
	srv, hits := contestServer(t, 0, `{"status":"FAILED","comment":"contest list unavailable"}`)
	c := New(srv.URL, time.Second, nil)
	for i := 0; i < 3; i++ {
		if _, err := c.ContestNames(context.Background()); err == nil {
			t.Fatalf("expected contest.list failure")
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected failure to be remembered, got %d requests", got)
	}

	c.mu.Lock()
	c.contestsErrAt = time.Now().Add(-2 * contestRetryAfter)
	c.mu.Unlock()
	if _, err := c.ContestNames(context.Background()); err == nil {
		t.Fatalf("expected contest.list failure on retry")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected a retry after the interval, got %d requests", got)
	}
}

func TestContestNamesCallerCancel(t *testing.T) {
	srv, _ := contestServer(t, 200*time.Millisecond, `{"status":"OK","result":[{"id":1,"name":"Round 1"}]}`)
	c := New(srv.URL, 5*time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ContestNames(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	names, err := c.ContestNames(context.Background())
	if err != nil || names[1] != "Round 1" {
		t.Fatalf("expected shared request to finish, got %v (%v)", names, err)
	}
}
