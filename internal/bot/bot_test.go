package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/cfplot/internal/codeforces"
	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/stats"
	"github.com/verte-zerg/cfplot/internal/store"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	ratings map[string][]model.RatingChange
	subs    map[string][]model.Submission
	users   map[string]model.User
	err     error
}

func (f *fakeSource) UserRating(_ context.Context, handle string) ([]model.RatingChange, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.ratings[handle]; !ok && f.subs[handle] == nil {
		return nil, &codeforces.HandleNotFoundError{Handle: handle}
	}
	return f.ratings[handle], nil
}

func (f *fakeSource) UserStatus(_ context.Context, handle string) ([]model.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[handle], nil
}

func (f *fakeSource) UserInfo(_ context.Context, handles []string) ([]model.User, error) {
	out := make([]model.User, 0, len(handles))
	for _, h := range handles {
		u, ok := f.users[strings.ToLower(h)]
		if !ok {
			return nil, &codeforces.HandleNotFoundError{Handle: h}
		}
		out = append(out, u)
	}
	return out, nil
}

type fakeLinks struct {
	mu    sync.Mutex
	links map[string]string
}

func (f *fakeLinks) Handle(_ context.Context, member string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.links[member]
	if !ok {
		return "", store.ErrNotFound
	}
	return h, nil
}

func (f *fakeLinks) SetHandle(_ context.Context, member, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.links == nil {
		f.links = map[string]string{}
	}
	f.links[member] = handle
	return nil
}

type fakeRenderer struct {
	last render.Figure
}

func (f *fakeRenderer) Render(fig render.Figure) ([]byte, error) {
	f.last = fig
	return []byte("png"), nil
}

type fakeSnapshots struct {
	snap  store.Snapshot
	err   error
	loads int
}

func (f *fakeSnapshots) Ratings(context.Context) (store.Snapshot, error) {
	f.loads++
	return f.snap, f.err
}

func (f *fakeSnapshots) SnapshotTime(context.Context) (time.Time, error) {
	return f.snap.FetchedAt, f.err
}

func intPtr(v int) *int { return &v }

func solve(id int64, pt model.ParticipantType, contest int, index string, rating int, at time.Time) model.Submission {
	return model.Submission{
		ID:              id,
		CreationTime:    at,
		ParticipantType: pt,
		TeamSize:        1,
		Verdict:         model.VerdictOK,
		Problem:         model.Problem{ContestID: contest, Index: index, Rating: intPtr(rating)},
	}
}

func jan(d int) time.Time {
	return time.Date(2024, 1, d, 10, 0, 0, 0, time.UTC)
}

func newTestBot(t *testing.T) (*Bot, *fakeSource, *fakeRenderer, *fakeLinks) {
	t.Helper()
	src := &fakeSource{
		ratings: map[string][]model.RatingChange{
			"tourist": {
				{Handle: "tourist", OldRating: 0, NewRating: 1400, UpdateTime: jan(1)},
				{Handle: "tourist", OldRating: 1400, NewRating: 1350, UpdateTime: jan(2)},
				{Handle: "tourist", OldRating: 1350, NewRating: 1600, UpdateTime: jan(3)},
			},
			"newbie": {},
			"a": {
				{Handle: "a", OldRating: 0, NewRating: 1200, UpdateTime: jan(2)},
			},
		},
		subs: map[string][]model.Submission{
			"a": {
				solve(1, model.Contestant, 1, "A", 800, jan(5)),
				solve(2, model.Practice, 2, "A", 800, jan(6)),
				solve(3, model.Practice, 3, "B", 1000, jan(8)),
				{ID: 4, CreationTime: jan(8), ParticipantType: model.Practice, TeamSize: 1, Verdict: "WRONG_ANSWER",
					Problem: model.Problem{ContestID: 4, Index: "C", Rating: intPtr(1000)}},
			},
			"b": {
				solve(5, model.Virtual, 7, "D", 1900, jan(7)),
			},
		},
		users: map[string]model.User{
			"a":       {Handle: "a", Rating: intPtr(1400)},
			"tourist": {Handle: "tourist", Rating: intPtr(1600)},
			"ghost":   {Handle: "ghost"},
		},
	}
	rend := &fakeRenderer{}
	links := &fakeLinks{links: map[string]string{"alice": "tourist"}}
	b := New(Options{
		Source:     src,
		Handles:    links,
		Population: &StorePopulation{Store: &fakeSnapshots{snap: store.Snapshot{Ratings: []int{1000, 1050, 1200, 1500}, FetchedAt: testNow}}},
		Renderer:   rend,
		Now:        func() time.Time { return testNow },
	})
	return b, src, rend, links
}

func run(t *testing.T, b *Bot, member, command string, args ...string) Reply {
	t.Helper()
	return b.Handle(context.Background(), Request{Member: member, Command: command, Args: args})
}

func TestRatingDefaultsToMemberAndWidensRange(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "alice", "rating")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	if string(reply.Image) != "png" || reply.Title != "Rating graph on Codeforces" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	fig := rend.last
	if len(fig.Lines) != 1 || fig.Lines[0].Label != "tourist (1600)" || len(fig.Lines[0].Y) != 3 {
		t.Fatalf("unexpected lines: %+v", fig.Lines)
	}
	if fig.YRange == nil || fig.YRange.Min != 1000 || fig.YRange.Max != 2000 {
		t.Fatalf("unexpected y range: %+v", fig.YRange)
	}
	if !fig.TimeAxis || len(fig.Bands) == 0 {
		t.Fatalf("expected time axis with rank bands")
	}
}

func TestRatingPeakAndZoom(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "alice", "rating", "+peak", "+zoom", "tourist")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	line := rend.last.Lines[0]
	if len(line.Y) != 1 || line.Y[0] != 1600 {
		t.Fatalf("expected peak prefix [1600], got %v", line.Y)
	}
	if rend.last.YRange != nil {
		t.Fatalf("zoom should leave the y range to the renderer")
	}
}

func TestRatingNotRated(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	if reply := run(t, b, "x", "rating", "newbie"); reply.Err != "User `newbie` is not rated" {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	reply := run(t, b, "x", "rating", "newbie", "tourist", "d<2023")
	if reply.Err != "None of the given users `newbie`, `tourist` are rated" {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestUnlinkedMember(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	reply := run(t, b, "bob", "rating")
	if !strings.Contains(reply.Err, "Handle for bob not found") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestTooManyHandles(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	reply := run(t, b, "x", "rating", "a", "b", "c", "d", "e", "f")
	if reply.Err != "At most 5 handles are allowed." {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestSolvedSingleHandleStacksByType(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "solved", "a")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	if reply.Text != "a: 3" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
	bars := rend.last.Bars
	if bars == nil {
		t.Fatalf("expected bar chart")
	}
	if strings.Join(bars.Labels, ",") != "800,900,1000" {
		t.Fatalf("unexpected labels: %v", bars.Labels)
	}
	if len(bars.Stacks) != 4 || bars.Stacks[0].Label != "Contest: 1" || bars.Stacks[3].Label != "Practice: 2" {
		t.Fatalf("unexpected stacks: %+v", bars.Stacks)
	}
	practice := bars.Stacks[3].Values
	if practice[0] != 1 || practice[1] != 0 || practice[2] != 1 {
		t.Fatalf("unexpected practice counts: %v", practice)
	}
}

func TestSolvedSeveralHandlesDrawsLines(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "solved", "a", "b")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	lines := rend.last.Lines
	if len(lines) != 2 || lines[0].Label != "a: 3" || lines[1].Label != "b: 1" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	// The default span is wide, so buckets are 200 wide and centred on multiples of 200.
	if lines[0].X[0] != 800 || lines[0].X[1] != 1000 {
		t.Fatalf("unexpected bucket centres: %v", lines[0].X)
	}
}

func TestSolvedEmpty(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	reply := run(t, b, "x", "solved", "a", "+geometry")
	if reply.Err != "No problems within the specified parameters." {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestHistPhases(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "hist", "a")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	labels := rend.last.Bars.Labels
	if len(labels) != 6 || labels[0] != "2024-01-05" || labels[5] != "2024-01-10" {
		t.Fatalf("unexpected labels: %v", labels)
	}
	if reply := run(t, b, "x", "hist", "a", "phase_days=0"); !strings.HasPrefix(reply.Err, "Invalid parameters") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestHistSeveralHandles(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "hist", "a", "b", "phase_days=2")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	if len(rend.last.Lines) != 2 || len(rend.last.Lines[0].X) != 3 {
		t.Fatalf("unexpected lines: %+v", rend.last.Lines)
	}
}

func TestCurveExtendsToNow(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "curve", "a")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	line := rend.last.Lines[0]
	if len(line.X) != 4 || line.Y[2] != 3 || line.Y[3] != 3 {
		t.Fatalf("unexpected curve: %+v", line)
	}
	if line.X[3] != unix(testNow) {
		t.Fatalf("expected curve to end now")
	}
}

func TestScatter(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "scatter", "a", "b=1", "s=5")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	lines := rend.last.Lines
	// practice, regular, running mean, rating
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[0].Label != "Practice" || lines[0].DotSize != 5 || lines[1].Label != "Regular" {
		t.Fatalf("unexpected scatter series: %+v", lines[:2])
	}
	if len(lines[2].Y) != 2 || lines[2].Label != "" {
		t.Fatalf("unexpected running mean: %+v", lines[2])
	}
	if yr := rend.last.YRange; yr == nil || yr.Min != 800 || yr.Max != 1200 {
		t.Fatalf("unexpected y range: %+v", yr)
	}
}

func TestScatterRejectsBadInput(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	if reply := run(t, b, "x", "scatter", "a", "b"); reply.Err != "Only one handle allowed." {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	if reply := run(t, b, "x", "scatter", "a", "s=101"); reply.Err != "Invalid parameters" {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	if reply := run(t, b, "x", "scatter", "a", "r>=3000"); reply.Err != "No submissions for user `a`" {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestDistrib(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "distrib", "normal")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	bars := rend.last.Bars
	want := "1000 (0),1100 (50),1200 (50),1300 (75),1400 (75),1500 (75)"
	if strings.Join(bars.Labels, ",") != want {
		t.Fatalf("unexpected labels: %v", bars.Labels)
	}
	if bars.Stacks[0].Values[0] != 2 || bars.BarColors[0] != "808080" || bars.BarColors[2] != "008000" {
		t.Fatalf("unexpected bars: %+v", bars)
	}
	if reply := run(t, b, "x", "distrib", "30"); reply.Err != "Bin size must divide 100" {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	if reply := run(t, b, "x", "distrib", "cubic"); !strings.HasPrefix(reply.Err, "Mode should be") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestCentileMarksUsers(t *testing.T) {
	b, _, rend, _ := newTestBot(t)
	reply := run(t, b, "x", "centile", "a", "+exact", "+zoom")
	if reply.Err != "" {
		t.Fatalf("unexpected error: %s", reply.Err)
	}
	fig := rend.last
	if len(fig.Markers) != 1 || fig.Markers[0].Label != "a (75)" || fig.Markers[0].Y != 75 {
		t.Fatalf("unexpected markers: %+v", fig.Markers)
	}
	if fig.XRange.Min != 1380 || fig.XRange.Max != 1420 {
		t.Fatalf("unexpected zoomed x range: %+v", fig.XRange)
	}
	if len(fig.Lines[0].X) != 4 {
		t.Fatalf("expected full curve")
	}
	if reply := run(t, b, "x", "centile", "ghost"); reply.Err != "User `ghost` is not rated" {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	if reply := run(t, b, "x", "centile", "+nomarker"); reply.Err != "" || len(rend.last.Markers) != 0 {
		t.Fatalf("unexpected nomarker reply: %+v", reply)
	}
}

func TestHandleSetGet(t *testing.T) {
	b, _, _, links := newTestBot(t)
	reply := run(t, b, "bob", "handle", "set", "!bob", "TOURIST")
	if reply.Err != "" || reply.Text != "Handle for bob set to `tourist`" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if links.links["bob"] != "tourist" {
		t.Fatalf("link not stored: %v", links.links)
	}
	reply = run(t, b, "bob", "handle", "get")
	if reply.Text != "Handle for bob is `tourist`" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply := run(t, b, "bob", "handle", "set", "carol", "nobody"); reply.Err != "Handle `nobody` not found on Codeforces." {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestErrorTranslation(t *testing.T) {
	b, src, _, _ := newTestBot(t)
	if reply := run(t, b, "x", "plot-everything"); !strings.HasPrefix(reply.Err, "Unknown command") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	if reply := run(t, b, "x", "rating", "r>=x"); !strings.HasPrefix(reply.Err, "invalid filter") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	if reply := run(t, b, "x", "rating", "d>=2023", "d<2022"); !strings.HasPrefix(reply.Err, "Invalid parameters") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	src.err = codeforces.ErrRateLimited
	if reply := run(t, b, "x", "rating", "tourist"); !strings.Contains(reply.Err, "rate limiting") {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
	src.err = errors.New("connection reset")
	if reply := run(t, b, "x", "solved", "a"); reply.Err != "Something went wrong while plotting, see logs." {
		t.Fatalf("unexpected reply: %q", reply.Err)
	}
}

func TestStorePopulationCachesBySnapshot(t *testing.T) {
	snaps := &fakeSnapshots{snap: store.Snapshot{Ratings: []int{3, 1, 2}, FetchedAt: testNow}}
	p := &StorePopulation{Store: snaps}
	first, err := p.Population(context.Background())
	if err != nil {
		t.Fatalf("population: %v", err)
	}
	second, _ := p.Population(context.Background())
	if first != second || first.Min() != 1 {
		t.Fatalf("expected cached population")
	}
	if snaps.loads != 1 {
		t.Fatalf("expected ratings loaded once, got %d", snaps.loads)
	}
	snaps.snap = store.Snapshot{Ratings: []int{5}, FetchedAt: testNow.Add(time.Hour)}
	third, _ := p.Population(context.Background())
	if third == first || third.Len() != 1 || snaps.loads != 2 {
		t.Fatalf("expected rebuilt population")
	}

	snaps.err = store.ErrNotFound
	_, err = p.Population(context.Background())
	var userErr *UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("expected user error, got %v", err)
	}
	snaps.err = nil
	snaps.snap = store.Snapshot{FetchedAt: testNow.Add(2 * time.Hour)}
	if _, err := p.Population(context.Background()); !errors.Is(err, stats.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty snapshot, got %v", err)
	}
}

func TestCenteredRange(t *testing.T) {
	low, high := centeredRange(0, 9999, 100)
	if low != -50 || high != 10050 || (high-low)%100 != 0 {
		t.Fatalf("unexpected range: %d..%d", low, high)
	}
	low, high = centeredRange(1200, 2000, 200)
	if low != 1100 || high != 2100 {
		t.Fatalf("unexpected range: %d..%d", low, high)
	}
}

func TestPhaseWindow(t *testing.T) {
	low, high, phases := phaseWindow(jan(5), testNow, testNow, 2*24*time.Hour)
	if phases != 3 {
		t.Fatalf("expected 3 phases, got %d", phases)
	}
	if !high.Equal(time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)) || !low.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window: %v..%v", low, high)
	}
}

func TestReplySaveImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	reply := Reply{Image: []byte("png")}
	path, err := reply.SaveImage(dir, "rating", testNow)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if filepath.Base(path) != "rating-20240110-120000.000000.png" {
		t.Fatalf("unexpected file name %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("unexpected image bytes %q", data)
	}
	if _, err := (Reply{}).SaveImage(dir, "rating", testNow); err == nil {
		t.Fatalf("expected error for reply without image")
	}
}
