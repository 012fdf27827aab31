package query

import (
	"errors"
	"testing"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/stats"
)

func TestParseBuildsCriteria(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	args := []string{"tourist", "+practice", "+contest", "+dp", "~greedy", "r>=1200", "r<=2000",
		"d>=2020", "d<01012023", "c+div. 2", "i+a", "+team", "b=10"}
	c, rest, err := Parse(args, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rest) != 2 || rest[0] != "tourist" || rest[1] != "b=10" {
		t.Fatalf("unexpected rest: %v", rest)
	}
	if len(c.Types) != 2 || c.Types[0] != model.Contestant || c.Types[1] != model.Practice {
		t.Fatalf("unexpected types: %v", c.Types)
	}
	if c.RatingLow != 1200 || c.RatingHigh != 2000 {
		t.Fatalf("unexpected rating bounds: %d..%d", c.RatingLow, c.RatingHigh)
	}
	if !c.DateLow.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date low: %v", c.DateLow)
	}
	wantHigh := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !c.DateHigh.Equal(wantHigh) {
		t.Fatalf("unexpected date high: %v", c.DateHigh)
	}
	if len(c.Tags) != 1 || c.Tags[0] != "dp" || len(c.BanTags) != 1 || c.BanTags[0] != "greedy" {
		t.Fatalf("unexpected tags: %v %v", c.Tags, c.BanTags)
	}
	if len(c.ContestMarkers) != 1 || len(c.IndexMarkers) != 1 || !c.IncludeTeam {
		t.Fatalf("unexpected markers: %+v", c)
	}
}

func TestParseDefaults(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c, rest, err := Parse(nil, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected rest: %v", rest)
	}
	if len(c.Types) != len(model.ParticipantTypes) || c.RatingHigh != stats.DefaultRatingHigh || !c.DateHigh.Equal(now) {
		t.Fatalf("unexpected default criteria: %+v", c)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	var qErr *Error
	if _, _, err := Parse([]string{"r>=abc"}, time.Now()); !errors.As(err, &qErr) {
		t.Fatalf("expected query error, got %v", err)
	}
	if _, _, err := Parse([]string{"d>=13"}, time.Now()); !errors.As(err, &qErr) {
		t.Fatalf("expected query error, got %v", err)
	}
	if _, _, err := Parse([]string{"r>=2000", "r<=1000"}, time.Now()); !errors.Is(err, stats.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2021":     time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		"032021":   time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		"15032021": time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", in, want, got)
		}
	}
	if _, err := ParseDate("31022021"); err == nil {
		t.Fatalf("expected error for 31 Feb")
	}
}

func TestExtractFlags(t *testing.T) {
	found, rest := ExtractFlags([]string{"+zoom", "tourist", "+peak"}, "+zoom", "+peak", "+exact")
	if !found[0] || !found[1] || found[2] {
		t.Fatalf("unexpected flags: %v", found)
	}
	if len(rest) != 1 || rest[0] != "tourist" {
		t.Fatalf("unexpected rest: %v", rest)
	}
}
