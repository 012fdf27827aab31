// Package query parses textual plot arguments into filter criteria.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/stats"
)

// Token is one recognised filter argument.
type Token interface {
	apply(c *stats.Criteria, typesSeen *bool)
}

// RangeToken bounds the problem rating, e.g. r>=1200.
type RangeToken struct {
	Op    string
	Value int
}

// DateToken bounds the record date, e.g. d<01012021.
type DateToken struct {
	Op   string
	Date time.Time
}

// SetKind names the set a SetToken adds to.
type SetKind int

// Set kinds.
const (
	SetTag SetKind = iota
	SetBanTag
	SetIndex
	SetContest
	SetType
)

// SetToken adds a value to one of the criteria sets.
type SetToken struct {
	Kind  SetKind
	Value string
}

// FlagToken toggles a boolean criterion, e.g. +team.
type FlagToken struct {
	Name string
}

// Error reports an argument that looks like a filter but cannot be parsed.
type Error struct {
	Arg    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid filter %q: %s", e.Arg, e.Reason)
}

var typeFlags = map[string]model.ParticipantType{
	"+contest":  model.Contestant,
	"+outof":    model.OutOfCompetition,
	"+virtual":  model.Virtual,
	"+practice": model.Practice,
}

// Tokenize splits args into filter tokens and the remaining arguments.
// Arguments starting with + that are not known flags are treated as tags.
func Tokenize(args []string) ([]Token, []string, error) {
	var tokens []Token
	var rest []string
	for _, arg := range args {
		tok, ok, err := parseToken(arg)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			rest = append(rest, arg)
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens, rest, nil
}

func parseToken(arg string) (Token, bool, error) {
	switch {
	case arg == "+team":
		return FlagToken{Name: "team"}, true, nil
	case typeFlags[arg] != "":
		return SetToken{Kind: SetType, Value: string(typeFlags[arg])}, true, nil
	case strings.HasPrefix(arg, "r>="), strings.HasPrefix(arg, "r<="):
		v, err := strconv.Atoi(arg[3:])
		if err != nil {
			return nil, false, &Error{Arg: arg, Reason: "rating must be an integer"}
		}
		return RangeToken{Op: arg[1:3], Value: v}, true, nil
	case strings.HasPrefix(arg, "d>="):
		d, err := ParseDate(arg[3:])
		if err != nil {
			return nil, false, &Error{Arg: arg, Reason: err.Error()}
		}
		return DateToken{Op: ">=", Date: d}, true, nil
	case strings.HasPrefix(arg, "d<"):
		d, err := ParseDate(arg[2:])
		if err != nil {
			return nil, false, &Error{Arg: arg, Reason: err.Error()}
		}
		return DateToken{Op: "<", Date: d}, true, nil
	case strings.HasPrefix(arg, "c+") && len(arg) > 2:
		return SetToken{Kind: SetContest, Value: arg[2:]}, true, nil
	case strings.HasPrefix(arg, "i+") && len(arg) > 2:
		return SetToken{Kind: SetIndex, Value: arg[2:]}, true, nil
	case strings.HasPrefix(arg, "~") && len(arg) > 1:
		return SetToken{Kind: SetBanTag, Value: arg[1:]}, true, nil
	case strings.HasPrefix(arg, "+") && len(arg) > 1:
		return SetToken{Kind: SetTag, Value: arg[1:]}, true, nil
	}
	return nil, false, nil
}

// ParseDate accepts yyyy, mmyyyy or ddmmyyyy and returns midnight UTC.
func ParseDate(s string) (time.Time, error) {
	day, month := 1, 1
	var year int
	var err error
	switch len(s) {
	case 4:
		year, err = strconv.Atoi(s)
	case 6:
		if month, err = strconv.Atoi(s[:2]); err == nil {
			year, err = strconv.Atoi(s[2:])
		}
	case 8:
		if day, err = strconv.Atoi(s[:2]); err == nil {
			if month, err = strconv.Atoi(s[2:4]); err == nil {
				year, err = strconv.Atoi(s[4:])
			}
		}
	default:
		return time.Time{}, fmt.Errorf("date must be yyyy, mmyyyy or ddmmyyyy")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be numeric")
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date out of range")
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, fmt.Errorf("date out of range")
	}
	return d, nil
}

func (t RangeToken) apply(c *stats.Criteria, _ *bool) {
	if t.Op == ">=" {
		c.RatingLow = t.Value
	} else {
		c.RatingHigh = t.Value
	}
}

func (t DateToken) apply(c *stats.Criteria, _ *bool) {
	if t.Op == ">=" {
		c.DateLow = t.Date
		return
	}
	// Criteria bounds are inclusive; d< excludes the date itself.
	high := t.Date.Add(-time.Nanosecond)
	if high.Before(c.DateHigh) {
		c.DateHigh = high
	}
}

func (t SetToken) apply(c *stats.Criteria, typesSeen *bool) {
	switch t.Kind {
	case SetTag:
		c.Tags = append(c.Tags, t.Value)
	case SetBanTag:
		c.BanTags = append(c.BanTags, t.Value)
	case SetIndex:
		c.IndexMarkers = append(c.IndexMarkers, t.Value)
	case SetContest:
		c.ContestMarkers = append(c.ContestMarkers, t.Value)
	case SetType:
		if !*typesSeen {
			c.Types = c.Types[:0]
			*typesSeen = true
		}
		pt := model.ParticipantType(t.Value)
		for _, existing := range c.Types {
			if existing == pt {
				return
			}
		}
		c.Types = append(c.Types, pt)
	}
}

func (t FlagToken) apply(c *stats.Criteria, _ *bool) {
	if t.Name == "team" {
		c.IncludeTeam = true
	}
}

// Build applies tokens on top of the default criteria and validates the result.
func Build(tokens []Token, now time.Time) (stats.Criteria, error) {
	c := stats.DefaultCriteria(now)
	typesSeen := false
	for _, tok := range tokens {
		tok.apply(&c, &typesSeen)
	}
	if typesSeen {
		c.Types = canonicalTypeOrder(c.Types)
	}
	if err := c.Validate(); err != nil {
		return stats.Criteria{}, err
	}
	return c, nil
}

// Parse tokenizes args and builds the criteria in one step.
func Parse(args []string, now time.Time) (stats.Criteria, []string, error) {
	tokens, rest, err := Tokenize(args)
	if err != nil {
		return stats.Criteria{}, nil, err
	}
	c, err := Build(tokens, now)
	if err != nil {
		return stats.Criteria{}, nil, err
	}
	return c, rest, nil
}

func canonicalTypeOrder(types []model.ParticipantType) []model.ParticipantType {
	out := make([]model.ParticipantType, 0, len(types))
	for _, pt := range model.ParticipantTypes {
		for _, t := range types {
			if t == pt {
				out = append(out, pt)
				break
			}
		}
	}
	return out
}

// ExtractFlags removes the named flags from args and reports which were present.
func ExtractFlags(args []string, flags ...string) ([]bool, []string) {
	found := make([]bool, len(flags))
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		matched := false
		for i, f := range flags {
			if arg == f {
				found[i] = true
				matched = true
				break
			}
		}
		if !matched {
			rest = append(rest, arg)
		}
	}
	return found, rest
}
