// Package model defines shared data structures.
package model

import (
	"strconv"
	"time"
)

// ParticipantType describes how a user took part in a contest.
type ParticipantType string

// Participant types reported by Codeforces.
const (
	Contestant       ParticipantType = "CONTESTANT"
	OutOfCompetition ParticipantType = "OUT_OF_COMPETITION"
	Virtual          ParticipantType = "VIRTUAL"
	Practice         ParticipantType = "PRACTICE"
	Manager          ParticipantType = "MANAGER"
)

// ParticipantTypes lists the plotted participant types in display order.
var ParticipantTypes = []ParticipantType{Contestant, OutOfCompetition, Virtual, Practice}

// VerdictOK is the verdict of an accepted submission.
const VerdictOK = "OK"

// RatingChange is one contest's effect on a user's rating.
type RatingChange struct {
	ContestID   int
	ContestName string
	Handle      string
	OldRating   int
	NewRating   int
	UpdateTime  time.Time
}

// Problem identifies a problem and its metadata.
type Problem struct {
	ContestID   int
	ContestName string
	Index       string
	Name        string
	Rating      *int
	Tags        []string
}

// Key returns a stable identifier for the problem.
func (p Problem) Key() string {
	if p.ContestID == 0 {
		return p.Name
	}
	return strconv.Itoa(p.ContestID) + p.Index
}

// Submission is a single submission made by a user.
type Submission struct {
	ID              int64
	CreationTime    time.Time
	ParticipantType ParticipantType
	TeamSize        int
	Verdict         string
	Problem         Problem
}

// User carries the profile fields used for plotting.
type User struct {
	Handle     string
	Rating     *int
	MaxRating  *int
	LastOnline time.Time
}

// Config defines settings shared by all commands.
type Config struct {
	APIBaseURL    string
	APITimeout    time.Duration
	StoreBackend  string
	StorePath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration
	RenderWidth   int
	RenderHeight  int
	OutDir        string
	Member        string
	MaxHandles    int
	LogLevel      string
}
