// Package stats contains the filtering and aggregation pipeline behind every plot.
package stats

import "github.com/verte-zerg/cfplot/internal/model"

// Classify partitions submissions by participant type in one pass.
// Every plotted type is present in the result, possibly with an empty slice.
func Classify(subs []model.Submission) map[model.ParticipantType][]model.Submission {
	out := make(map[model.ParticipantType][]model.Submission, len(model.ParticipantTypes))
	for _, t := range model.ParticipantTypes {
		out[t] = []model.Submission{}
	}
	for _, sub := range subs {
		out[sub.ParticipantType] = append(out[sub.ParticipantType], sub)
	}
	return out
}

// Regular joins official and unofficial contest submissions.
func Regular(byType map[model.ParticipantType][]model.Submission) []model.Submission {
	contest := byType[model.Contestant]
	unofficial := byType[model.OutOfCompetition]
	out := make([]model.Submission, 0, len(contest)+len(unofficial))
	out = append(out, contest...)
	return append(out, unofficial...)
}
