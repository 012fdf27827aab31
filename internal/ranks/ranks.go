// Package ranks holds the Codeforces rating tiers used for colouring plots.
package ranks

import "math"

// Rank is a rating tier covering [Low, High).
type Rank struct {
	Low   int
	High  int
	Title string
	// Color is the bar colour, Band the lighter shade used behind plots.
	Color string
	Band  string
}

// Rated lists the rated tiers in ascending order.
var Rated = []Rank{
	{Low: math.MinInt32, High: 1200, Title: "Newbie", Color: "808080", Band: "CCCCCC"},
	{Low: 1200, High: 1400, Title: "Pupil", Color: "008000", Band: "77FF77"},
	{Low: 1400, High: 1600, Title: "Specialist", Color: "03A89E", Band: "77DDBB"},
	{Low: 1600, High: 1900, Title: "Expert", Color: "0000FF", Band: "AAAAFF"},
	{Low: 1900, High: 2100, Title: "Candidate Master", Color: "AA00AA", Band: "FF88FF"},
	{Low: 2100, High: 2300, Title: "Master", Color: "FF8C00", Band: "FFCC88"},
	{Low: 2300, High: 2400, Title: "International Master", Color: "F57500", Band: "FFBB55"},
	{Low: 2400, High: 2600, Title: "Grandmaster", Color: "FF3030", Band: "FF7777"},
	{Low: 2600, High: 3000, Title: "International Grandmaster", Color: "FF0000", Band: "FF3333"},
	{Low: 3000, High: math.MaxInt32, Title: "Legendary Grandmaster", Color: "CC0000", Band: "AA0000"},
}

// Unrated is returned for users without a rating.
var Unrated = Rank{Title: "Unrated", Color: "000000", Band: "FFFFFF"}

// For returns the tier containing rating.
func For(rating int) Rank {
	for _, r := range Rated {
		if rating >= r.Low && rating < r.High {
			return r
		}
	}
	return Unrated
}
