package strategy

import (
	"strings"
	"unicode"
)

// OutcomeProbs are full-time probabilities of a home win, a draw and an away
// win.
type OutcomeProbs struct {
	Home, Draw, Away float64
}

type scoreState struct {
	goalDiff  int
	firstHalf bool
}

// winProb maps a clipped goal difference and half to full-time outcome
// probabilities.
var winProb = map[scoreState]OutcomeProbs{
	{-2, true}: {0.08, 0.14, 0.78}, {-2, false}: {0.04, 0.08, 0.88},
	{-1, true}: {0.20, 0.28, 0.52}, {-1, false}: {0.12, 0.20, 0.68},
	{0, true}: {0.40, 0.30, 0.30}, {0, false}: {0.35, 0.38, 0.27},
	{1, true}: {0.62, 0.24, 0.14}, {1, false}: {0.72, 0.20, 0.08},
	{2, true}: {0.80, 0.12, 0.08}, {2, false}: {0.90, 0.06, 0.04},
}

// FairProbs estimates outcome probabilities from the score and minute. A
// red card shifts redCardShift of the home win probability toward the side
// that kept eleven players; the trailing (or level) home side is assumed to
// have been sent off.
func FairProbs(home, away, minute int, redCard bool, redCardShift float64) OutcomeProbs {
	diff := max(-2, min(2, home-away))
	p := winProb[scoreState{goalDiff: diff, firstHalf: minute <= 45}]
	if redCard {
		if home <= away {
			p.Home = max(0.01, p.Home-redCardShift)
		} else {
			p.Home = min(0.99, p.Home+redCardShift)
		}
	}
	return p
}

var teamAliases = map[string]string{
	"man utd":  "manchester united",
	"man city": "manchester city",
	"psg":      "paris saint-germain",
	"inter":    "inter milan",
	"atletico": "atletico madrid",
	"ac milan": "milan",
	"spurs":    "tottenham",
	"bvb":      "borussia dortmund",
}

func normalizeTeam(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if full, ok := teamAliases[n]; ok {
		return full
	}
	return n
}

func words(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}) {
		out[w] = true
	}
	return out
}

// MatchScore is the share of the two teams' name words found in title.
func MatchScore(title, home, away string) float64 {
	t := words(title)
	names := words(normalizeTeam(home) + " " + normalizeTeam(away))
	if len(names) == 0 {
		return 0
	}
	hit := 0
	for w := range names {
		if t[w] {
			hit++
		}
	}
	return float64(hit) / float64(len(names))
}

// marketSide says which outcome a market's YES token pays on.
type marketSide int

const (
	sideHome marketSide = iota
	sideAway
	sideDraw
)

func classifySide(title, home, away string) marketSide {
	t := words(title)
	if t["draw"] || t["tie"] {
		return sideDraw
	}
	mentions := func(team string) bool {
		for w := range words(normalizeTeam(team)) {
			if t[w] {
				return true
			}
		}
		return false
	}
	if !mentions(home) && mentions(away) {
		return sideAway
	}
	return sideHome
}

func (p OutcomeProbs) of(s marketSide) float64 {
	switch s {
	case sideAway:
		return p.Away
	case sideDraw:
		return p.Draw
	default:
		return p.Home
	}
}
