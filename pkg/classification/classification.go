// Package classification defines the four-level classification lattice used
// for every clearance comparison in Bastion.
//
// Levels form a total order (UNCLASSIFIED < CONFIDENTIAL < SECRET <
// TOP_SECRET). Comparisons always go through the numeric rank, never lexical
// order. Unknown level strings rank below every valid level, so a malformed
// classification can never satisfy a requirement.
package classification

// Level is a classification level assigned to a record, cell, or document,
// and the clearance level held by a principal.
type Level string

const (
	// Unclassified is the lowest level; visible to every authenticated principal.
	Unclassified Level = "UNCLASSIFIED"

	// Confidential requires CONFIDENTIAL clearance or higher.
	Confidential Level = "CONFIDENTIAL"

	// Secret requires SECRET clearance or higher.
	Secret Level = "SECRET"

	// TopSecret is the highest level.
	TopSecret Level = "TOP_SECRET"
)

// levelRanks maps each valid level to its position in the total order.
var levelRanks = map[Level]int{
	Unclassified: 0,
	Confidential: 1,
	Secret:       2,
	TopSecret:    3,
}

// levelOrder lists all valid levels in ascending rank order.
var levelOrder = []Level{Unclassified, Confidential, Secret, TopSecret}

// Rank returns the numeric rank of a level (0..3).
// Unknown or malformed levels return -1, which fails every Satisfies
// comparison. A missing level never defaults to an allowed rank.
func Rank(level Level) int {
	rank, ok := levelRanks[level]
	if !ok {
		return -1
	}
	return rank
}

// Satisfies reports whether a clearance level meets or exceeds a required
// classification level.
func Satisfies(clearance, required Level) bool {
	return Rank(clearance) >= Rank(required)
}

// Valid reports whether the level is one of the four defined levels.
func Valid(level Level) bool {
	_, ok := levelRanks[level]
	return ok
}

// AtOrBelow returns every valid level at or below the given clearance, in
// ascending order. An unknown clearance yields an empty slice (no level is
// reachable), never a default ceiling.
func AtOrBelow(clearance Level) []Level {
	ceiling := Rank(clearance)
	if ceiling < 0 {
		return nil
	}

	levels := make([]Level, 0, ceiling+1)
	for _, l := range levelOrder {
		if levelRanks[l] <= ceiling {
			levels = append(levels, l)
		}
	}
	return levels
}

// Levels returns all valid levels in ascending rank order.
func Levels() []Level {
	out := make([]Level, len(levelOrder))
	copy(out, levelOrder)
	return out
}
