// Package conditions maps a discharge reading to a runnability condition
package conditions

import (
	"errors"
	"fmt"
	"math"
)

// Level is the severity bucket of a flow reading, 0 through 6
type Level int

// LevelCount is the number of flow buckets
const LevelCount = 7

// ErrInvalidFlow is returned for negative flow readings
var ErrInvalidFlow = errors.New("invalid flow")

// lowerBounds holds the inclusive lower bound of levels 1..6; level 0 is exactly zero
var lowerBounds = [LevelCount - 1]int{1, 50, 100, 300, 600, 2000}

// String returns the CSS-style level name, e.g. "level-3"
func (l Level) String() string {
	return fmt.Sprintf("level-%d", int(l))
}

// Condition is a classified flow reading
type Condition struct {
	Text  string
	Level Level
}

// LevelFor returns the bucket a non-negative flow falls into
func LevelFor(flow int) (Level, error) {
	if flow < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFlow, flow)
	}
	level := Level(0)
	for i, bound := range lowerBounds {
		if flow >= bound {
			level = Level(i + 1)
		}
	}
	return level, nil
}

// Truncate converts a fractional reading to an integer, rounding toward zero
func Truncate(v float64) int {
	return int(math.Trunc(v))
}

// Table holds the human-readable text for each level
type Table struct {
	texts [LevelCount]string
}

// NewTable creates a condition table from exactly LevelCount texts ordered by level
func NewTable(texts []string) (*Table, error) {
	if len(texts) != LevelCount {
		return nil, fmt.Errorf("condition table needs %d entries, got %d", LevelCount, len(texts))
	}
	t := &Table{}
	copy(t.texts[:], texts)
	return t, nil
}

// Text returns the description for a level
func (t *Table) Text(l Level) string {
	if l < 0 || int(l) >= LevelCount {
		return ""
	}
	return t.texts[l]
}

// Classify maps a flow reading to its condition text and level
func (t *Table) Classify(flow int) (Condition, error) {
	level, err := LevelFor(flow)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Text: t.texts[level], Level: level}, nil
}
