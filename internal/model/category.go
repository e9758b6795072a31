package model

import (
	"fmt"
	"strconv"
	"strings"
)

// GameplayType is the workshop gameplay category of a map.
type GameplayType int

const (
	GameplayStandard GameplayType = iota + 1
	GameplayPuzzle
	GameplayStory
	GameplayExperimental
	GameplayChallenge
	GameplayDeathmatch
)

var gameplayTypeNames = [...]string{"", "Standard", "Puzzle", "Story", "Experimental", "Challenge", "Deathmatch"}

// AllGameplayTypes lists every gameplay type in ordinal order.
var AllGameplayTypes = []GameplayType{
	GameplayStandard, GameplayPuzzle, GameplayStory,
	GameplayExperimental, GameplayChallenge, GameplayDeathmatch,
}

// Valid reports whether g is one of the known gameplay types.
func (g GameplayType) Valid() bool {
	return g >= GameplayStandard && g <= GameplayDeathmatch
}

// String returns the workshop tag name, e.g. "Standard".
func (g GameplayType) String() string {
	if !g.Valid() {
		return fmt.Sprintf("GameplayType(%d)", int(g))
	}
	return gameplayTypeNames[g]
}

// ParseGameplayType accepts either the ordinal ("1") or the tag name
// ("standard", case-insensitive).
func ParseGameplayType(s string) (GameplayType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if g := GameplayType(n); g.Valid() {
			return g, nil
		}
		return 0, fmt.Errorf("unknown gameplay type %q", s)
	}
	for i := 1; i < len(gameplayTypeNames); i++ {
		if strings.EqualFold(gameplayTypeNames[i], s) {
			return GameplayType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gameplay type %q", s)
}

// Difficulty is the workshop difficulty level of a map.
type Difficulty int

const (
	DifficultyNormal Difficulty = iota + 1
	DifficultyChallenging
	DifficultyBrotal
)

var difficultyNames = [...]string{"", "Normal", "Challenging", "Brotal"}

// AllDifficulties lists every difficulty in ordinal order.
var AllDifficulties = []Difficulty{DifficultyNormal, DifficultyChallenging, DifficultyBrotal}

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	return d >= DifficultyNormal && d <= DifficultyBrotal
}

// String returns the workshop tag name, e.g. "Brotal".
func (d Difficulty) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Difficulty(%d)", int(d))
	}
	return difficultyNames[d]
}

// ParseDifficulty accepts either the ordinal ("3") or the tag name
// ("brotal", case-insensitive).
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if d := Difficulty(n); d.Valid() {
			return d, nil
		}
		return 0, fmt.Errorf("unknown difficulty %q", s)
	}
	for i := 1; i < len(difficultyNames); i++ {
		if strings.EqualFold(difficultyNames[i], s) {
			return Difficulty(i), nil
		}
	}
	return 0, fmt.Errorf("unknown difficulty %q", s)
}

// TimePeriod is the workshop "days" filter. TimePeriodAll disables it.
type TimePeriod int

const (
	TimePeriodAll      TimePeriod = -1
	TimePeriodToday    TimePeriod = 1
	TimePeriodWeek     TimePeriod = 7
	TimePeriodQuarter  TimePeriod = 90
	TimePeriodHalfYear TimePeriod = 180
	TimePeriodYear     TimePeriod = 365
)

var timePeriodLabels = map[TimePeriod]string{
	TimePeriodAll:      "All Time",
	TimePeriodToday:    "Today",
	TimePeriodWeek:     "1 Week",
	TimePeriodQuarter:  "3 Months",
	TimePeriodHalfYear: "6 Months",
	TimePeriodYear:     "1 Year",
}

// Valid reports whether p is a period the workshop accepts.
func (p TimePeriod) Valid() bool {
	_, ok := timePeriodLabels[p]
	return ok
}

func (p TimePeriod) String() string {
	if label, ok := timePeriodLabels[p]; ok {
		return label
	}
	return fmt.Sprintf("TimePeriod(%d)", int(p))
}
