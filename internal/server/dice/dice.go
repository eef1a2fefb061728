// Package dice rolls seeded dice for the table macros. Every roll is a pure
// function of its seed, so a stored seed replays the same faces.
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrMissingDice     = errors.New("at least one die must be provided")
	ErrInvalidDiceSpec = errors.New("dice must have positive sides and count")
)

// MaxDiceCount bounds how many dice one spec may roll.
const MaxDiceCount = 200

// D20 is the die used for checks.
const D20 = 20

// pcgStream is the fixed second word of the PCG state; only the seed varies.
const pcgStream = 0x6d6163726f746162

// DiceSpec is Count dice of Sides faces.
type DiceSpec struct {
	Sides int
	Count int
}

// String renders the spec as NdM.
func (s DiceSpec) String() string {
	return fmt.Sprintf("%dd%d", s.Count, s.Sides)
}

func (s DiceSpec) valid() bool {
	return s.Sides > 0 && s.Count > 0 && s.Count <= MaxDiceCount
}

// DieRoll is the faces rolled for one spec.
type DieRoll struct {
	Sides   int
	Results []int
	Total   int
}

type RollRequest struct {
	Dice []DiceSpec
	Seed int64
}

type RollResult struct {
	Rolls []DieRoll
	Total int
}

// RollDice rolls each spec in order from a single stream seeded by
// request.Seed. Specs are validated before any die is rolled; a count above
// MaxDiceCount is an invalid spec.
func RollDice(request RollRequest) (RollResult, error) {
	if len(request.Dice) == 0 {
		return RollResult{}, ErrMissingDice
	}
	for _, spec := range request.Dice {
		if !spec.valid() {
			return RollResult{}, fmt.Errorf("%w: %s", ErrInvalidDiceSpec, spec)
		}
	}

	rng := newRand(request.Seed)
	result := RollResult{Rolls: make([]DieRoll, 0, len(request.Dice))}
	for _, spec := range request.Dice {
		roll := DieRoll{Sides: spec.Sides, Results: make([]int, spec.Count)}
		for i := range roll.Results {
			roll.Results[i] = 1 + rng.IntN(spec.Sides)
			roll.Total += roll.Results[i]
		}
		result.Rolls = append(result.Rolls, roll)
		result.Total += roll.Total
	}
	return result, nil
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), pcgStream))
}

// CheckRoll is one d20 and the seed that produced it.
type CheckRoll struct {
	Die  int
	Seed int64
}

// RollD20 rolls the d20 for a check.
func RollD20(seed int64) CheckRoll {
	return CheckRoll{Die: 1 + newRand(seed).IntN(D20), Seed: seed}
}

// FormulaRequest is an NdM+K roll, e.g. Whirling Throw's "3d6 + 4".
type FormulaRequest struct {
	Count    int
	Sides    int
	Modifier int
	Seed     int64
}

type FormulaResult struct {
	Results  []int
	Modifier int
	Total    int
}

// RollFormula rolls the dice of request and adds its modifier.
func RollFormula(request FormulaRequest) (FormulaResult, error) {
	rolled, err := RollDice(RollRequest{
		Dice: []DiceSpec{{Sides: request.Sides, Count: request.Count}},
		Seed: request.Seed,
	})
	if err != nil {
		return FormulaResult{}, err
	}
	return FormulaResult{
		Results:  rolled.Rolls[0].Results,
		Modifier: request.Modifier,
		Total:    rolled.Total + request.Modifier,
	}, nil
}
