package domain

import "fmt"

const (
	whirlingThrowBaseFeet   = 10
	whirlingThrowFeetPerMod = 5
	whirlingThrowFeetPerDie = 10
	whirlingThrowDieSides   = 6
	whirlingThrowDamageType = "untyped"
)

// MaxStrengthMod bounds the Strength modifier a character sheet may carry.
// Real sheets sit far below it; the bound keeps distance and dice counts
// small enough to roll.
const MaxStrengthMod = 100

// StrengthModInRange reports whether mod is within ±MaxStrengthMod.
func StrengthModInRange(mod int) bool {
	return mod >= -MaxStrengthMod && mod <= MaxStrengthMod
}

// WhirlingThrowResult describes the distance and damage of a Whirling Throw.
type WhirlingThrowResult struct {
	StrMod        int
	DistanceFeet  int
	DiceCount     int
	DamageFormula string
	// DamageSyntax is the inline damage roll posted to chat.
	DamageSyntax string
}

// EvaluateWhirlingThrow derives the throw distance and damage formula from a
// Strength modifier.
//
// Distance is max(0, 10 + 5*strMod) feet and damage is 1d6 per full 10 feet
// plus the modifier. A modifier of zero or less always deals a flat 1d6.
// Modifiers outside ±MaxStrengthMod are clamped to it first, and StrMod
// reports the clamped value.
func EvaluateWhirlingThrow(strMod int) WhirlingThrowResult {
	strMod = min(max(strMod, -MaxStrengthMod), MaxStrengthMod)
	distance := max(0, whirlingThrowBaseFeet+strMod*whirlingThrowFeetPerMod)
	diceCount := distance / whirlingThrowFeetPerDie

	var dicePart, modPart string
	if strMod <= 0 {
		diceCount = 1
		dicePart = fmt.Sprintf("1d%d", whirlingThrowDieSides)
	} else {
		dicePart = fmt.Sprintf("%dd%d", max(diceCount, 1), whirlingThrowDieSides)
		modPart = fmt.Sprintf(" + %d", strMod)
	}

	formula := dicePart + modPart
	return WhirlingThrowResult{
		StrMod:        strMod,
		DistanceFeet:  distance,
		DiceCount:     diceCount,
		DamageFormula: formula,
		DamageSyntax:  fmt.Sprintf("@Damage[( %s )[%s]]", formula, whirlingThrowDamageType),
	}
}

// DamageDice returns the dice count, sides and flat modifier of the damage formula.
func (r WhirlingThrowResult) DamageDice() (count int, sides int, modifier int) {
	if r.StrMod <= 0 {
		return 1, whirlingThrowDieSides, 0
	}
	return max(r.DiceCount, 1), whirlingThrowDieSides, r.StrMod
}
