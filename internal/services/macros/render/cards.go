// Package render produces the chat cards posted by the table macros, as HTML
// for chat clients and as plain text for logs and tool responses.
package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/louisbranch/macrotable/internal/platform/i18n/catalog"
	"github.com/louisbranch/macrotable/internal/systems/pf2e/domain"
)

// Localizer formats catalog keys for one locale. *message.Printer satisfies it.
type Localizer interface {
	Sprintf(key string, args ...any) string
}

// NewLocalizer returns the catalog printer closest to locale.
func NewLocalizer(locale string) Localizer {
	return catalog.Default().Printer(locale)
}

// CounteractCard holds everything shown on a Counteract Check card.
type CounteractCard struct {
	// Base is the die result for a fresh roll, or the reused roll's total.
	Base         int
	Modifier     int
	Bonus        int
	Total        int
	DC           int
	YourRank     int
	OppRank      int
	Degree       domain.Degree
	Counteracted bool
	Secret       bool
}

// WhirlingThrowCard holds everything shown on a Whirling Throw card.
type WhirlingThrowCard struct {
	ActorName string
	Result    domain.WhirlingThrowResult
	// Rolled is set when the damage formula was rolled server-side.
	Rolled      bool
	RolledTotal int
}

// RollBreakdown renders the roll line: the base, then " + mod" when the
// modifier is non-zero, then " + b" or " - |b|" when the bonus is non-zero,
// then "= total".
func RollBreakdown(base, modifier, bonus, total int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(base))
	if modifier != 0 {
		b.WriteString(" + ")
		b.WriteString(strconv.Itoa(modifier))
	}
	if bonus != 0 {
		if bonus >= 0 {
			b.WriteString(" + ")
		} else {
			b.WriteString(" - ")
		}
		b.WriteString(strconv.Itoa(abs(bonus)))
	}
	b.WriteString("= ")
	b.WriteString(strconv.Itoa(total))
	return b.String()
}

// DegreeLabel returns the localized, capitalized degree label.
func DegreeLabel(loc Localizer, degree domain.Degree) string {
	return loc.Sprintf("macros.degree." + strings.ToLower(degree.Code()))
}

// CounteractResultText returns the localized counteracted line.
func CounteractResultText(loc Localizer, counteracted bool) string {
	if counteracted {
		return loc.Sprintf("macros.counteract.counteracted")
	}
	return loc.Sprintf("macros.counteract.not_counteracted")
}

// CounteractText renders the Counteract Check card as plain text lines.
func CounteractText(loc Localizer, card CounteractCard) string {
	lines := []string{
		loc.Sprintf("macros.counteract.title"),
		loc.Sprintf("macros.counteract.roll") + ": " + RollBreakdown(card.Base, card.Modifier, card.Bonus, card.Total),
		loc.Sprintf("macros.counteract.dc") + ": " + strconv.Itoa(card.DC),
		loc.Sprintf("macros.counteract.ranks") + ": " + fmt.Sprintf("%d / %d", card.YourRank, card.OppRank),
		loc.Sprintf("macros.counteract.degree") + ": " + DegreeLabel(loc, card.Degree),
		CounteractResultText(loc, card.Counteracted),
	}
	if card.Secret {
		lines = append(lines, "("+loc.Sprintf("macros.counteract.secret")+")")
	}
	return strings.Join(lines, "\n")
}

// WhirlingThrowText renders the Whirling Throw card as plain text lines.
func WhirlingThrowText(loc Localizer, card WhirlingThrowCard) string {
	lines := []string{
		loc.Sprintf("macros.whirling_throw.title"),
		"(" + whirlingDistance(loc, card.Result) + ")",
	}
	if card.ActorName != "" {
		lines = append(lines, loc.Sprintf("macros.whirling_throw.actor", card.ActorName))
	}
	lines = append(lines, card.Result.DamageSyntax)
	if card.Rolled {
		lines = append(lines, loc.Sprintf("macros.whirling_throw.rolled", card.RolledTotal))
	}
	return strings.Join(lines, "\n")
}

// ToString renders a component into a string.
func ToString(ctx context.Context, component templ.Component) (string, error) {
	var b strings.Builder
	if err := component.Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func whirlingDistance(loc Localizer, result domain.WhirlingThrowResult) string {
	return loc.Sprintf("macros.whirling_throw.distance", result.DistanceFeet, result.DiceCount)
}

// rollPrefix is the breakdown without the total, which the HTML card bolds.
func rollPrefix(card CounteractCard) string {
	full := RollBreakdown(card.Base, card.Modifier, card.Bonus, card.Total)
	return strings.TrimSuffix(full, strconv.Itoa(card.Total))
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}
