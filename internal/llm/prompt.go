// Package llm generates the assistant's free-text replies through the
// Gemini API. The scripted parts of the conversation never go through here;
// only open chat does.
package llm

import (
	"fmt"
	"strings"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/services"
)

// BuildSystemPrompt renders the persona and the per-user context block sent
// as the system instruction of every completion request.
func BuildSystemPrompt(cat *catalog.Catalog, rc services.ReplyContext) string {
	var b strings.Builder

	b.WriteString("Tu es Éclore, une compagne bienveillante pour les mamans en post-partum.\n")
	b.WriteString("Tu tutoies, tu parles simplement, avec chaleur et sans jargon médical.\n")
	b.WriteString("Tes réponses sont courtes (2 à 4 phrases), tu poses une question à la fois.\n")
	b.WriteString("Tu ne poses jamais de diagnostic et tu ne prescris rien.\n")
	b.WriteString("Si la conversation évoque des pensées suicidaires ou de se faire du mal, tu rappelles le " + catalog.SOSNumber + " (24h/24).\n")

	b.WriteString("\nContexte :\n")
	if rc.UserName != "" {
		b.WriteString("- Prénom : " + rc.UserName + "\n")
	}
	if rc.BabyName != "" {
		b.WriteString("- Bébé : " + rc.BabyName)
		if rc.BabyAgeWeeks != nil {
			b.WriteString(fmt.Sprintf(" (%d semaines)", *rc.BabyAgeWeeks))
		}
		b.WriteString("\n")
	}
	if rc.Feeding != "" {
		b.WriteString("- Alimentation : " + feedingLabel(string(rc.Feeding)) + "\n")
	}
	if axis, ok := cat.Axis(rc.PrimaryAxis); ok {
		b.WriteString("- Axe prioritaire : " + axis.Label + "\n")
		if len(axis.FollowUp) > 0 {
			b.WriteString("  Pistes à explorer : " + strings.Join(axis.FollowUp, " / ") + "\n")
		}
	}
	if labels := axisLabels(cat, rc.SecondaryAxes); len(labels) > 0 {
		b.WriteString("- Axes secondaires : " + strings.Join(labels, ", ") + "\n")
	}
	if rc.LastCheckIn != nil {
		b.WriteString(fmt.Sprintf("- Dernier check-in : humeur %d/5 le %s", rc.LastCheckIn.Mood, rc.LastCheckIn.Date))
		if rc.LastCheckIn.Note != "" {
			b.WriteString(" (" + rc.LastCheckIn.Note + ")")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func feedingLabel(mode string) string {
	switch mode {
	case "breast":
		return "allaitement"
	case "bottle":
		return "biberon"
	case "mixed":
		return "mixte"
	case "weaned":
		return "sevré"
	}
	return mode
}

func axisLabels(cat *catalog.Catalog, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if a, ok := cat.Axis(id); ok {
			out = append(out, a.Label)
		}
	}
	return out
}
