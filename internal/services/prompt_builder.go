package services

import (
	"fmt"
	"strings"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
)

// Prompt construction is pure string assembly: no clock, no randomness, no
// I/O. Identical inputs produce identical prompts.

const defaultTone = "professional and confident"

// BuildGroundedPrompt produces the generation instruction for grounded mode.
// Mapping items are walked in stored order. An uncovered item always gets the
// do-not-fabricate line, even when stale bullet ids are still attached to it;
// covered items get their resolved evidence text, and bullet ids missing from
// the lookup are skipped silently.
func BuildGroundedPrompt(app *models.Application, mapping *models.ConfirmedMapping, evidence map[string]models.EvidenceBullet, constraints *dtos.LetterConstraints) string {
	var b strings.Builder
	writeHeader(&b, app)

	b.WriteString("Confirmed requirements and evidence:\n")
	for _, item := range mapping.Items {
		fmt.Fprintf(&b, "- [%s] %s\n", item.Kind, item.Text)
		if item.Uncovered {
			b.WriteString("  There is no confirmed evidence for this item. Do not fabricate evidence or invent specific achievements for it.\n")
			continue
		}
		for _, id := range item.BulletIDs {
			bullet, ok := evidence[id]
			if !ok {
				continue
			}
			if bullet.Title != "" {
				fmt.Fprintf(&b, "  Evidence (%s): %s\n", bullet.Title, bullet.Text)
			} else {
				fmt.Fprintf(&b, "  Evidence: %s\n", bullet.Text)
			}
		}
	}
	b.WriteString("\nOnly make claims supported by the evidence above.\n")

	writeConstraints(&b, constraints)
	writeOutline(&b)
	return b.String()
}

// BuildPreviewPrompt produces the ungrounded variant: same header context, no
// evidence section, explicit hedging instead.
func BuildPreviewPrompt(app *models.Application, constraints *dtos.LetterConstraints) string {
	var b strings.Builder
	writeHeader(&b, app)

	b.WriteString("No confirmed evidence is available for this letter.\n")
	b.WriteString("Do not invent specific claims, numbers, or named achievements.\n")
	b.WriteString("Keep content generic where evidence is lacking.\n")
	b.WriteString("This is a preview draft and is not for submission.\n")

	writeConstraints(&b, constraints)
	writeOutline(&b)
	return b.String()
}

func writeHeader(b *strings.Builder, app *models.Application) {
	fmt.Fprintf(b, "Write a cover letter for the %s position at %s.\n\n", app.Role, app.Company)
	b.WriteString("Job posting:\n")
	if app.JDSnapshot != nil {
		b.WriteString(strings.TrimSpace(*app.JDSnapshot))
	}
	b.WriteString("\n\n")
}

func writeConstraints(b *strings.Builder, c *dtos.LetterConstraints) {
	b.WriteString("\n")
	tone := defaultTone
	if c != nil && c.Tone != nil {
		tone = *c.Tone
	}
	fmt.Fprintf(b, "Tone: %s.\n", tone)
	if c == nil {
		return
	}
	if c.Emphasis != nil {
		fmt.Fprintf(b, "Emphasize: %s.\n", *c.Emphasis)
	}
	if len(c.KeywordsInclude) > 0 {
		fmt.Fprintf(b, "Work in these keywords where natural: %s.\n", strings.Join(c.KeywordsInclude, ", "))
	}
	if len(c.KeywordsAvoid) > 0 {
		fmt.Fprintf(b, "Avoid these words and phrases: %s.\n", strings.Join(c.KeywordsAvoid, ", "))
	}
}

func writeOutline(b *strings.Builder) {
	b.WriteString("Structure the letter as an opening paragraph, a body, and a closing paragraph.\n")
	b.WriteString("Aim for 300-400 words.\n")
}
