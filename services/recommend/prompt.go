package recommend

import (
	"fmt"
	"strings"

	"animeshelf/models"
)

const systemPrompt = "You are an anime recommendation assistant. " +
	"Reply with a single JSON object and nothing else."

// BuildPrompt renders the user message sent to the model.
func BuildPrompt(watched, planned []models.ListEntry, top []models.GenreCount, count int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Recommend %d anime titles for a viewer.\n\n", count)
	b.WriteString("Titles they have watched:\n")
	writeTitles(&b, watched)
	b.WriteString("\nTitles they plan to watch:\n")
	writeTitles(&b, planned)

	b.WriteString("\nTheir favourite genres: ")
	if len(top) == 0 {
		b.WriteString("(unknown)")
	} else {
		names := make([]string, 0, len(top))
		for _, g := range top {
			names = append(names, fmt.Sprintf("%s (%d)", g.Genre, g.Count))
		}
		b.WriteString(strings.Join(names, ", "))
	}
	b.WriteString("\n\n")

	b.WriteString("Do not recommend any title from either list above. ")
	b.WriteString("Respond with exactly this JSON shape:\n")
	b.WriteString(`{"recommendations":[{"title":"...","reason":"...","genres":["..."]}]}`)
	b.WriteString("\n")
	return b.String()
}

func writeTitles(b *strings.Builder, entries []models.ListEntry) {
	if len(entries) == 0 {
		b.WriteString("- (none)\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(b, "- %s\n", e.Title)
	}
}
