package recommend

import (
	"sort"
	"strings"

	"animeshelf/models"
)

// TopGenres counts genres across watched entries and returns the n most
// frequent. Ties keep the order in which genres first appear.
func TopGenres(watched []models.ListEntry, n int) []models.GenreCount {
	if n <= 0 {
		return []models.GenreCount{}
	}
	index := make(map[string]int)
	counts := make([]models.GenreCount, 0)
	for _, entry := range watched {
		for _, g := range entry.Genres {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if i, ok := index[g]; ok {
				counts[i].Count++
				continue
			}
			index[g] = len(counts)
			counts = append(counts, models.GenreCount{Genre: g, Count: 1})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
