package models

// Picture holds the catalog's artwork URLs.
type Picture struct {
	Medium string `json:"medium,omitempty"`
	Large  string `json:"large,omitempty"`
}

// SearchResult is a transient catalog hit; it is not persisted until added
// to a list.
type SearchResult struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	MainPicture Picture `json:"mainPicture"`
	Popularity  int     `json:"popularity"`
}

// Entry converts a search result into a list entry.
func (r SearchResult) Entry() ListEntry {
	return ListEntry{
		ID:    r.ID,
		Title: r.Title,
		Image: r.MainPicture.Medium,
	}
}

// Enrichment is extended descriptive metadata for a list entry.
type Enrichment struct {
	Synopsis string   `json:"synopsis"`
	Year     string   `json:"year"`
	Studio   string   `json:"studio"`
	Genres   []string `json:"genres"`
}

// EnrichedEntry pairs a list entry with its enrichment.
type EnrichedEntry struct {
	ListEntry
	Details Enrichment `json:"details"`
}

// Recommendation is one AI-suggested title, optionally resolved against the
// catalog.
type Recommendation struct {
	Title  string   `json:"title"`
	Reason string   `json:"reason,omitempty"`
	Genres []string `json:"genres,omitempty"`
	ID     int64    `json:"id,omitempty"`
	Image  string   `json:"image,omitempty"`
}
