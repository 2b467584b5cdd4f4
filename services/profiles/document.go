package profiles

import (
	"encoding/json"
	"fmt"

	"animeshelf/internal/database"
	"animeshelf/models"
)

// document is the stored JSON shape of a profile. currentlyWatching is the
// legacy name of the watching list and is only ever read.
type document struct {
	Username          string             `json:"username"`
	Email             string             `json:"email"`
	Watched           []models.ListEntry `json:"watched"`
	Planned           []models.ListEntry `json:"planned"`
	Watching          []models.ListEntry `json:"watching"`
	CurrentlyWatching []models.ListEntry `json:"currentlyWatching,omitempty"`
}

// NewDocument encodes the initial document for a freshly registered account.
func NewDocument(userID, username, email string) ([]byte, error) {
	return encodeDocument(models.NewProfile(userID, username, email))
}

func encodeDocument(p models.Profile) ([]byte, error) {
	doc := document{
		Username: p.Username,
		Email:    p.Email,
		Watched:  nonNil(p.Watched),
		Planned:  nonNil(p.Planned),
		Watching: nonNil(p.Watching),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return data, nil
}

func decodeRow(row *database.ProfileRow) (models.Profile, error) {
	var doc document
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile %s: %w", row.UserID, err)
	}

	p := models.NewProfile(row.UserID, doc.Username, doc.Email)
	p.Watched = nonNil(doc.Watched)
	p.Planned = nonNil(doc.Planned)
	p.Watching = nonNil(doc.Watching)
	for _, e := range doc.CurrentlyWatching {
		p.Watching = union(p.Watching, e)
	}
	p.Version = row.Version
	p.UpdatedAt = row.UpdatedAt
	return p, nil
}

func nonNil(entries []models.ListEntry) []models.ListEntry {
	if entries == nil {
		return []models.ListEntry{}
	}
	return entries
}
