package models

import "time"

// Account is an authenticated identity. The password hash never leaves the
// database layer.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Profile is the per-account list document.
type Profile struct {
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Watched   []ListEntry `json:"watched"`
	Planned   []ListEntry `json:"planned"`
	Watching  []ListEntry `json:"watching"`
	Version   int64       `json:"version"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewProfile returns a profile with every list initialised to empty.
func NewProfile(userID, username, email string) Profile {
	return Profile{
		UserID:   userID,
		Username: username,
		Email:    email,
		Watched:  []ListEntry{},
		Planned:  []ListEntry{},
		Watching: []ListEntry{},
	}
}

// List returns the entries stored under name.
func (p *Profile) List(name ListName) []ListEntry {
	switch name {
	case ListWatched:
		return p.Watched
	case ListPlanned:
		return p.Planned
	case ListWatching:
		return p.Watching
	default:
		return nil
	}
}

// SetList replaces the entries stored under name.
func (p *Profile) SetList(name ListName, entries []ListEntry) {
	if entries == nil {
		entries = []ListEntry{}
	}
	switch name {
	case ListWatched:
		p.Watched = entries
	case ListPlanned:
		p.Planned = entries
	case ListWatching:
		p.Watching = entries
	}
}

// Clone returns a deep copy so callers can mutate lists without touching
// snapshots held by subscribers.
func (p Profile) Clone() Profile {
	out := p
	out.Watched = cloneEntries(p.Watched)
	out.Planned = cloneEntries(p.Planned)
	out.Watching = cloneEntries(p.Watching)
	return out
}

func cloneEntries(in []ListEntry) []ListEntry {
	out := make([]ListEntry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
