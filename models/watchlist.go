package models

import "fmt"

// ListName identifies one of the three per-user lists.
type ListName string

const (
	ListWatched  ListName = "watched"
	ListPlanned  ListName = "planned"
	ListWatching ListName = "watching"
)

// AllLists is the canonical list order.
var AllLists = []ListName{ListWatched, ListPlanned, ListWatching}

// ParseListName validates a list name taken from user input.
func ParseListName(s string) (ListName, error) {
	switch ListName(s) {
	case ListWatched, ListPlanned, ListWatching:
		return ListName(s), nil
	case "currentlyWatching":
		return ListWatching, nil
	default:
		return "", fmt.Errorf("unknown list %q", s)
	}
}

// ListEntry is a minimal anime record attached to a list.
type ListEntry struct {
	ID      int64    `json:"id" validate:"gt=0"`
	Title   string   `json:"title" validate:"required"`
	Image   string   `json:"image,omitempty" validate:"omitempty,url"`
	Genres  []string `json:"genres,omitempty"`
	Episode *int     `json:"episode,omitempty" validate:"omitempty,min=0"`
}

// Clone returns a copy that shares no slices or pointers with e.
func (e ListEntry) Clone() ListEntry {
	out := e
	if e.Genres != nil {
		out.Genres = append([]string(nil), e.Genres...)
	}
	if e.Episode != nil {
		ep := *e.Episode
		out.Episode = &ep
	}
	return out
}

// EpisodeOrZero returns the tracked episode, or 0 when none is set.
func (e ListEntry) EpisodeOrZero() int {
	if e.Episode == nil {
		return 0
	}
	return *e.Episode
}

// ListOpKind is the patch operation applied to an array field.
type ListOpKind string

const (
	OpUnion  ListOpKind = "union"
	OpRemove ListOpKind = "remove"
)

// ListOp is a single union or remove against one list. Entries of a union
// are validated individually; a remove only needs ids.
type ListOp struct {
	Op      ListOpKind  `json:"op" validate:"oneof=union remove"`
	List    ListName    `json:"list" validate:"oneof=watched planned watching"`
	Entries []ListEntry `json:"entries" validate:"min=1"`
}

// ListPatch is applied atomically, in order.
type ListPatch struct {
	Ops []ListOp `json:"ops" validate:"min=1,dive"`
}

// MoveRequest moves one entry between lists.
type MoveRequest struct {
	ID             int64    `json:"id" validate:"gt=0"`
	From           ListName `json:"from" validate:"oneof=watched planned watching"`
	To             ListName `json:"to" validate:"oneof=watched planned watching,nefield=From"`
	IdempotencyKey string   `json:"-"`
}
