package profiles

import "animeshelf/models"

// union appends entry unless an entry with the same id is already present.
func union(list []models.ListEntry, entry models.ListEntry) []models.ListEntry {
	if indexOf(list, entry.ID) >= 0 {
		return list
	}
	return append(list, entry)
}

// remove drops every entry with id. The input slice is returned untouched when
// id is absent.
func remove(list []models.ListEntry, id int64) []models.ListEntry {
	if indexOf(list, id) < 0 {
		return list
	}
	out := make([]models.ListEntry, 0, len(list)-1)
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func indexOf(list []models.ListEntry, id int64) int {
	for i, e := range list {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// applyOp applies a single union or remove to p. With exclusive set, a union
// also removes the ids from every other list.
func applyOp(p *models.Profile, op models.ListOp, exclusive bool) {
	list := p.List(op.List)
	for _, e := range op.Entries {
		switch op.Op {
		case models.OpUnion:
			entry := e.Clone()
			if op.List != models.ListWatching {
				entry.Episode = nil
			}
			list = union(list, entry)
			if exclusive {
				for _, other := range models.AllLists {
					if other != op.List {
						p.SetList(other, remove(p.List(other), e.ID))
					}
				}
			}
		case models.OpRemove:
			list = remove(list, e.ID)
		}
	}
	p.SetList(op.List, list)
}
