package model

import "time"

// ItemFilter restricts which review items are visible in the graph.
// The zero value matches everything.
type ItemFilter struct {
	Since   *time.Time `json:"since,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
	Authors []string   `json:"authors,omitempty"`
}

// Matches reports whether the item passes the filter.
func (f ItemFilter) Matches(it *ReviewItem) bool {
	if f.Since != nil && it.UpdatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && it.UpdatedAt.After(*f.Until) {
		return false
	}
	if len(f.Authors) > 0 {
		found := false
		for _, a := range f.Authors {
			if it.Author.Login == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
