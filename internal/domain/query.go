package domain

import "slices"

// TagBehavior controls how multiple query tags combine.
type TagBehavior string

const (
	TagBehaviorAll TagBehavior = "All"
	TagBehaviorAny TagBehavior = "Any"
)

// ResourceQuery filters resource listings.
type ResourceQuery struct {
	Names       []string    `json:"names,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	TagBehavior TagBehavior `json:"tag_behavior,omitempty"`
}

// Matches reports whether a resource with the given name and tags passes the query.
func (q ResourceQuery) Matches(name string, tags []string) bool {
	if len(q.Names) > 0 && !slices.Contains(q.Names, name) {
		return false
	}
	if len(q.Tags) == 0 {
		return true
	}
	if q.TagBehavior == TagBehaviorAny {
		for _, t := range q.Tags {
			if slices.Contains(tags, t) {
				return true
			}
		}
		return false
	}
	for _, t := range q.Tags {
		if !slices.Contains(tags, t) {
			return false
		}
	}
	return true
}
