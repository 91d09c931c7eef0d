package ledger

import "sort"

// Filter selects entries for Query. Criteria are conjunctive; a nil slice or
// zero bound matches everything. Start and End are inclusive Unix-nanosecond
// bounds.
type Filter struct {
	EventTypes     []EventType    `json:"event_types,omitempty"`
	ResourceTypes  []ResourceType `json:"resource_types,omitempty"`
	Actors         []string       `json:"actors,omitempty"`
	ResourceIDs    []string       `json:"resource_ids,omitempty"`
	Start          int64          `json:"start,omitempty"`
	End            int64          `json:"end,omitempty"`
	ComplianceOnly bool           `json:"compliance_only,omitempty"`

	// Offset and Limit paginate after sorting. Limit <= 0 means no limit.
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

// Matches reports whether e satisfies every supplied criterion of f.
func (f Filter) Matches(e *Entry) bool {
	if len(f.EventTypes) > 0 && !containsEvent(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.ResourceTypes) > 0 && !containsResource(f.ResourceTypes, e.ResourceType) {
		return false
	}
	if len(f.Actors) > 0 && !containsString(f.Actors, e.Actor) {
		return false
	}
	if len(f.ResourceIDs) > 0 && !containsString(f.ResourceIDs, e.ResourceID) {
		return false
	}
	if f.Start != 0 && e.Timestamp < f.Start {
		return false
	}
	if f.End != 0 && e.Timestamp > f.End {
		return false
	}
	if f.ComplianceOnly && !e.ComplianceRelevant {
		return false
	}
	return true
}

func containsEvent(set []EventType, t EventType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsResource(set []ResourceType, t ResourceType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// sortAndPage orders matches newest-first and applies offset/limit.
// An offset past the end yields an empty slice, not an error.
func (f Filter) sortAndPage(matches []*Entry) []*Entry {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp > matches[j].Timestamp
	})

	if f.Offset > 0 {
		if f.Offset >= len(matches) {
			return []*Entry{}
		}
		matches = matches[f.Offset:]
	}
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	return matches
}
