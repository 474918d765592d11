package nostrmodel

// Filter mirrors the NIP-01 REQ filter shape. All fields are optional; a nil
// slice/pointer means "don't constrain on this field". Within a field,
// membership is OR; across fields, AND.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// FilterSet is the filter list of a single REQ. An event passes the set if it
// passes any one filter (union semantics); an empty set matches nothing.
type FilterSet []Filter

// Matches reports whether the event satisfies every present field of f.
func (f Filter) Matches(e Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	if len(f.ETags) > 0 && !hasTagValue(e.Tags, "e", f.ETags) {
		return false
	}
	if len(f.PTags) > 0 && !hasTagValue(e.Tags, "p", f.PTags) {
		return false
	}
	return true
}

// Matches reports whether the event passes at least one filter in the set.
// An empty set never matches.
func (fs FilterSet) Matches(e Event) bool {
	for _, f := range fs {
		if f.Matches(e) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func hasTagValue(tags [][]string, name string, wanted []string) bool {
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != name {
			continue
		}
		if containsString(wanted, tag[1]) {
			return true
		}
	}
	return false
}
