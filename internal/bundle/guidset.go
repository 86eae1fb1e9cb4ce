package bundle

import "sort"

// GUIDSet is a set of bundle GUIDs.
type GUIDSet map[string]struct{}

// NewGUIDSet returns a new GUIDSet, populated with guids.
func NewGUIDSet(guids ...string) GUIDSet {
	m := make(GUIDSet)
	for _, guid := range guids {
		m[guid] = struct{}{}
	}

	return m
}

// Has returns true iff guid is contained in the set.
func (s GUIDSet) Has(guid string) bool {
	_, ok := s[guid]
	return ok
}

// Insert adds guid to the set.
func (s GUIDSet) Insert(guid string) {
	s[guid] = struct{}{}
}

// Delete removes guid from the set.
func (s GUIDSet) Delete(guid string) {
	delete(s, guid)
}

// List returns a sorted slice of all GUIDs in the set.
func (s GUIDSet) List() []string {
	list := make([]string, 0, len(s))
	for guid := range s {
		list = append(list, guid)
	}

	sort.Strings(list)
	return list
}
