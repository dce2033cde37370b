package graph

import (
	"sort"
	"strings"

	"github.com/paulmach/osm"
)

// TagStore maps tag-set ids to OSM tag sets. Identical sets share one id.
// The routing core only carries the ids around.
type TagStore struct {
	sets  []osm.Tags
	index map[string]uint32
}

// NewTagStore creates an empty tag store.
func NewTagStore() *TagStore {
	return &TagStore{index: make(map[string]uint32)}
}

// Add interns tags and returns the id of the set.
func (s *TagStore) Add(tags osm.Tags) uint32 {
	sorted := make(osm.Tags, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Value < sorted[j].Value
	})

	key := tagKey(sorted)
	if id, ok := s.index[key]; ok {
		return id
	}
	id := uint32(len(s.sets))
	s.sets = append(s.sets, sorted)
	s.index[key] = id
	return id
}

// Get returns the tag set with the given id.
func (s *TagStore) Get(id uint32) (osm.Tags, bool) {
	if id >= uint32(len(s.sets)) {
		return nil, false
	}
	return s.sets[id], true
}

// Len returns the number of distinct tag sets.
func (s *TagStore) Len() int { return len(s.sets) }

func tagKey(tags osm.Tags) string {
	var sb strings.Builder
	for _, t := range tags {
		sb.WriteString(t.Key)
		sb.WriteByte('=')
		sb.WriteString(t.Value)
		sb.WriteByte(0)
	}
	return sb.String()
}
