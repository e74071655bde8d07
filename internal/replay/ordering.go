package replay

import (
	"fmt"
	"sort"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/idhash"
)

// SortEvents orders events by (seq ASC, timestamp ASC, type ASC).
func SortEvents(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// MergeEvents combines event streams into one sorted stream. The event log is
// delivered at-least-once, so identical records are collapsed; two different
// records with the same seq are an ErrInvalidOrdering.
func MergeEvents(streams ...[]*domain.Event) ([]*domain.Event, error) {
	var total int
	for _, s := range streams {
		total += len(s)
	}
	events := make([]*domain.Event, 0, total)
	for _, s := range streams {
		for _, e := range s {
			if e != nil {
				events = append(events, e)
			}
		}
	}
	SortEvents(events)

	out := events[:0]
	var prevID string
	for i, e := range events {
		id := idhash.EventID(e)
		if i > 0 && e.Seq == out[len(out)-1].Seq {
			if id == prevID {
				continue
			}
			return nil, fmt.Errorf("%w: seq %d recorded twice", ErrInvalidOrdering, e.Seq)
		}
		out = append(out, e)
		prevID = id
	}
	return out, nil
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareEvents(a, b *domain.Event) int {
	if a.Seq != b.Seq {
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return 0
}
