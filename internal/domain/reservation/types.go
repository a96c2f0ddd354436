package reservation

import (
	"sort"
	"time"
)

// Courts maps a court id to the upstream amenity id. The enumeration is closed.
var Courts = map[string]int{
	"1": 8,
	"2": 10,
}

// ValidCourt reports whether id names a known court.
func ValidCourt(id string) bool {
	_, ok := Courts[id]
	return ok
}

// CourtIDs returns the known court ids in order.
func CourtIDs() []string {
	ids := make([]string, 0, len(Courts))
	for id := range Courts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Request is one court booking. Start and End are absolute instants.
type Request struct {
	JobID      string
	ResourceID string
	Start      time.Time
	End        time.Time
}

func NewRequest(jobID, resourceID string, start time.Time, durationMin int) Request {
	return Request{
		JobID:      jobID,
		ResourceID: resourceID,
		Start:      start,
		End:        start.Add(time.Duration(durationMin) * time.Minute),
	}
}
