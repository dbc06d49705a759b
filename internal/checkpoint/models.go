package checkpoint

import (
	"time"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
)

// Checkpoint is one control of a course. Index mirrors its position in the
// course slice.
type Checkpoint struct {
	ID    string  `json:"id" validate:"required"`
	Name  string  `json:"name"`
	Lat   float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng   float64 `json:"lng" validate:"gte=-180,lte=180"`
	Index int     `json:"index"`
}

// Progress is the visited prefix of a course plus the index expected next.
type Progress struct {
	Visited   []int `json:"visited"`
	NextIndex int   `json:"next_index"`
}

// Reached is emitted once per checkpoint, in course order.
type Reached struct {
	Index      int        `json:"index"`
	Checkpoint Checkpoint `json:"checkpoint"`
	At         time.Time  `json:"at"`
}

// Visit records where and when a control was punched.
type Visit struct {
	Index        int       `json:"index"`
	CheckpointID string    `json:"checkpoint_id"`
	Name         string    `json:"name"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	VisitedAt    time.Time `json:"visited_at"`
}

type PathPoint struct {
	Lat  float64   `json:"lat"`
	Lng  float64   `json:"lng"`
	Time time.Time `json:"time"`
}

type Result struct {
	Progress       Progress
	Event          *Reached
	DistanceDeltaM float64
}

func (r Reached) Visit() Visit {
	return Visit{
		Index:        r.Index,
		CheckpointID: r.Checkpoint.ID,
		Name:         r.Checkpoint.Name,
		Lat:          r.Checkpoint.Lat,
		Lng:          r.Checkpoint.Lng,
		VisitedAt:    r.At,
	}
}

func PathPointOf(fix location.SmoothedFix) PathPoint {
	return PathPoint{Lat: fix.Lat, Lng: fix.Lng, Time: fix.Time}
}

// Normalize returns a copy of cps whose Index fields follow slice order.
func Normalize(cps []Checkpoint) []Checkpoint {
	out := make([]Checkpoint, len(cps))
	for i, cp := range cps {
		cp.Index = i
		out[i] = cp
	}
	return out
}
