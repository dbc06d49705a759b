package checkpoint

import (
	"sort"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/shared/geo"
)

const DefaultArrivalRadiusM = 10.0

// Tracker decides whether the next expected control has been reached.
// Controls are only ever credited in course order and at most one per fix.
type Tracker struct {
	arrivalRadiusM float64
}

func NewTracker(arrivalRadiusM float64) *Tracker {
	if arrivalRadiusM <= 0 {
		arrivalRadiusM = DefaultArrivalRadiusM
	}
	return &Tracker{arrivalRadiusM: arrivalRadiusM}
}

func (t *Tracker) ArrivalRadiusM() float64 {
	return t.arrivalRadiusM
}

// Update consumes one smoothed fix. prev is the previously accepted fix of
// the run, nil for the first one.
func (t *Tracker) Update(prev *location.SmoothedFix, fix location.SmoothedFix, progress Progress, cps []Checkpoint) Result {
	res := Result{Progress: progress}
	if prev != nil {
		res.DistanceDeltaM = geo.DistanceM(prev.Lat, prev.Lng, fix.Lat, fix.Lng)
	}

	if progress.NextIndex < 0 || progress.NextIndex >= len(cps) {
		return res
	}

	target := cps[progress.NextIndex]
	if geo.DistanceM(fix.Lat, fix.Lng, target.Lat, target.Lng) > t.arrivalRadiusM {
		return res
	}

	visited := make([]int, len(progress.Visited), len(progress.Visited)+1)
	copy(visited, progress.Visited)
	res.Progress = Progress{
		Visited:   append(visited, progress.NextIndex),
		NextIndex: progress.NextIndex + 1,
	}
	res.Event = &Reached{Index: progress.NextIndex, Checkpoint: target, At: fix.Time}
	return res
}

// Replay re-derives visits from a recorded trace using the same sequential
// rule as a live run.
func Replay(path []PathPoint, cps []Checkpoint, arrivalRadiusM float64) []Visit {
	if len(path) == 0 || len(cps) == 0 {
		return nil
	}

	sorted := make([]PathPoint, len(path))
	copy(sorted, path)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	tracker := NewTracker(arrivalRadiusM)
	var progress Progress
	var visits []Visit
	for _, p := range sorted {
		if progress.NextIndex >= len(cps) {
			break
		}
		res := tracker.Update(nil, location.SmoothedFix{Lat: p.Lat, Lng: p.Lng, Time: p.Time}, progress, cps)
		progress = res.Progress
		if res.Event != nil {
			visits = append(visits, res.Event.Visit())
		}
	}
	return visits
}
