package run

import (
	"time"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseActive  Phase = "active"
	PhaseStopped Phase = "stopped"
)

// Course is what a run is started with. Checkpoint order is the course order.
type Course struct {
	MapID       string                  `json:"map_id"`
	MapName     string                  `json:"map_name"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints" validate:"dive"`
}

// State is one published snapshot of the engine. Snapshots are shared between
// all observers and must be treated as read-only.
type State struct {
	// Epoch identifies the engine instance; Seq grows with every snapshot it
	// publishes. Together they order snapshots across engine restarts.
	Epoch int64  `json:"epoch"`
	Seq   uint64 `json:"seq"`

	Phase     Phase         `json:"phase"`
	RunID     string        `json:"run_id,omitempty"`
	MapID     string        `json:"map_id,omitempty"`
	MapName   string        `json:"map_name,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	DistanceM float64       `json:"distance_m"`

	Position    *location.SmoothedFix   `json:"position,omitempty"`
	Progress    checkpoint.Progress     `json:"progress"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	Visits      []checkpoint.Visit      `json:"visits"`
	Path        []checkpoint.PathPoint  `json:"path"`

	// Abandoned marks a run that ended because the engine shut down rather
	// than through Stop.
	Abandoned bool `json:"abandoned,omitempty"`

	// LastEvent is set only on the snapshot produced by the fix that reached
	// a checkpoint.
	LastEvent *checkpoint.Reached `json:"last_event,omitempty"`
}

type Summary struct {
	RunID              string  `json:"run_id"`
	DistanceM          float64 `json:"distance_m"`
	DurationSec        int64   `json:"duration_sec"`
	AverageSpeedMps    float64 `json:"average_speed_mps"`
	CheckpointsVisited int     `json:"checkpoints_visited"`
	CheckpointsTotal   int     `json:"checkpoints_total"`
	Completed          bool    `json:"completed"`
}

func (s State) Active() bool {
	return s.Phase == PhaseActive
}

// Completed reports whether every checkpoint of the course was reached.
func (s State) Completed() bool {
	return len(s.Checkpoints) > 0 && s.Progress.NextIndex >= len(s.Checkpoints)
}

func (s State) Summary() Summary {
	avg := 0.0
	if secs := s.Elapsed.Seconds(); secs > 0 {
		avg = s.DistanceM / secs
	}
	return Summary{
		RunID:              s.RunID,
		DistanceM:          s.DistanceM,
		DurationSec:        int64(s.Elapsed.Seconds()),
		AverageSpeedMps:    avg,
		CheckpointsVisited: len(s.Progress.Visited),
		CheckpointsTotal:   len(s.Checkpoints),
		Completed:          s.Completed(),
	}
}

// newer orders snapshots coming from possibly different engine instances.
func newer(next, last State) bool {
	if next.Epoch != last.Epoch {
		return next.Epoch > last.Epoch
	}
	return next.Seq > last.Seq
}
