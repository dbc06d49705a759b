package activity

import (
	"time"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
)

// Activity is a finished run as stored for its runner.
type Activity struct {
	ID                 string    `json:"id"`
	RunnerID           string    `json:"runner_id"`
	RunID              string    `json:"run_id"`
	MapID              string    `json:"map_id"`
	MapName            string    `json:"map_name"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	DurationSec        int64     `json:"duration_sec"`
	DistanceM          float64   `json:"distance_m"`
	AverageSpeedMps    float64   `json:"average_speed_mps"`
	CheckpointsVisited int       `json:"checkpoints_visited"`
	CheckpointsTotal   int       `json:"checkpoints_total"`
	Completed          bool      `json:"completed"`

	Visits []checkpoint.Visit     `json:"visits,omitempty"`
	Path   []checkpoint.PathPoint `json:"path,omitempty"`
}
