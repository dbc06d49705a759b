package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/db"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/run"
)

var ErrNotFinished = errors.New("run has not been stopped")

type Service struct {
	db      db.Pool
	courses run.CourseLoader
	radiusM float64
}

// NewService stores activities in q. courses and radiusM are used by Replay
// to score a stored trace against its map again.
func NewService(pool db.Pool, courses run.CourseLoader, radiusM float64) *Service {
	return &Service{db: pool, courses: courses, radiusM: radiusM}
}

// Save persists the final snapshot of a run together with its punches and
// its path in one transaction.
func (s *Service) Save(ctx context.Context, runnerID string, final run.State) (Activity, error) {
	if final.Phase != run.PhaseStopped {
		return Activity{}, ErrNotFinished
	}

	summary := final.Summary()
	a := Activity{
		ID:                 uuid.NewString(),
		RunnerID:           runnerID,
		RunID:              final.RunID,
		MapID:              final.MapID,
		MapName:            final.MapName,
		StartedAt:          final.StartedAt,
		FinishedAt:         final.StartedAt.Add(final.Elapsed),
		DurationSec:        summary.DurationSec,
		DistanceM:          summary.DistanceM,
		AverageSpeedMps:    summary.AverageSpeedMps,
		CheckpointsVisited: summary.CheckpointsVisited,
		CheckpointsTotal:   summary.CheckpointsTotal,
		Completed:          summary.Completed,
		Visits:             final.Visits,
		Path:               final.Path,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Activity{}, err
	}
	defer tx.Rollback(ctx)

	if err := insertActivity(ctx, tx, a); err != nil {
		return Activity{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Activity{}, err
	}
	return a, nil
}

func insertActivity(ctx context.Context, tx db.Querier, a Activity) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO activities (id, runner_id, run_id, map_id, map_name, started_at, finished_at,
		                        duration_sec, distance_m, average_speed_mps,
		                        checkpoints_visited, checkpoints_total, completed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, a.ID, a.RunnerID, a.RunID, a.MapID, a.MapName, a.StartedAt, a.FinishedAt,
		a.DurationSec, a.DistanceM, a.AverageSpeedMps,
		a.CheckpointsVisited, a.CheckpointsTotal, a.Completed)
	if err != nil {
		return err
	}

	for _, v := range a.Visits {
		_, err := tx.Exec(ctx, `
			INSERT INTO activity_visits (activity_id, idx, checkpoint_id, name, location, visited_at)
			VALUES ($1,$2,$3,$4, ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography, $7)
		`, a.ID, v.Index, v.CheckpointID, v.Name, v.Lng, v.Lat, v.VisitedAt)
		if err != nil {
			return err
		}
	}

	if len(a.Path) > 0 {
		lngs := make([]float64, len(a.Path))
		lats := make([]float64, len(a.Path))
		times := make([]time.Time, len(a.Path))
		for i, p := range a.Path {
			lngs[i], lats[i], times[i] = p.Lng, p.Lat, p.Time
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO activity_path (activity_id, seq, location, recorded_at)
			SELECT $1, p.ord, ST_SetSRID(ST_MakePoint(p.lng, p.lat), 4326)::geography, p.t
			FROM unnest($2::float8[], $3::float8[], $4::timestamptz[]) WITH ORDINALITY AS p(lng, lat, t, ord)
		`, a.ID, lngs, lats, times)
		if err != nil {
			return err
		}
	}
	return nil
}

const activityColumns = `id, runner_id, run_id, map_id, map_name, started_at, finished_at,
	duration_sec, distance_m, average_speed_mps, checkpoints_visited, checkpoints_total, completed`

func scanActivity(row interface{ Scan(...any) error }) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.RunnerID, &a.RunID, &a.MapID, &a.MapName, &a.StartedAt, &a.FinishedAt,
		&a.DurationSec, &a.DistanceM, &a.AverageSpeedMps, &a.CheckpointsVisited, &a.CheckpointsTotal, &a.Completed)
	return a, err
}

// List returns the runner's activities, newest first, without visits or path.
func (s *Service) List(ctx context.Context, runnerID string) ([]Activity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities WHERE runner_id=$1
		ORDER BY started_at DESC
	`, runnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *Service) Get(ctx context.Context, id, runnerID string) (Activity, error) {
	a, err := scanActivity(s.db.QueryRow(ctx, `
		SELECT `+activityColumns+`
		FROM activities WHERE id=$1 AND runner_id=$2
	`, id, runnerID))
	if err != nil {
		return Activity{}, err
	}

	if a.Visits, err = s.visits(ctx, id); err != nil {
		return Activity{}, err
	}
	if a.Path, err = s.path(ctx, id); err != nil {
		return Activity{}, err
	}
	return a, nil
}

func (s *Service) visits(ctx context.Context, activityID string) ([]checkpoint.Visit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT idx, checkpoint_id, name, ST_Y(location::geometry), ST_X(location::geometry), visited_at
		FROM activity_visits WHERE activity_id=$1
		ORDER BY idx
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []checkpoint.Visit{}
	for rows.Next() {
		var v checkpoint.Visit
		if err := rows.Scan(&v.Index, &v.CheckpointID, &v.Name, &v.Lat, &v.Lng, &v.VisitedAt); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (s *Service) path(ctx context.Context, activityID string) ([]checkpoint.PathPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ST_Y(location::geometry), ST_X(location::geometry), recorded_at
		FROM activity_path WHERE activity_id=$1
		ORDER BY seq
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	path := []checkpoint.PathPoint{}
	for rows.Next() {
		var p checkpoint.PathPoint
		if err := rows.Scan(&p.Lat, &p.Lng, &p.Time); err != nil {
			return nil, err
		}
		path = append(path, p)
	}
	return path, rows.Err()
}

// Replay scores the stored path of an activity against the current version
// of its map.
func (s *Service) Replay(ctx context.Context, id, runnerID string) ([]checkpoint.Visit, error) {
	a, err := s.Get(ctx, id, runnerID)
	if err != nil {
		return nil, err
	}
	if s.courses == nil || a.MapID == "" {
		return a.Visits, nil
	}
	course, err := s.courses(ctx, a.MapID)
	if err != nil {
		return nil, err
	}
	return checkpoint.Replay(a.Path, course.Checkpoints, s.radiusM), nil
}
