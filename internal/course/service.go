package course

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/db"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/run"
)

var ErrNotOwner = errors.New("map belongs to another runner")

type Service struct {
	db       db.Querier
	validate *validator.Validate
}

func NewService(db db.Querier) *Service {
	return &Service{db: db, validate: validator.New()}
}

func (s *Service) CreateMap(ctx context.Context, ownerID string, req CreateMapRequest) (Map, error) {
	if err := s.validate.Struct(req); err != nil {
		return Map{}, err
	}

	m := Map{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   ownerID,
		Checkpoints: checkpoint.Normalize(req.Checkpoints),
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO maps (id, name, description, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, m.ID, m.Name, m.Description, m.CreatedBy)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return Map{}, err
	}

	for _, cp := range m.Checkpoints {
		_, err := s.db.Exec(ctx, `
			INSERT INTO control_points (id, map_id, idx, name, location)
			VALUES ($1,$2,$3,$4, ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography)
		`, cp.ID, m.ID, cp.Index, cp.Name, cp.Lng, cp.Lat)
		if err != nil {
			return Map{}, err
		}
	}
	return m, nil
}

func (s *Service) GetMap(ctx context.Context, id string) (Map, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM maps WHERE id=$1
	`, id)
	var m Map
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &m.CreatedBy, &m.CreatedAt); err != nil {
		return Map{}, err
	}

	cps, err := s.checkpoints(ctx, id)
	if err != nil {
		return Map{}, err
	}
	m.Checkpoints = cps
	return m, nil
}

func (s *Service) checkpoints(ctx context.Context, mapID string) ([]checkpoint.Checkpoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, idx, name, ST_Y(location::geometry), ST_X(location::geometry)
		FROM control_points WHERE map_id=$1
		ORDER BY idx
	`, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cps := []checkpoint.Checkpoint{}
	for rows.Next() {
		var cp checkpoint.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.Index, &cp.Name, &cp.Lat, &cp.Lng); err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// ListMaps returns the maps created by ownerID, newest first, without
// their checkpoints.
func (s *Service) ListMaps(ctx context.Context, ownerID string) ([]Map, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM maps WHERE created_by=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaps(rows)
}

// Nearby finds maps whose start control lies within radiusM of a point.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusM float64) ([]Map, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.name, m.description, m.created_by, m.created_at
		FROM maps m
		JOIN control_points cp ON cp.map_id = m.id AND cp.idx = 0
		WHERE ST_DWithin(cp.location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY m.created_at DESC
	`, lng, lat, radiusM)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaps(rows)
}

func scanMaps(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]Map, error) {
	maps := []Map{}
	for rows.Next() {
		var m Map
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (s *Service) DeleteMap(ctx context.Context, id, ownerID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM maps WHERE id=$1 AND created_by=$2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOwner
	}
	return nil
}

// Course loads a stored map in the shape the run engine starts from.
func (s *Service) Course(ctx context.Context, mapID string) (run.Course, error) {
	m, err := s.GetMap(ctx, mapID)
	if err != nil {
		return run.Course{}, err
	}
	return run.Course{MapID: m.ID, MapName: m.Name, Checkpoints: m.Checkpoints}, nil
}
