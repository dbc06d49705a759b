package course

import (
	"time"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
)

// Map is a stored orienteering course. Checkpoints are kept in course order.
type Map struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	CreatedBy   string                  `json:"created_by"`
	CreatedAt   time.Time               `json:"created_at"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
}

type CreateMapRequest struct {
	Name        string                  `json:"name" validate:"required"`
	Description string                  `json:"description"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints" validate:"required,min=1,dive"`
}
