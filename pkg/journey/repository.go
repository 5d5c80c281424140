package journey

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// Repository wraps the journey store with creation defaults, validation and
// health checking. The API handlers talk to this, not to persistence directly.
type Repository struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewRepository(p persistence.Persistence) *Repository {
	return &Repository{
		persistence: p,
		validate:    validator.New(),
	}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Journey, error) {
	journeys, err := r.persistence.JourneyRepository().Journeys(ctx)
	if err != nil {
		return make([]*models.Journey, 0), err
	}

	return journeys, nil
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Journey, error) {
	return r.persistence.JourneyRepository().JourneyByID(ctx, id)
}

func (r *Repository) Create(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	if journey.ID == "" {
		journey.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	journey.CreatedAt = now
	journey.UpdatedAt = now

	if journey.Status == "" {
		journey.Status = models.JourneyStatusDraft
	}

	if err := r.Validate(journey); err != nil {
		return nil, err
	}

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	return journey, nil
}

func (r *Repository) Update(ctx context.Context, id string, journey *models.Journey) (*models.Journey, error) {
	existing, err := r.persistence.JourneyRepository().JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	journey.ID = id
	journey.CreatedAt = existing.CreatedAt
	journey.UpdatedAt = time.Now().UTC()

	if journey.Status == "" {
		journey.Status = existing.Status
	}

	if err := r.Validate(journey); err != nil {
		return nil, err
	}

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	return journey, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.persistence.JourneyRepository().JourneyByID(ctx, id); err != nil {
		return err
	}

	return r.persistence.JourneyRepository().DeleteJourney(ctx, id)
}

// Publish moves a journey to the published status after checking every
// node's data blob, so a launch cannot trip on malformed node data.
func (r *Repository) Publish(ctx context.Context, id string) (*models.Journey, error) {
	journey, err := r.persistence.JourneyRepository().JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, node := range journey.Nodes {
		if err := models.ValidateNodeData(node); err != nil {
			return nil, err
		}
	}

	journey.Status = models.JourneyStatusPublished
	journey.UpdatedAt = time.Now().UTC()

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	return journey, nil
}

// Validate checks the journey's struct tags and node data blobs.
func (r *Repository) Validate(journey *models.Journey) error {
	if err := r.validate.Struct(journey); err != nil {
		return err
	}

	for _, node := range journey.Nodes {
		if err := models.ValidateNodeData(node); err != nil {
			return err
		}
	}

	return nil
}
