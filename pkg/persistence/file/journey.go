package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// JourneyRepository stores journey definitions as JSON files under
// <root>/journeys.
type JourneyRepository struct {
	root string
}

func (jr *JourneyRepository) dir() string {
	return path.Join(jr.root, "journeys")
}

func (jr *JourneyRepository) Journeys(ctx context.Context) ([]*models.Journey, error) {
	jsonFiles, err := fs.Glob(os.DirFS(jr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list journey files: %w", err)
	}

	journeys := make([]*models.Journey, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		journey, err := jr.JourneyByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		journeys = append(journeys, journey)
	}

	sort.Slice(journeys, func(i, j int) bool {
		return journeys[i].CreatedAt.Before(journeys[j].CreatedAt)
	})

	return journeys, nil
}

func (jr *JourneyRepository) JourneyByID(_ context.Context, id string) (*models.Journey, error) {
	filePath := filepath.Clean(path.Join(jr.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrJourneyNotFound
		}

		return nil, fmt.Errorf("failed to fetch journey %s: %w", id, err)
	}

	var journey models.Journey

	if err := json.Unmarshal(body, &journey); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journey %s: %w", id, err)
	}

	return &journey, nil
}

func (jr *JourneyRepository) SaveJourney(_ context.Context, journey *models.Journey) error {
	if err := os.MkdirAll(jr.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create journeys directory: %w", err)
	}

	data, err := json.MarshalIndent(journey, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journey %s: %w", journey.ID, err)
	}

	return os.WriteFile(path.Join(jr.dir(), journey.ID+".json"), data, 0600)
}

func (jr *JourneyRepository) DeleteJourney(_ context.Context, id string) error {
	err := os.Remove(path.Join(jr.dir(), id+".json"))
	if err != nil && os.IsNotExist(err) {
		return persistence.ErrJourneyNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to delete journey %s: %w", id, err)
	}

	return nil
}
