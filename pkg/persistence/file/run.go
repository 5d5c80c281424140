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

// RunRepository stores run records as JSON files under <root>/runs.
type RunRepository struct {
	root string
}

func (rr *RunRepository) dir() string {
	return path.Join(rr.root, "runs")
}

func (rr *RunRepository) Runs(ctx context.Context, status models.RunStatus) ([]*models.Run, error) {
	jsonFiles, err := fs.Glob(os.DirFS(rr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.RunByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if status == "" || run.Status == status {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	return runs, nil
}

func (rr *RunRepository) RunByID(_ context.Context, id string) (*models.Run, error) {
	filePath := filepath.Clean(path.Join(rr.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", id, err)
	}

	var run models.Run

	if err := json.Unmarshal(body, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

func (rr *RunRepository) SaveRun(_ context.Context, run *models.Run) error {
	if err := os.MkdirAll(rr.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	return os.WriteFile(path.Join(rr.dir(), run.ID+".json"), data, 0600)
}
