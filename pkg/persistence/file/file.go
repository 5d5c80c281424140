// Package file provides file-based persistence for journeys, runs and
// contacts. It is meant for development and tests; the conditional contact
// write is guarded by a process-level lock, so it is safe within a single
// process only.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/jornada-io/jornada/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system. Each record is one JSON file.
type Persistence struct {
	root        string
	journeyRepo *JourneyRepository
	runRepo     *RunRepository
	contactRepo *ContactRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A file:// prefix is stripped so database URLs can be passed straight in.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	// Contacts share one lock: SaveContactIf must read-compare-write
	// atomically with respect to other writers in this process.
	contactMu := &sync.Mutex{}

	return &Persistence{
		root:        cleanRoot,
		journeyRepo: &JourneyRepository{root: cleanRoot},
		runRepo:     &RunRepository{root: cleanRoot},
		contactRepo: &ContactRepository{root: cleanRoot, mu: contactMu},
	}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) JourneyRepository() persistence.JourneyRepository {
	return fp.journeyRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ContactRepository() persistence.ContactRepository {
	return fp.contactRepo
}
