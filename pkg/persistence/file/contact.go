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
	"sync"

	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// ContactRepository stores contacts as JSON files under
// <root>/contacts/<run-id>/. The single mutex makes SaveContactIf's
// read-compare-write atomic within this process.
type ContactRepository struct {
	root string
	mu   *sync.Mutex
}

func (cr *ContactRepository) dir(runID string) string {
	return path.Join(cr.root, "contacts", runID)
}

func (cr *ContactRepository) ContactsByRun(_ context.Context, runID string) ([]*models.Contact, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	return cr.contactsByRunLocked(runID)
}

func (cr *ContactRepository) contactsByRunLocked(runID string) ([]*models.Contact, error) {
	jsonFiles, err := fs.Glob(os.DirFS(cr.dir(runID)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list contact files: %w", err)
	}

	contacts := make([]*models.Contact, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		contact, err := cr.readContact(path.Join(cr.dir(runID), file))
		if err != nil {
			return nil, err
		}

		contacts = append(contacts, contact)
	}

	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })

	return contacts, nil
}

func (cr *ContactRepository) ContactByID(_ context.Context, id string) (*models.Contact, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	return cr.contactByIDLocked(id)
}

func (cr *ContactRepository) contactByIDLocked(id string) (*models.Contact, error) {
	matches, err := fs.Glob(os.DirFS(path.Join(cr.root, "contacts")), "*/"+id+".json")
	if err != nil {
		return nil, fmt.Errorf("failed to locate contact %s: %w", id, err)
	}

	if len(matches) == 0 {
		return nil, persistence.ErrContactNotFound
	}

	return cr.readContact(path.Join(cr.root, "contacts", matches[0]))
}

func (cr *ContactRepository) readContact(filePath string) (*models.Contact, error) {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to read contact file %s: %w", filePath, err)
	}

	var contact models.Contact

	if err := json.Unmarshal(body, &contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact file %s: %w", filePath, err)
	}

	return &contact, nil
}

func (cr *ContactRepository) SaveContact(_ context.Context, contact *models.Contact) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	return cr.writeContact(contact)
}

func (cr *ContactRepository) SaveContactIf(_ context.Context, contact *models.Contact, prevState models.ContactState, prevCursor string) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	stored, err := cr.readContact(path.Join(cr.dir(contact.RunID), contact.ID+".json"))
	if err != nil {
		return err
	}

	if stored.State != prevState || stored.Cursor != prevCursor {
		return persistence.ErrContactConflict
	}

	return cr.writeContact(contact)
}

func (cr *ContactRepository) writeContact(contact *models.Contact) error {
	if err := os.MkdirAll(cr.dir(contact.RunID), 0750); err != nil {
		return fmt.Errorf("failed to create contacts directory: %w", err)
	}

	data, err := json.MarshalIndent(contact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal contact %s: %w", contact.ID, err)
	}

	return os.WriteFile(path.Join(cr.dir(contact.RunID), contact.ID+".json"), data, 0600)
}

// FindWaitingContacts scans contacts of non-terminal runs for waiting state
// matches on phone. Runs are visited in lexical id order so multi-run
// ambiguity resolves deterministically.
func (cr *ContactRepository) FindWaitingContacts(_ context.Context, phone string) ([]persistence.WaitingContact, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	runRepo := &RunRepository{root: cr.root}

	runDirs, err := fs.Glob(os.DirFS(path.Join(cr.root, "contacts")), "*")
	if err != nil {
		return nil, fmt.Errorf("failed to list contact directories: %w", err)
	}

	sort.Strings(runDirs)

	matches := make([]persistence.WaitingContact, 0)

	for _, runID := range runDirs {
		run, err := runRepo.RunByID(context.Background(), runID)
		if err != nil || run.Status.Terminal() {
			continue
		}

		contacts, err := cr.contactsByRunLocked(runID)
		if err != nil {
			return nil, err
		}

		for _, contact := range contacts {
			if contact.Phone == phone && contact.State == models.ContactStateWaiting {
				matches = append(matches, persistence.WaitingContact{Contact: contact, Run: run})
			}
		}
	}

	return matches, nil
}
