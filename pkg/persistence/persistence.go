// Package persistence provides the data storage abstraction for journeys,
// runs and contacts.
package persistence

import (
	"context"

	"github.com/jornada-io/jornada/pkg/models"
)

// Persistence is the storage entry point handed to the coordinator and the
// API. Implementations must make SaveContactIf a conditional update: it is
// the mechanism that keeps two racing ticks from advancing the same contact
// twice.
type Persistence interface {
	JourneyRepository() JourneyRepository
	RunRepository() RunRepository
	ContactRepository() ContactRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// JourneyRepository stores journey definitions.
type JourneyRepository interface {
	Journeys(ctx context.Context) ([]*models.Journey, error)
	JourneyByID(ctx context.Context, id string) (*models.Journey, error)
	SaveJourney(ctx context.Context, journey *models.Journey) error
	DeleteJourney(ctx context.Context, id string) error
}

// RunRepository stores run records.
type RunRepository interface {
	// Runs lists runs, filtered by status when status is non-empty.
	Runs(ctx context.Context, status models.RunStatus) ([]*models.Run, error)
	RunByID(ctx context.Context, id string) (*models.Run, error)
	SaveRun(ctx context.Context, run *models.Run) error
}

// ContactRepository stores run-scoped contacts.
type ContactRepository interface {
	ContactsByRun(ctx context.Context, runID string) ([]*models.Contact, error)
	ContactByID(ctx context.Context, id string) (*models.Contact, error)

	// SaveContact writes a contact unconditionally. Used for seeding at
	// launch; tick-path writes go through SaveContactIf.
	SaveContact(ctx context.Context, contact *models.Contact) error

	// SaveContactIf writes the contact only if its stored state and cursor
	// still equal prevState/prevCursor, returning ErrContactConflict
	// otherwise. Losing writers must discard their result.
	SaveContactIf(ctx context.Context, contact *models.Contact, prevState models.ContactState, prevCursor string) error

	// FindWaitingContacts locates contacts in the waiting state by phone
	// across running runs, in stable run order. Callers take the first match
	// and warn when more than one run is holding the same phone.
	FindWaitingContacts(ctx context.Context, phone string) ([]WaitingContact, error)
}

// WaitingContact pairs a waiting contact with its run for inbound dispatch.
type WaitingContact struct {
	Contact *models.Contact
	Run     *models.Run
}
