package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// ContactRepository handles contact-related database operations. The
// conditional update in SaveContactIf is the concurrency primitive the
// coordinator relies on: of two racing writers only one sees rows affected.
type ContactRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const contactColumns = `
	id
  , run_id
  , phone
  , vars
  , cursor
  , state
  , due_at
  , wait
  , last_inbound
  , history
  , updated_at
`

func (r *ContactRepository) ContactsByRun(ctx context.Context, runID string) ([]*models.Contact, error) {
	query := "SELECT " + contactColumns + " FROM contacts WHERE run_id = $1 ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	contacts := make([]*models.Contact, 0)

	for rows.Next() {
		contact, err := r.scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}

func (r *ContactRepository) ContactByID(ctx context.Context, id string) (*models.Contact, error) {
	query := "SELECT " + contactColumns + " FROM contacts WHERE id = $1"

	contact, err := r.scanContact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	return contact, nil
}

func (r *ContactRepository) SaveContact(ctx context.Context, contact *models.Contact) error {
	fields, err := marshalContactFields(contact)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contacts (id, run_id, phone, vars, cursor, state, due_at, wait, last_inbound, history, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			vars = EXCLUDED.vars,
			cursor = EXCLUDED.cursor,
			state = EXCLUDED.state,
			due_at = EXCLUDED.due_at,
			wait = EXCLUDED.wait,
			last_inbound = EXCLUDED.last_inbound,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		contact.ID, contact.RunID, contact.Phone, fields.vars, contact.Cursor,
		contact.State, contact.DueAt, fields.wait, fields.lastInbound,
		fields.history, contact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save contact %s: %w", contact.ID, err)
	}

	return nil
}

// SaveContactIf updates the contact only while its stored state and cursor
// still match the snapshot the caller advanced from.
func (r *ContactRepository) SaveContactIf(ctx context.Context, contact *models.Contact, prevState models.ContactState, prevCursor string) error {
	fields, err := marshalContactFields(contact)
	if err != nil {
		return err
	}

	query := `
		UPDATE contacts SET
			vars = $2,
			cursor = $3,
			state = $4,
			due_at = $5,
			wait = $6,
			last_inbound = $7,
			history = $8,
			updated_at = $9
		WHERE id = $1 AND state = $10 AND cursor = $11
	`

	result, err := r.db.ExecContext(ctx, query,
		contact.ID, fields.vars, contact.Cursor, contact.State, contact.DueAt,
		fields.wait, fields.lastInbound, fields.history, contact.UpdatedAt,
		prevState, prevCursor)
	if err != nil {
		return fmt.Errorf("failed to update contact %s: %w", contact.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		// Either the row is gone or another writer moved the contact first.
		var exists bool
		if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM contacts WHERE id = $1)", contact.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check contact %s: %w", contact.ID, err)
		}

		if !exists {
			return persistence.ErrContactNotFound
		}

		return persistence.ErrContactConflict
	}

	return nil
}

// FindWaitingContacts locates waiting contacts by phone in non-terminal runs,
// ordered by run id for deterministic multi-run resolution.
func (r *ContactRepository) FindWaitingContacts(ctx context.Context, phone string) ([]persistence.WaitingContact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE phone = $1
		  AND state = $2
		  AND run_id IN (SELECT id FROM runs WHERE status IN ('queued', 'running'))
		ORDER BY run_id
	`

	rows, err := r.db.QueryContext(ctx, query, phone, models.ContactStateWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting contacts: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	contacts := make([]*models.Contact, 0)

	for rows.Next() {
		contact, err := r.scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	runRepo := &RunRepository{db: r.db, logger: r.logger}
	matches := make([]persistence.WaitingContact, 0, len(contacts))

	for _, contact := range contacts {
		run, err := runRepo.RunByID(ctx, contact.RunID)
		if err != nil {
			return nil, err
		}

		matches = append(matches, persistence.WaitingContact{Contact: contact, Run: run})
	}

	return matches, nil
}

type contactJSONFields struct {
	vars        []byte
	wait        []byte
	lastInbound []byte
	history     []byte
}

func marshalContactFields(contact *models.Contact) (contactJSONFields, error) {
	var fields contactJSONFields

	var err error

	if contact.Vars != nil {
		fields.vars, err = json.Marshal(contact.Vars)
		if err != nil {
			return fields, fmt.Errorf("failed to marshal vars: %w", err)
		}
	}

	if contact.Wait != nil {
		fields.wait, err = json.Marshal(contact.Wait)
		if err != nil {
			return fields, fmt.Errorf("failed to marshal wait state: %w", err)
		}
	}

	if contact.LastInbound != nil {
		fields.lastInbound, err = json.Marshal(contact.LastInbound)
		if err != nil {
			return fields, fmt.Errorf("failed to marshal last inbound: %w", err)
		}
	}

	fields.history, err = json.Marshal(contact.History)
	if err != nil {
		return fields, fmt.Errorf("failed to marshal history: %w", err)
	}

	if contact.History == nil {
		fields.history = []byte("[]")
	}

	return fields, nil
}

func (r *ContactRepository) scanContact(row rowScanner) (*models.Contact, error) {
	var (
		contact         models.Contact
		varsJSON        []byte
		waitJSON        []byte
		lastInboundJSON []byte
		historyJSON     []byte
		dueAt           sql.NullTime
	)

	err := row.Scan(&contact.ID, &contact.RunID, &contact.Phone, &varsJSON,
		&contact.Cursor, &contact.State, &dueAt, &waitJSON, &lastInboundJSON,
		&historyJSON, &contact.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if dueAt.Valid {
		contact.DueAt = &dueAt.Time
	}

	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &contact.Vars); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vars: %w", err)
		}
	}

	if len(waitJSON) > 0 {
		if err := json.Unmarshal(waitJSON, &contact.Wait); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wait state: %w", err)
		}
	}

	if len(lastInboundJSON) > 0 {
		if err := json.Unmarshal(lastInboundJSON, &contact.LastInbound); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last inbound: %w", err)
		}
	}

	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &contact.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	return &contact, nil
}
