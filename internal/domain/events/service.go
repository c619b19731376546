package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/domain/validation"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// MaxCapacity bounds the seats a single event may offer.
const MaxCapacity = 100000

// UserDirectory resolves user ids for event creation.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
}

// CreateInput is the payload for a new event.
type CreateInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Date        string   `json:"date" validate:"required"`
	Location    string   `json:"location" validate:"required,max=300"`
	Capacity    *int     `json:"capacity" validate:"required"`
	Attendees   []string `json:"attendees"`
}

// UpdateInput changes the fields that are set.
type UpdateInput struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Date        *string `json:"date,omitempty"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=300"`
	Capacity    *int    `json:"capacity,omitempty"`
}

// Service owns the event lifecycle and seat bookkeeping.
type Service struct {
	repo      Repository
	users     UserDirectory
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewService(repo Repository, directory UserDirectory, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     directory,
		validator: validation.New(),
		logger:    logger.With().Str("component", "events").Logger(),
	}
}

// Create stores a new event owned by creatorID and seats the proposed
// attendees that are real users. Nothing is persisted when the attendees do
// not fit.
func (s *Service) Create(ctx context.Context, creatorID string, input CreateInput) (*EventDetail, error) {
	if err := validation.Struct(s.validator, input); err != nil {
		return nil, err
	}
	capacity, err := checkCapacity(input.Capacity)
	if err != nil {
		return nil, err
	}
	date, err := ParseDate(input.Date)
	if err != nil {
		return nil, validation.Error{Field: "date", Message: "must be a date"}
	}
	title := sanitize.Title(input.Title)
	location := sanitize.Text(input.Location)
	if title == "" {
		return nil, validation.Error{Field: "title", Message: "is required"}
	}
	if location == "" {
		return nil, validation.Error{Field: "location", Message: "is required"}
	}

	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load creator: %w", err)
	}

	if err := s.ensureTitleAvailable(ctx, creatorID, title, ""); err != nil {
		return nil, err
	}

	candidates := normalizeIDs(input.Attendees)
	existing, err := s.users.ExistingIDs(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to check attendees: %w", err)
	}
	rec, err := Reconcile(candidates, capacity, knownSet(existing))
	if err != nil {
		return nil, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate event id: %w", err)
	}

	var created *Event
	err = s.withTx(ctx, func(tx Repository) error {
		created, err = tx.CreateEvent(ctx, CreateParams{
			ID:              id,
			Title:           title,
			Description:     sanitize.HTML(input.Description),
			Date:            date,
			Location:        location,
			TotalCapacity:   capacity,
			RegisteredCount: len(rec.ValidAttendees),
			CreatedBy:       creatorID,
		})
		if err != nil {
			return err
		}
		return tx.CreateAttendees(ctx, attendeeParams(id, rec.ValidAttendees))
	})
	if err != nil {
		if IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	attendees, err := s.repo.ListAttendees(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}

	s.logger.Info().
		Str("event_id", id).
		Str("created_by", creatorID).
		Int("capacity", capacity).
		Int("attendees", len(rec.ValidAttendees)).
		Int("dropped_attendees", len(candidates)-len(rec.ValidAttendees)).
		Msg("event created")

	return &EventDetail{Event: created, Attendees: attendees}, nil
}

// Get returns an event with its attendees.
func (s *Service) Get(ctx context.Context, id string) (*EventDetail, error) {
	event, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	attendees, err := s.repo.ListAttendees(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	return &EventDetail{Event: event, Attendees: attendees}, nil
}

// List returns one page of events matching filters.
func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	result, err := s.repo.ListEvents(ctx, filters)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list events: %w", err)
	}
	return result, nil
}

// Update changes an event on behalf of its creator.
func (s *Service) Update(ctx context.Context, actorID, id string, input UpdateInput) (*Event, error) {
	event, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != actorID {
		return nil, ErrForbidden
	}
	if err := validation.Struct(s.validator, input); err != nil {
		return nil, err
	}

	params := UpdateParams{}
	if input.Title != nil {
		title := sanitize.Title(*input.Title)
		if title == "" {
			return nil, validation.Error{Field: "title", Message: "must not be empty"}
		}
		params.Title = &title
	}
	if input.Description != nil {
		description := sanitize.HTML(*input.Description)
		params.Description = &description
	}
	if input.Location != nil {
		location := sanitize.Text(*input.Location)
		if location == "" {
			return nil, validation.Error{Field: "location", Message: "must not be empty"}
		}
		params.Location = &location
	}
	if input.Date != nil {
		date, err := ParseDate(*input.Date)
		if err != nil {
			return nil, validation.Error{Field: "date", Message: "must be a date"}
		}
		params.Date = &date
	}
	if input.Capacity != nil {
		capacity, err := checkCapacity(input.Capacity)
		if err != nil {
			return nil, err
		}
		params.TotalCapacity = &capacity
	}

	if params.Title != nil && *params.Title != event.Title {
		if err := s.ensureTitleAvailable(ctx, event.CreatedBy, *params.Title, event.ID); err != nil {
			return nil, err
		}
	}
	if params.TotalCapacity != nil && *params.TotalCapacity < event.RegisteredCount {
		return nil, &CapacityError{Attendees: event.RegisteredCount, Capacity: *params.TotalCapacity}
	}

	updated, err := s.repo.UpdateEvent(ctx, id, params)
	if err != nil {
		if errors.Is(err, ErrNotFound) || IsConflict(err) || IsCapacity(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	s.logger.Info().Str("event_id", id).Str("updated_by", actorID).Msg("event updated")
	return updated, nil
}

// Delete removes an event and every attendee record for it in one
// transaction.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	event, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if event.CreatedBy != actorID {
		return ErrForbidden
	}

	var removed int64
	err = s.withTx(ctx, func(tx Repository) error {
		removed, err = tx.DeleteAttendeesByEvent(ctx, id)
		if err != nil {
			return err
		}
		return tx.DeleteEvent(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}

	s.logger.Info().
		Str("event_id", id).
		Str("deleted_by", actorID).
		Int64("attendees_removed", removed).
		Msg("event deleted")
	return nil
}

// ensureTitleAvailable rejects a title the creator already uses on another
// event. exceptID is the event being renamed, if any.
func (s *Service) ensureTitleAvailable(ctx context.Context, creatorID, title, exceptID string) error {
	existing, err := s.repo.FindEventByTitle(ctx, creatorID, title)
	switch {
	case err == nil && existing.ID != exceptID:
		return ErrDuplicateTitle
	case err == nil, errors.Is(err, ErrNotFound):
		return nil
	default:
		return fmt.Errorf("failed to check title: %w", err)
	}
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Service) withTx(ctx context.Context, fn func(tx Repository) error) error {
	txRepo, tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func checkCapacity(capacity *int) (int, error) {
	if capacity == nil {
		return 0, validation.Error{Field: "capacity", Message: "is required"}
	}
	if *capacity < 0 || *capacity > MaxCapacity {
		return 0, validation.Error{Field: "capacity", Message: fmt.Sprintf("must be between 0 and %d", MaxCapacity)}
	}
	return *capacity, nil
}

// normalizeIDs upper-cases candidate ids and drops ones that cannot be ids.
func normalizeIDs(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		id, err := ids.Normalize(c)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func attendeeParams(eventID string, userIDs []string) []AttendeeParams {
	params := make([]AttendeeParams, 0, len(userIDs))
	for _, userID := range userIDs {
		params = append(params, AttendeeParams{
			ID:      ids.MustNewULID(),
			EventID: eventID,
			UserID:  userID,
		})
	}
	return params
}
