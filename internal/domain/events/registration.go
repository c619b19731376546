package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Register gives userID a seat at eventID and queues a confirmation.
//
// The seat is taken with a conditional increment, so concurrent
// registrations can never push the registered count past the total.
func (s *Service) Register(ctx context.Context, eventID, userID string) (attendee *Attendee, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "events.Register",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() { telemetry.EndSpan(span, err) }()

	return s.register(ctx, eventID, userID)
}

func (s *Service) register(ctx context.Context, eventID, userID string) (*Attendee, error) {
	var attendee *Attendee
	var title string

	err := s.withTx(ctx, func(tx Repository) error {
		event, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		title = event.Title
		if event.IsFull() {
			return ErrCapacityFull
		}

		if _, err := tx.FindAttendee(ctx, eventID, userID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, ErrNotRegistered) {
			return fmt.Errorf("check registration: %w", err)
		}

		attendeeID, err := ids.NewULID()
		if err != nil {
			return fmt.Errorf("generate attendee id: %w", err)
		}
		attendee, err = tx.CreateAttendee(ctx, AttendeeParams{
			ID:      attendeeID,
			EventID: eventID,
			UserID:  userID,
		})
		if err != nil {
			return err
		}

		taken, err := tx.IncrementRegistered(ctx, eventID)
		if err != nil {
			return fmt.Errorf("take seat: %w", err)
		}
		if !taken {
			// Another registration took the last seat after we read the event.
			return ErrCapacityFull
		}

		return tx.EnqueueNotification(ctx, Notification{
			UserID:     userID,
			EventID:    eventID,
			EventTitle: event.Title,
			Kind:       NotificationRegistered,
		})
	})
	if err != nil {
		if isRegistrationError(err) {
			s.logger.Debug().Err(err).Str("event_id", eventID).Str("user_id", userID).Msg("registration rejected")
			return nil, err
		}
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	s.logger.Info().
		Str("event_id", eventID).
		Str("user_id", userID).
		Str("title", title).
		Msg("user registered for event")
	return attendee, nil
}

// Cancel releases userID's seat at eventID and queues a confirmation.
func (s *Service) Cancel(ctx context.Context, eventID, userID string) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "events.Cancel",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() { telemetry.EndSpan(span, err) }()

	return s.cancel(ctx, eventID, userID)
}

func (s *Service) cancel(ctx context.Context, eventID, userID string) error {
	err := s.withTx(ctx, func(tx Repository) error {
		event, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}

		removed, err := tx.DeleteAttendee(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("remove attendee: %w", err)
		}
		if !removed {
			return ErrNotRegistered
		}

		released, err := tx.DecrementRegistered(ctx, eventID)
		if err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
		if !released {
			return fmt.Errorf("event %s has an attendee but no registered seats", eventID)
		}

		return tx.EnqueueNotification(ctx, Notification{
			UserID:     userID,
			EventID:    eventID,
			EventTitle: event.Title,
			Kind:       NotificationCancelled,
		})
	})
	if err != nil {
		if isRegistrationError(err) {
			return err
		}
		return fmt.Errorf("failed to cancel registration: %w", err)
	}

	s.logger.Info().Str("event_id", eventID).Str("user_id", userID).Msg("registration cancelled")
	return nil
}

func isRegistrationError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCapacityFull) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrNotRegistered)
}
