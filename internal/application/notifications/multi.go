package notifications

import (
	"context"
	"errors"

	"coursecert-backend/internal/application/certificates"

	"github.com/google/uuid"
)

// Multi delivers to every notifier, returning the joined errors. One failing sink never blocks the others.
type Multi []certificates.Notifier

func (m Multi) SendNotification(ctx context.Context, userID uuid.UUID, msg certificates.Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendNotification(ctx, userID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
