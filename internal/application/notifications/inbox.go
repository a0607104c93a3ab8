package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InboxNotifier writes in-app notifications to the shared Notifications table.
type InboxNotifier struct {
	DB *gorm.DB
}

func (n *InboxNotifier) SendNotification(ctx context.Context, userID uuid.UUID, msg certificates.Notification) error {
	data, err := json.Marshal(map[string]string{"link": msg.Link, "type": msg.Type})
	if err != nil {
		return err
	}
	row := domain.Notification{
		UserID:  userID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Message,
		Data:    datatypes.JSON(data),
	}
	if msg.ActionText != "" {
		row.ActionText = &msg.ActionText
	}
	if msg.Link != "" {
		row.Link = &msg.Link
	}
	if err := n.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
