package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

type categoryStatusChanged struct {
	CategoryID string `json:"category_id"`
	Status     string `json:"status"`
}

// CategoryUpdater is satisfied by lifecycle.Service.
type CategoryUpdater interface {
	SetCategoryStatus(ctx context.Context, categoryID string, status model.EntityStatus) ([]model.Appointment, error)
}

// CategoryStatusHandler mirrors catalog category status changes. Switching a
// category off moves its active appointments to inactive.
func CategoryStatusHandler(u CategoryUpdater, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt categoryStatusChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		if evt.CategoryID == "" {
			return fmt.Errorf("decode %s: category_id is required", msg.Topic)
		}
		changed, err := u.SetCategoryStatus(ctx, evt.CategoryID, model.EntityStatus(evt.Status))
		if err != nil {
			return err
		}
		logger.Info("category status applied",
			"category_id", evt.CategoryID, "status", evt.Status, "deactivated", len(changed))
		return nil
	}
}
