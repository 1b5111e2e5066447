package bus

import (
	"context"

	"github.com/webitel/im-private-chat/internal/domain/model"
)

// [ON_USER_STATUS]
// A status flip means the profile may have changed too; drop the cached display info.
func (h *MessageHandler) OnUserStatusChanged(ctx context.Context, userID string, payload *model.UserStatusPayload) error {
	h.enricher.Invalidate(userID)
	h.logger.Debug("USER_STATUS_OBSERVED", "user_id", userID, "status", payload.Status)
	return nil
}
