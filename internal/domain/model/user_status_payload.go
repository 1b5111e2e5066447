package model

// UserStatusPayload is exported whenever a connection transition changes a user's status.
type UserStatusPayload struct {
	UserID string     `json:"user_id"`
	Status UserStatus `json:"status"`
}
