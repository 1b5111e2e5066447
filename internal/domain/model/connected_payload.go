package model

// ConnectedPayload is pushed to the client once its channel is bound to a user.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	UserID        string `json:"user_id"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}
