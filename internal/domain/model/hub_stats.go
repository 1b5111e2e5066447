package model

import "time"

// HubStats is a point-in-time snapshot of the presence registry.
type HubStats struct {
	TotalUsers int           `json:"total_users"`
	Users      []string      `json:"users"`
	Uptime     time.Duration `json:"uptime"`
}
