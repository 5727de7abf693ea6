package model

import "time"

// ActivityStatus is the persisted online/offline marker maintained by the
// presence tracker. It is never written by any other component.
type ActivityStatus string

const (
	StatusOnline  ActivityStatus = "online"
	StatusOffline ActivityStatus = "offline"
)

type User struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Role           string         `json:"role"`
	ActivityStatus ActivityStatus `json:"activity_status"`
	LastSeen       time.Time      `json:"last_seen"`
}
