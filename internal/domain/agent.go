package domain

import "time"

// Agent is a staff member tickets can be assigned to.
type Agent struct {
	ID        string
	EntityID  *string
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
