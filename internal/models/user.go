package models

import "time"

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              string // "patient", "company_admin", "specialist", "admin"
	Status            string // "active", "suspended", "disabled"
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt *time.Time
}
