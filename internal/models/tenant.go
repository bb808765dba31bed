package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant is a customer account with its own isolated database. Owned by the
// master registry; this subsystem only reads it.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	DBHost     string    `json:"-"`
	DBPort     int       `json:"-"`
	DBUser     string    `json:"-"`
	DBPassword string    `json:"-"`
	DBName     string    `json:"-"`
	APIKey     string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Descriptor is the connection descriptor for a tenant database, passed as an
// explicit value through every call boundary.
type Descriptor struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (t *Tenant) Descriptor() Descriptor {
	return Descriptor{
		Host:     t.DBHost,
		Port:     t.DBPort,
		User:     t.DBUser,
		Password: t.DBPassword,
		Database: t.DBName,
	}
}

func (d Descriptor) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

// String redacts the password so descriptors are safe to log.
func (d Descriptor) String() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s", d.User, d.Host, d.Port, d.Database)
}
