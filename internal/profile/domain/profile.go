package domain

import (
	"errors"
	"strings"
	"time"

	"talent-hub/backend/internal/authevent"
)

// Profile is the application's durable record for an authenticated principal.
// ID equals the provider's principal id.
type Profile struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	Status    Status
	Position  string
	Level     string
	Points    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Defaults applied when a profile is created lazily on first sync.
const (
	DefaultName     = "Usuário"
	DefaultPosition = "Colaborador"
	DefaultLevel    = "Júnior"
)

// NewDefault builds the profile inserted on first successful sync for a
// principal with no local record. Name falls back from provider metadata to
// the email local part to DefaultName.
func NewDefault(p *authevent.SessionPayload, now time.Time) *Profile {
	name := p.MetaString("name")
	if name == "" {
		name = emailLocalPart(p.Email)
	}
	if name == "" {
		name = DefaultName
	}
	position := p.MetaString("position")
	if position == "" {
		position = DefaultPosition
	}
	level := p.MetaString("level")
	if level == "" {
		level = DefaultLevel
	}
	return &Profile{
		ID:        p.UserID,
		Email:     strings.TrimSpace(strings.ToLower(p.Email)),
		Name:      name,
		Role:      RoleEmployee,
		Status:    StatusActive,
		Position:  position,
		Level:     level,
		Points:    0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate validates the profile for persistence. Returns an error describing
// the first validation failure.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Email == "" {
		return errors.New("email is required")
	}
	if p.Role == "" {
		p.Role = RoleEmployee
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	return nil
}

func emailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:at]
}
