package domain

import (
	"errors"
	"time"
)

// StoredProfile is a profile document as persisted: the rule map is kept as
// raw JSON and validated on read, so a malformed entry written by an older
// client degrades instead of breaking resolution.
type StoredProfile struct {
	ID         string
	Name       string
	ConfigJSON []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate validates the stored profile for persistence.
func (p *StoredProfile) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	if len(p.ConfigJSON) == 0 {
		return errors.New("config is required")
	}
	if _, err := ParseProfileConfig(p.ConfigJSON); err != nil {
		return err
	}
	return nil
}
