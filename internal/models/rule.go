package models

import (
	"strings"
	"time"
)

// SavedRule is a named rule kept by the rule store
type SavedRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AST       *Node     `json:"ast"`
	Schedule  string    `json:"schedule,omitempty"` // cron spec, empty = manual runs only
	Limit     int       `json:"limit,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate validates a SavedRule
func (r *SavedRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRuleID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidRuleName
	}
	if r.Limit < 0 {
		return ErrInvalidLimit
	}
	return r.AST.Validate()
}
