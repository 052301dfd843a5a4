package model

import (
	"strings"
	"time"
)

// Company is the tenant: the unit of data isolation. Every other entity
// carries its id.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Alias     string    `json:"alias"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeAlias canonicalizes a company alias: trimmed, lowercased.
// Aliases are compared in this form everywhere, including the uniqueness
// index.
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
