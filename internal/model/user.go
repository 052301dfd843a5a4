package model

import "time"

// User represents a member of exactly one company. Usernames are unique
// only within a company: the (username, companyAlias) pair is the global
// key. PasswordHash is never serialized to any response.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CompanyAlias string    `json:"companyAlias"`
	CompanyID    string    `json:"companyId"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
