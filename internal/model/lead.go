package model

import "time"

// LeadStatus is the closed set of lead pipeline states.
type LeadStatus string

const (
	LeadStatusActive    LeadStatus = "active"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// ParseLeadStatus validates a status string against the closed set.
func ParseLeadStatus(s string) (LeadStatus, bool) {
	switch LeadStatus(s) {
	case LeadStatusActive, LeadStatusContacted, LeadStatusConverted, LeadStatusLost:
		return LeadStatus(s), true
	}
	return "", false
}

// HistoryEntry records one change made to a lead.
type HistoryEntry struct {
	Action string    `json:"action"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
}

// Lead represents a sales lead owned by one company.
type Lead struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Phone                string         `json:"phone"`
	Email                string         `json:"email"`
	CompanyID            string         `json:"companyId"`
	PropertiesOfInterest []string       `json:"propertiesOfInterest"`
	Notes                string         `json:"notes"`
	Status               LeadStatus     `json:"status"`
	History              []HistoryEntry `json:"history"`
	Files                []FileMeta     `json:"files"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}
