package model

import "time"

// Coordinates is a geographic point attached to a property.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FileMeta is the metadata record for a file whose bytes live in the
// object store. The core never inspects blob contents.
type FileMeta struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Size          int64             `json:"size"`
	URL           string            `json:"url"`
	S3Key         string            `json:"s3Key"`
	ExtractedData map[string]string `json:"extractedData,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Property represents a real-estate property owned by one company.
type Property struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Address     string      `json:"address"`
	Status      string      `json:"status"`
	CompanyID   string      `json:"companyId"`
	Images      []string    `json:"images"`
	MainImage   string      `json:"mainImage"`
	Description string      `json:"description"`
	Coordinates Coordinates `json:"coordinates"`
	Files       []FileMeta  `json:"files"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Apartment represents a unit inside a property. The property reference
// is validated at write time against the caller's company; the store
// itself enforces no referential integrity.
type Apartment struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"propertyId"`
	ApartmentNumber string     `json:"apartmentNumber"`
	Rooms           int        `json:"rooms"`
	Area            float64    `json:"area"`
	Price           float64    `json:"price"`
	Images          []string   `json:"images"`
	Documents       []FileMeta `json:"documents"`
	CompanyID       string     `json:"companyId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
