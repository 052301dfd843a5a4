package store

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"crm-service/internal/model"
	"crm-service/internal/search"
)

// CreateProperty writes a new property for the company.
func (s *Store) CreateProperty(ctx context.Context, property *model.Property) error {
	const op = "store.CreateProperty"
	return s.update(op, func(tx *bolt.Tx) error {
		if property.CompanyID == "" {
			return invalid(op, "companyId is required")
		}
		if property.ID == "" {
			property.ID = newID()
		}
		now := time.Now().UTC()
		property.CreatedAt = now
		property.UpdatedAt = now

		if err := putProperty(tx, property); err != nil {
			return err
		}
		return tx.Bucket(propertiesCompanyIndex).Put(indexKey(property.CompanyID, property.CreatedAt, property.ID), []byte(property.ID))
	})
}

// PropertyByID fetches a property by id with no tenant scoping. A
// missing property yields a nil result, not an error. Used only by the
// public listing view, which strips everything but the storefront
// fields.
func (s *Store) PropertyByID(ctx context.Context, id string) (*model.Property, error) {
	const op = "store.PropertyByID"
	var property *model.Property
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		property, err = getProperty(tx, id)
		return err
	})
	return property, err
}

// PropertyForCompany fetches a property by id scoped to the caller's
// company: absent is NotFound, owned by another tenant is Forbidden.
func (s *Store) PropertyForCompany(ctx context.Context, id, companyID string) (*model.Property, error) {
	const op = "store.PropertyForCompany"
	var property *model.Property
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		property, err = getPropertyScoped(tx, op, id, companyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return property, nil
}

func getPropertyScoped(tx *bolt.Tx, op, id, companyID string) (*model.Property, error) {
	property, err := getProperty(tx, id)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, notFound(op, "property not found")
	}
	if err := ensureCompany(op, property.CompanyID, companyID); err != nil {
		return nil, err
	}
	return property, nil
}

// PropertiesByCompany lists the company's properties newest-first with
// cursor pagination.
func (s *Store) PropertiesByCompany(ctx context.Context, companyID string, pageSize int, cursor string) ([]*model.Property, string, bool, error) {
	const op = "store.PropertiesByCompany"
	var (
		properties []*model.Property
		nextCursor string
		more       bool
	)
	err := s.view(op, func(tx *bolt.Tx) error {
		ids, next, hasMore, err := scanIndex(tx, propertiesCompanyIndex, companyID, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			property, err := getProperty(tx, id)
			if err != nil {
				return err
			}
			if property != nil {
				properties = append(properties, property)
			}
		}
		nextCursor, more = next, hasMore
		return nil
	})
	if err != nil {
		return nil, "", false, err
	}
	return properties, nextCursor, more, nil
}

// PatchProperty applies a partial update to a property in the caller's
// company and returns the updated record.
func (s *Store) PatchProperty(ctx context.Context, id, companyID string, patch model.Patch) (*model.Property, error) {
	const op = "store.PatchProperty"
	var updated *model.Property
	err := s.update(op, func(tx *bolt.Tx) error {
		property, err := getPropertyScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}
		if err := property.Apply(patch); err != nil {
			return err
		}
		property.UpdatedAt = time.Now().UTC()
		if err := putProperty(tx, property); err != nil {
			return err
		}
		updated = property
		return nil
	})
	return updated, err
}

// AttachPropertyFile appends a file-metadata record to a property.
func (s *Store) AttachPropertyFile(ctx context.Context, id, companyID string, file model.FileMeta) (*model.Property, error) {
	const op = "store.AttachPropertyFile"
	var updated *model.Property
	err := s.update(op, func(tx *bolt.Tx) error {
		property, err := getPropertyScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}
		if file.ID == "" {
			file.ID = newID()
		}
		if file.CreatedAt.IsZero() {
			file.CreatedAt = time.Now().UTC()
		}
		property.Files = append(property.Files, file)
		property.UpdatedAt = time.Now().UTC()
		if err := putProperty(tx, property); err != nil {
			return err
		}
		updated = property
		return nil
	})
	return updated, err
}

// DeleteProperty removes a property. Apartments and leads referencing it
// keep their references; the store enforces no referential integrity.
func (s *Store) DeleteProperty(ctx context.Context, id, companyID string) error {
	const op = "store.DeleteProperty"
	return s.update(op, func(tx *bolt.Tx) error {
		property, err := getProperty(tx, id)
		if err != nil {
			return err
		}
		if property == nil {
			return nil
		}
		if err := ensureCompany(op, property.CompanyID, companyID); err != nil {
			return err
		}
		if err := tx.Bucket(propertiesCompanyIndex).Delete(indexKey(property.CompanyID, property.CreatedAt, property.ID)); err != nil {
			return err
		}
		return tx.Bucket(propertiesBucket).Delete([]byte(property.ID))
	})
}

// SearchProperties does a whole-tenant scan filtered through the
// normalized-contains predicate over name and address. No pagination:
// the scan is bounded by tenant size.
func (s *Store) SearchProperties(ctx context.Context, companyID, term string) ([]*model.Property, error) {
	const op = "store.SearchProperties"
	var matches []*model.Property
	err := s.view(op, func(tx *bolt.Tx) error {
		return walkIndex(tx, propertiesCompanyIndex, companyID, func(id string) error {
			property, err := getProperty(tx, id)
			if err != nil {
				return err
			}
			if property == nil {
				return nil
			}
			if search.Contains(property.Name, term) || search.Contains(property.Address, term) {
				matches = append(matches, property)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func getProperty(tx *bolt.Tx, id string) (*model.Property, error) {
	raw := tx.Bucket(propertiesBucket).Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var property model.Property
	if err := json.Unmarshal(raw, &property); err != nil {
		return nil, err
	}
	return &property, nil
}

func putProperty(tx *bolt.Tx, property *model.Property) error {
	raw, err := json.Marshal(property)
	if err != nil {
		return err
	}
	return tx.Bucket(propertiesBucket).Put([]byte(property.ID), raw)
}
