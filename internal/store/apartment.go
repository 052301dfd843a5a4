package store

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"crm-service/internal/model"
	"crm-service/internal/search"
)

// CreateApartment writes a new apartment. The referenced property must
// exist and belong to the same company; the check happens at write time,
// the store itself keeps no referential-integrity constraint.
func (s *Store) CreateApartment(ctx context.Context, apartment *model.Apartment) error {
	const op = "store.CreateApartment"
	return s.update(op, func(tx *bolt.Tx) error {
		if apartment.CompanyID == "" {
			return invalid(op, "companyId is required")
		}
		if _, err := getPropertyScoped(tx, op, apartment.PropertyID, apartment.CompanyID); err != nil {
			return err
		}

		if apartment.ID == "" {
			apartment.ID = newID()
		}
		now := time.Now().UTC()
		apartment.CreatedAt = now
		apartment.UpdatedAt = now

		if err := putApartment(tx, apartment); err != nil {
			return err
		}
		if err := tx.Bucket(apartmentsCompanyIndex).Put(indexKey(apartment.CompanyID, apartment.CreatedAt, apartment.ID), []byte(apartment.ID)); err != nil {
			return err
		}
		return tx.Bucket(apartmentsPropertyIndex).Put(indexKey(apartment.PropertyID, apartment.CreatedAt, apartment.ID), []byte(apartment.ID))
	})
}

// ApartmentForCompany fetches an apartment by id scoped to the caller's
// company: absent is NotFound, owned by another tenant is Forbidden.
func (s *Store) ApartmentForCompany(ctx context.Context, id, companyID string) (*model.Apartment, error) {
	const op = "store.ApartmentForCompany"
	var apartment *model.Apartment
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		apartment, err = getApartmentScoped(tx, op, id, companyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return apartment, nil
}

func getApartmentScoped(tx *bolt.Tx, op, id, companyID string) (*model.Apartment, error) {
	apartment, err := getApartment(tx, id)
	if err != nil {
		return nil, err
	}
	if apartment == nil {
		return nil, notFound(op, "apartment not found")
	}
	if err := ensureCompany(op, apartment.CompanyID, companyID); err != nil {
		return nil, err
	}
	return apartment, nil
}

// ApartmentsByCompany lists the company's apartments newest-first with
// cursor pagination.
func (s *Store) ApartmentsByCompany(ctx context.Context, companyID string, pageSize int, cursor string) ([]*model.Apartment, string, bool, error) {
	const op = "store.ApartmentsByCompany"
	return s.apartmentPage(op, apartmentsCompanyIndex, companyID, pageSize, cursor)
}

// ApartmentsByProperty lists a property's apartments newest-first with
// cursor pagination. The property is resolved under the tenant guard
// first, so a foreign property yields Forbidden rather than an empty
// page.
func (s *Store) ApartmentsByProperty(ctx context.Context, propertyID, companyID string, pageSize int, cursor string) ([]*model.Apartment, string, bool, error) {
	const op = "store.ApartmentsByProperty"
	err := s.view(op, func(tx *bolt.Tx) error {
		_, err := getPropertyScoped(tx, op, propertyID, companyID)
		return err
	})
	if err != nil {
		return nil, "", false, err
	}
	return s.apartmentPage(op, apartmentsPropertyIndex, propertyID, pageSize, cursor)
}

func (s *Store) apartmentPage(op string, bucket []byte, scope string, pageSize int, cursor string) ([]*model.Apartment, string, bool, error) {
	var (
		apartments []*model.Apartment
		nextCursor string
		more       bool
	)
	err := s.view(op, func(tx *bolt.Tx) error {
		ids, next, hasMore, err := scanIndex(tx, bucket, scope, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			apartment, err := getApartment(tx, id)
			if err != nil {
				return err
			}
			if apartment != nil {
				apartments = append(apartments, apartment)
			}
		}
		nextCursor, more = next, hasMore
		return nil
	})
	if err != nil {
		return nil, "", false, err
	}
	return apartments, nextCursor, more, nil
}

// PatchApartment applies a partial update to an apartment in the
// caller's company and returns the updated record. A propertyId change
// is re-validated against the company and moves the property index
// entry.
func (s *Store) PatchApartment(ctx context.Context, id, companyID string, patch model.Patch) (*model.Apartment, error) {
	const op = "store.PatchApartment"
	var updated *model.Apartment
	err := s.update(op, func(tx *bolt.Tx) error {
		apartment, err := getApartmentScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}

		oldPropertyID := apartment.PropertyID
		if err := apartment.Apply(patch); err != nil {
			return err
		}

		if apartment.PropertyID != oldPropertyID {
			if _, err := getPropertyScoped(tx, op, apartment.PropertyID, companyID); err != nil {
				return err
			}
			idx := tx.Bucket(apartmentsPropertyIndex)
			if err := idx.Delete(indexKey(oldPropertyID, apartment.CreatedAt, apartment.ID)); err != nil {
				return err
			}
			if err := idx.Put(indexKey(apartment.PropertyID, apartment.CreatedAt, apartment.ID), []byte(apartment.ID)); err != nil {
				return err
			}
		}

		apartment.UpdatedAt = time.Now().UTC()
		if err := putApartment(tx, apartment); err != nil {
			return err
		}
		updated = apartment
		return nil
	})
	return updated, err
}

// AttachApartmentDocument appends a document-metadata record, merging in
// any fields produced by the text-extraction collaborator.
func (s *Store) AttachApartmentDocument(ctx context.Context, id, companyID string, doc model.FileMeta) (*model.Apartment, error) {
	const op = "store.AttachApartmentDocument"
	var updated *model.Apartment
	err := s.update(op, func(tx *bolt.Tx) error {
		apartment, err := getApartmentScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}
		if doc.ID == "" {
			doc.ID = newID()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now().UTC()
		}
		apartment.Documents = append(apartment.Documents, doc)
		apartment.UpdatedAt = time.Now().UTC()
		if err := putApartment(tx, apartment); err != nil {
			return err
		}
		updated = apartment
		return nil
	})
	return updated, err
}

// DeleteApartment removes an apartment; absence is not an error.
func (s *Store) DeleteApartment(ctx context.Context, id, companyID string) error {
	const op = "store.DeleteApartment"
	return s.update(op, func(tx *bolt.Tx) error {
		apartment, err := getApartment(tx, id)
		if err != nil {
			return err
		}
		if apartment == nil {
			return nil
		}
		if err := ensureCompany(op, apartment.CompanyID, companyID); err != nil {
			return err
		}
		if err := tx.Bucket(apartmentsCompanyIndex).Delete(indexKey(apartment.CompanyID, apartment.CreatedAt, apartment.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(apartmentsPropertyIndex).Delete(indexKey(apartment.PropertyID, apartment.CreatedAt, apartment.ID)); err != nil {
			return err
		}
		return tx.Bucket(apartmentsBucket).Delete([]byte(apartment.ID))
	})
}

// SearchApartments does a whole-tenant scan filtered through the
// normalized-contains predicate over apartmentNumber and propertyId.
func (s *Store) SearchApartments(ctx context.Context, companyID, term string) ([]*model.Apartment, error) {
	const op = "store.SearchApartments"
	var matches []*model.Apartment
	err := s.view(op, func(tx *bolt.Tx) error {
		return walkIndex(tx, apartmentsCompanyIndex, companyID, func(id string) error {
			apartment, err := getApartment(tx, id)
			if err != nil {
				return err
			}
			if apartment == nil {
				return nil
			}
			if search.Contains(apartment.ApartmentNumber, term) || search.Contains(apartment.PropertyID, term) {
				matches = append(matches, apartment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func getApartment(tx *bolt.Tx, id string) (*model.Apartment, error) {
	raw := tx.Bucket(apartmentsBucket).Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var apartment model.Apartment
	if err := json.Unmarshal(raw, &apartment); err != nil {
		return nil, err
	}
	return &apartment, nil
}

func putApartment(tx *bolt.Tx, apartment *model.Apartment) error {
	raw, err := json.Marshal(apartment)
	if err != nil {
		return err
	}
	return tx.Bucket(apartmentsBucket).Put([]byte(apartment.ID), raw)
}
