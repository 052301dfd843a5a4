package store

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"crm-service/internal/model"
	"crm-service/internal/search"
)

// CreateLead writes a new lead. propertiesOfInterest is kept
// duplicate-free; each referenced property must belong to the same
// company. Status defaults to active.
func (s *Store) CreateLead(ctx context.Context, lead *model.Lead) error {
	const op = "store.CreateLead"
	return s.update(op, func(tx *bolt.Tx) error {
		if lead.CompanyID == "" {
			return invalid(op, "companyId is required")
		}
		if lead.Status == "" {
			lead.Status = model.LeadStatusActive
		} else if _, ok := model.ParseLeadStatus(string(lead.Status)); !ok {
			return invalid(op, "unknown lead status "+string(lead.Status))
		}

		lead.PropertiesOfInterest = model.DedupeIDs(lead.PropertiesOfInterest)
		for _, propertyID := range lead.PropertiesOfInterest {
			if _, err := getPropertyScoped(tx, op, propertyID, lead.CompanyID); err != nil {
				return err
			}
		}

		if lead.ID == "" {
			lead.ID = newID()
		}
		now := time.Now().UTC()
		lead.CreatedAt = now
		lead.UpdatedAt = now
		lead.History = append(lead.History, model.HistoryEntry{Action: "created", At: now})

		if err := putLead(tx, lead); err != nil {
			return err
		}
		if err := tx.Bucket(leadsCompanyIndex).Put(indexKey(lead.CompanyID, lead.CreatedAt, lead.ID), []byte(lead.ID)); err != nil {
			return err
		}
		return putLeadPropertyIndex(tx, lead, nil)
	})
}

// LeadForCompany fetches a lead by id scoped to the caller's company:
// absent is NotFound, owned by another tenant is Forbidden.
func (s *Store) LeadForCompany(ctx context.Context, id, companyID string) (*model.Lead, error) {
	const op = "store.LeadForCompany"
	var lead *model.Lead
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		lead, err = getLeadScoped(tx, op, id, companyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func getLeadScoped(tx *bolt.Tx, op, id, companyID string) (*model.Lead, error) {
	lead, err := getLead(tx, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, notFound(op, "lead not found")
	}
	if err := ensureCompany(op, lead.CompanyID, companyID); err != nil {
		return nil, err
	}
	return lead, nil
}

// LeadsByCompany lists the company's leads newest-first with cursor
// pagination.
func (s *Store) LeadsByCompany(ctx context.Context, companyID string, pageSize int, cursor string) ([]*model.Lead, string, bool, error) {
	const op = "store.LeadsByCompany"
	return s.leadPage(op, leadsCompanyIndex, companyID, pageSize, cursor)
}

// LeadsByProperty lists the leads whose propertiesOfInterest contain the
// property, newest-first with cursor pagination. The property is
// resolved under the tenant guard first.
func (s *Store) LeadsByProperty(ctx context.Context, propertyID, companyID string, pageSize int, cursor string) ([]*model.Lead, string, bool, error) {
	const op = "store.LeadsByProperty"
	err := s.view(op, func(tx *bolt.Tx) error {
		_, err := getPropertyScoped(tx, op, propertyID, companyID)
		return err
	})
	if err != nil {
		return nil, "", false, err
	}
	return s.leadPage(op, leadsPropertyIndex, propertyID, pageSize, cursor)
}

func (s *Store) leadPage(op string, bucket []byte, scope string, pageSize int, cursor string) ([]*model.Lead, string, bool, error) {
	var (
		leads      []*model.Lead
		nextCursor string
		more       bool
	)
	err := s.view(op, func(tx *bolt.Tx) error {
		ids, next, hasMore, err := scanIndex(tx, bucket, scope, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			lead, err := getLead(tx, id)
			if err != nil {
				return err
			}
			if lead != nil {
				leads = append(leads, lead)
			}
		}
		nextCursor, more = next, hasMore
		return nil
	})
	if err != nil {
		return nil, "", false, err
	}
	return leads, nextCursor, more, nil
}

// PatchLead applies a partial update to a lead in the caller's company
// and returns the updated record. A history entry recording the actor is
// appended; a propertiesOfInterest change re-validates the references
// and rewrites the membership index.
func (s *Store) PatchLead(ctx context.Context, id, companyID string, patch model.Patch, actorID string) (*model.Lead, error) {
	const op = "store.PatchLead"
	var updated *model.Lead
	err := s.update(op, func(tx *bolt.Tx) error {
		lead, err := getLeadScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}

		oldProperties := append([]string(nil), lead.PropertiesOfInterest...)
		if err := lead.Apply(patch); err != nil {
			return err
		}

		if !sameIDs(lead.PropertiesOfInterest, oldProperties) {
			for _, propertyID := range lead.PropertiesOfInterest {
				if _, err := getPropertyScoped(tx, op, propertyID, companyID); err != nil {
					return err
				}
			}
			if err := putLeadPropertyIndex(tx, lead, oldProperties); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		lead.UpdatedAt = now
		lead.History = append(lead.History, model.HistoryEntry{Action: "updated", By: actorID, At: now})
		if err := putLead(tx, lead); err != nil {
			return err
		}
		updated = lead
		return nil
	})
	return updated, err
}

// AttachLeadFile appends a file-metadata record to a lead.
func (s *Store) AttachLeadFile(ctx context.Context, id, companyID string, file model.FileMeta) (*model.Lead, error) {
	const op = "store.AttachLeadFile"
	var updated *model.Lead
	err := s.update(op, func(tx *bolt.Tx) error {
		lead, err := getLeadScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}
		if file.ID == "" {
			file.ID = newID()
		}
		if file.CreatedAt.IsZero() {
			file.CreatedAt = time.Now().UTC()
		}
		lead.Files = append(lead.Files, file)
		lead.UpdatedAt = time.Now().UTC()
		if err := putLead(tx, lead); err != nil {
			return err
		}
		updated = lead
		return nil
	})
	return updated, err
}

// DeleteLead removes a lead; absence is not an error.
func (s *Store) DeleteLead(ctx context.Context, id, companyID string) error {
	const op = "store.DeleteLead"
	return s.update(op, func(tx *bolt.Tx) error {
		lead, err := getLead(tx, id)
		if err != nil {
			return err
		}
		if lead == nil {
			return nil
		}
		if err := ensureCompany(op, lead.CompanyID, companyID); err != nil {
			return err
		}
		idx := tx.Bucket(leadsPropertyIndex)
		for _, propertyID := range lead.PropertiesOfInterest {
			if err := idx.Delete(indexKey(propertyID, lead.CreatedAt, lead.ID)); err != nil {
				return err
			}
		}
		if err := tx.Bucket(leadsCompanyIndex).Delete(indexKey(lead.CompanyID, lead.CreatedAt, lead.ID)); err != nil {
			return err
		}
		return tx.Bucket(leadsBucket).Delete([]byte(lead.ID))
	})
}

// SearchLeads does a whole-tenant scan filtered through the
// normalized-contains predicate over name, phone and email.
func (s *Store) SearchLeads(ctx context.Context, companyID, term string) ([]*model.Lead, error) {
	const op = "store.SearchLeads"
	var matches []*model.Lead
	err := s.view(op, func(tx *bolt.Tx) error {
		return walkIndex(tx, leadsCompanyIndex, companyID, func(id string) error {
			lead, err := getLead(tx, id)
			if err != nil {
				return err
			}
			if lead == nil {
				return nil
			}
			if search.Contains(lead.Name, term) || search.Contains(lead.Phone, term) || search.Contains(lead.Email, term) {
				matches = append(matches, lead)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// putLeadPropertyIndex rewrites the property-of-interest membership
// index for the lead, removing entries for properties no longer listed.
func putLeadPropertyIndex(tx *bolt.Tx, lead *model.Lead, oldProperties []string) error {
	idx := tx.Bucket(leadsPropertyIndex)
	current := make(map[string]bool, len(lead.PropertiesOfInterest))
	for _, propertyID := range lead.PropertiesOfInterest {
		current[propertyID] = true
		if err := idx.Put(indexKey(propertyID, lead.CreatedAt, lead.ID), []byte(lead.ID)); err != nil {
			return err
		}
	}
	for _, propertyID := range oldProperties {
		if current[propertyID] {
			continue
		}
		if err := idx.Delete(indexKey(propertyID, lead.CreatedAt, lead.ID)); err != nil {
			return err
		}
	}
	return nil
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func getLead(tx *bolt.Tx, id string) (*model.Lead, error) {
	raw := tx.Bucket(leadsBucket).Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var lead model.Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

func putLead(tx *bolt.Tx, lead *model.Lead) error {
	raw, err := json.Marshal(lead)
	if err != nil {
		return err
	}
	return tx.Bucket(leadsBucket).Put([]byte(lead.ID), raw)
}
