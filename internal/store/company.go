package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"crm-service/internal/model"
)

// CreateCompany writes a new company. The alias is normalized and must
// be globally unique; a duplicate fails with Conflict.
func (s *Store) CreateCompany(ctx context.Context, company *model.Company) error {
	const op = "store.CreateCompany"
	return s.update(op, func(tx *bolt.Tx) error {
		return createCompanyTx(tx, op, company)
	})
}

func createCompanyTx(tx *bolt.Tx, op string, company *model.Company) error {
	company.Alias = model.NormalizeAlias(company.Alias)
	if err := validAlias(op, company.Alias); err != nil {
		return err
	}

	aliasIdx := tx.Bucket(companiesAliasIndex)
	if aliasIdx.Get([]byte(company.Alias)) != nil {
		return conflict(op, "company alias already exists")
	}

	if company.ID == "" {
		company.ID = newID()
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now

	if err := putCompany(tx, company); err != nil {
		return err
	}
	return aliasIdx.Put([]byte(company.Alias), []byte(company.ID))
}

// CompanyByID fetches a company by id. A missing company yields a nil
// result, not an error.
func (s *Store) CompanyByID(ctx context.Context, id string) (*model.Company, error) {
	const op = "store.CompanyByID"
	var company *model.Company
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		company, err = getCompany(tx, id)
		return err
	})
	return company, err
}

// CompanyByAlias fetches a company by its normalized alias. A missing
// company yields a nil result, not an error.
func (s *Store) CompanyByAlias(ctx context.Context, alias string) (*model.Company, error) {
	const op = "store.CompanyByAlias"
	var company *model.Company
	err := s.view(op, func(tx *bolt.Tx) error {
		id := tx.Bucket(companiesAliasIndex).Get([]byte(model.NormalizeAlias(alias)))
		if id == nil {
			return nil
		}
		var err error
		company, err = getCompany(tx, string(id))
		return err
	})
	return company, err
}

// PatchCompany applies a partial update to the caller's own company and
// returns the updated record. An alias change re-checks global
// uniqueness and moves the alias index entry.
func (s *Store) PatchCompany(ctx context.Context, id string, patch model.Patch) (*model.Company, error) {
	const op = "store.PatchCompany"
	var updated *model.Company
	err := s.update(op, func(tx *bolt.Tx) error {
		company, err := getCompany(tx, id)
		if err != nil {
			return err
		}
		if company == nil {
			return notFound(op, "company not found")
		}

		oldAlias := company.Alias
		if err := company.Apply(patch); err != nil {
			return err
		}

		aliasIdx := tx.Bucket(companiesAliasIndex)
		if company.Alias != oldAlias {
			if err := validAlias(op, company.Alias); err != nil {
				return err
			}
			if aliasIdx.Get([]byte(company.Alias)) != nil {
				return conflict(op, "company alias already exists")
			}
			if err := aliasIdx.Delete([]byte(oldAlias)); err != nil {
				return err
			}
			if err := aliasIdx.Put([]byte(company.Alias), []byte(company.ID)); err != nil {
				return err
			}
			if err := renameCompanyUsers(tx, company.ID, oldAlias, company.Alias); err != nil {
				return err
			}
		}

		company.UpdatedAt = time.Now().UTC()
		if err := putCompany(tx, company); err != nil {
			return err
		}
		updated = company
		return nil
	})
	return updated, err
}

// DeleteCompany removes a company. A company that still has users cannot
// be deleted; absence of the company is not an error.
func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	const op = "store.DeleteCompany"
	return s.update(op, func(tx *bolt.Tx) error {
		company, err := getCompany(tx, id)
		if err != nil {
			return err
		}
		if company == nil {
			return nil
		}
		if indexHasAny(tx, usersCompanyIndex, company.ID) {
			return conflict(op, "company still has users")
		}
		if err := tx.Bucket(companiesAliasIndex).Delete([]byte(company.Alias)); err != nil {
			return err
		}
		return tx.Bucket(companiesBucket).Delete([]byte(company.ID))
	})
}

// validAlias rejects an empty alias and the '/' character, which is the
// composite-key separator in the user name index.
func validAlias(op, alias string) error {
	if alias == "" {
		return invalid(op, "company alias is required")
	}
	if strings.Contains(alias, "/") {
		return invalid(op, "company alias must not contain '/'")
	}
	return nil
}

// renameCompanyUsers rewrites the denormalized companyAlias on every
// user of the company and moves their name-index entries, so the old
// alias holds no residue once released.
func renameCompanyUsers(tx *bolt.Tx, companyID, oldAlias, newAlias string) error {
	var ids []string
	if err := walkIndex(tx, usersCompanyIndex, companyID, func(id string) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		return err
	}

	nameIdx := tx.Bucket(usersNameIndex)
	now := time.Now().UTC()
	for _, id := range ids {
		user, err := getUser(tx, id)
		if err != nil {
			return err
		}
		if user == nil {
			continue
		}
		if err := nameIdx.Delete(userNameKey(oldAlias, user.Username)); err != nil {
			return err
		}
		user.CompanyAlias = newAlias
		user.UpdatedAt = now
		if err := nameIdx.Put(userNameKey(newAlias, user.Username), []byte(user.ID)); err != nil {
			return err
		}
		if err := putUser(tx, user); err != nil {
			return err
		}
	}
	return nil
}

func getCompany(tx *bolt.Tx, id string) (*model.Company, error) {
	raw := tx.Bucket(companiesBucket).Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var company model.Company
	if err := json.Unmarshal(raw, &company); err != nil {
		return nil, err
	}
	return &company, nil
}

func putCompany(tx *bolt.Tx, company *model.Company) error {
	raw, err := json.Marshal(company)
	if err != nil {
		return err
	}
	return tx.Bucket(companiesBucket).Put([]byte(company.ID), raw)
}
