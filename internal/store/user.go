package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"crm-service/internal/model"
)

// storedUser is the persisted form of a user: the password hash survives
// the round trip through the store even though the public JSON shape
// drops it.
type storedUser struct {
	model.User
	PasswordHash string `json:"passwordHash"`
}

// SignupCompany creates a company together with its first admin user in
// one transaction. Either both records exist afterwards or neither does.
func (s *Store) SignupCompany(ctx context.Context, company *model.Company, admin *model.User) error {
	const op = "store.SignupCompany"
	return s.update(op, func(tx *bolt.Tx) error {
		if err := createCompanyTx(tx, op, company); err != nil {
			return err
		}
		admin.CompanyID = company.ID
		admin.CompanyAlias = company.Alias
		admin.Role = model.RoleAdmin
		return createUserTx(tx, op, admin)
	})
}

// CreateUser writes a new user. The (username, companyAlias) pair must
// be unique; a duplicate fails with Conflict. The same username under a
// different company alias is allowed.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	const op = "store.CreateUser"
	return s.update(op, func(tx *bolt.Tx) error {
		return createUserTx(tx, op, user)
	})
}

func createUserTx(tx *bolt.Tx, op string, user *model.User) error {
	if err := validUsername(op, user.Username); err != nil {
		return err
	}
	if !user.Role.Valid() {
		return invalid(op, "unknown role")
	}

	nameIdx := tx.Bucket(usersNameIndex)
	nameKey := userNameKey(user.CompanyAlias, user.Username)
	if nameIdx.Get(nameKey) != nil {
		return conflict(op, "username already exists in company")
	}

	if user.ID == "" {
		user.ID = newID()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := putUser(tx, user); err != nil {
		return err
	}
	if err := nameIdx.Put(nameKey, []byte(user.ID)); err != nil {
		return err
	}
	return tx.Bucket(usersCompanyIndex).Put(indexKey(user.CompanyID, user.CreatedAt, user.ID), []byte(user.ID))
}

// UserByID fetches a user by id. A missing user yields a nil result, not
// an error.
func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	const op = "store.UserByID"
	var user *model.User
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		user, err = getUser(tx, id)
		return err
	})
	return user, err
}

// UserByName fetches a user by the (companyAlias, username) pair. A
// missing user yields a nil result, not an error.
func (s *Store) UserByName(ctx context.Context, companyAlias, username string) (*model.User, error) {
	const op = "store.UserByName"
	var user *model.User
	err := s.view(op, func(tx *bolt.Tx) error {
		id := tx.Bucket(usersNameIndex).Get(userNameKey(companyAlias, username))
		if id == nil {
			return nil
		}
		var err error
		user, err = getUser(tx, string(id))
		return err
	})
	return user, err
}

// UserForCompany fetches a user by id scoped to the caller's company:
// absent is NotFound, owned by another tenant is Forbidden.
func (s *Store) UserForCompany(ctx context.Context, id, companyID string) (*model.User, error) {
	const op = "store.UserForCompany"
	var user *model.User
	err := s.view(op, func(tx *bolt.Tx) error {
		var err error
		user, err = getUserScoped(tx, op, id, companyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func getUserScoped(tx *bolt.Tx, op, id, companyID string) (*model.User, error) {
	user, err := getUser(tx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFound(op, "user not found")
	}
	if err := ensureCompany(op, user.CompanyID, companyID); err != nil {
		return nil, err
	}
	return user, nil
}

// UsersByCompany lists the company's users newest-first with cursor
// pagination.
func (s *Store) UsersByCompany(ctx context.Context, companyID string, pageSize int, cursor string) ([]*model.User, string, bool, error) {
	const op = "store.UsersByCompany"
	var (
		users      []*model.User
		nextCursor string
		more       bool
	)
	err := s.view(op, func(tx *bolt.Tx) error {
		ids, next, hasMore, err := scanIndex(tx, usersCompanyIndex, companyID, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			user, err := getUser(tx, id)
			if err != nil {
				return err
			}
			if user != nil {
				users = append(users, user)
			}
		}
		nextCursor, more = next, hasMore
		return nil
	})
	if err != nil {
		return nil, "", false, err
	}
	return users, nextCursor, more, nil
}

// PatchUser applies a partial update to a user in the caller's company
// and returns the updated record. passwordHash cannot pass through here;
// a username change re-checks the in-company uniqueness and moves the
// name index entry.
func (s *Store) PatchUser(ctx context.Context, id, companyID string, patch model.Patch) (*model.User, error) {
	const op = "store.PatchUser"
	var updated *model.User
	err := s.update(op, func(tx *bolt.Tx) error {
		user, err := getUserScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}

		oldUsername := user.Username
		if err := user.Apply(patch); err != nil {
			return err
		}

		if user.Username != oldUsername {
			if err := validUsername(op, user.Username); err != nil {
				return err
			}
			nameIdx := tx.Bucket(usersNameIndex)
			newKey := userNameKey(user.CompanyAlias, user.Username)
			if nameIdx.Get(newKey) != nil {
				return conflict(op, "username already exists in company")
			}
			if err := nameIdx.Delete(userNameKey(user.CompanyAlias, oldUsername)); err != nil {
				return err
			}
			if err := nameIdx.Put(newKey, []byte(user.ID)); err != nil {
				return err
			}
		}

		user.UpdatedAt = time.Now().UTC()
		if err := putUser(tx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	return updated, err
}

// SetUserPassword is the dedicated path for password changes; the
// generic patch path refuses passwordHash.
func (s *Store) SetUserPassword(ctx context.Context, id, companyID, passwordHash string) error {
	const op = "store.SetUserPassword"
	return s.update(op, func(tx *bolt.Tx) error {
		user, err := getUserScoped(tx, op, id, companyID)
		if err != nil {
			return err
		}
		user.PasswordHash = passwordHash
		user.UpdatedAt = time.Now().UTC()
		return putUser(tx, user)
	})
}

// DeleteUser removes a user from the caller's company. Absence of the
// record is not an error; a record in another tenant is Forbidden.
func (s *Store) DeleteUser(ctx context.Context, id, companyID string) error {
	const op = "store.DeleteUser"
	return s.update(op, func(tx *bolt.Tx) error {
		user, err := getUser(tx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return nil
		}
		if err := ensureCompany(op, user.CompanyID, companyID); err != nil {
			return err
		}
		if err := tx.Bucket(usersNameIndex).Delete(userNameKey(user.CompanyAlias, user.Username)); err != nil {
			return err
		}
		if err := tx.Bucket(usersCompanyIndex).Delete(indexKey(user.CompanyID, user.CreatedAt, user.ID)); err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Delete([]byte(user.ID))
	})
}

// validUsername rejects an empty username and the '/' character: the
// name index keys on alias/username, so a '/' in either part would make
// distinct pairs collide.
func validUsername(op, username string) error {
	if username == "" {
		return invalid(op, "username is required")
	}
	if strings.Contains(username, "/") {
		return invalid(op, "username must not contain '/'")
	}
	return nil
}

func userNameKey(companyAlias, username string) []byte {
	return []byte(model.NormalizeAlias(companyAlias) + "/" + username)
}

func getUser(tx *bolt.Tx, id string) (*model.User, error) {
	raw := tx.Bucket(usersBucket).Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var stored storedUser
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

func putUser(tx *bolt.Tx, user *model.User) error {
	raw, err := json.Marshal(storedUser{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return err
	}
	return tx.Bucket(usersBucket).Put([]byte(user.ID), raw)
}
