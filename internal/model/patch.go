package model

import (
	"fmt"

	"crm-service/internal/apperr"
)

// Patch is a partial update as decoded from JSON: field name to new value.
type Patch map[string]interface{}

// protectedFields are silently skipped by every patch: they are assigned
// at creation (or, for updatedAt, by the store on every write) and cannot
// be overwritten through the generic patch path. passwordHash additionally
// requires the dedicated change-password operation.
var protectedFields = map[string]bool{
	"id":           true,
	"createdAt":    true,
	"updatedAt":    true,
	"companyId":    true,
	"companyAlias": true,
	"passwordHash": true,
	"password":     true,
}

type fieldSetter func(value interface{}) error

// applyPatch runs the shared allow-list protocol: protected fields are
// skipped, unknown fields are rejected, and the number of applied fields
// is returned so the caller can refuse an effectively empty patch.
func applyPatch(p Patch, setters map[string]fieldSetter) (int, error) {
	applied := 0
	for field, value := range p {
		if protectedFields[field] {
			continue
		}
		set, ok := setters[field]
		if !ok {
			return 0, &apperr.Error{
				Kind: apperr.InvalidArgument,
				Msg:  fmt.Sprintf("unknown field %q", field),
			}
		}
		if err := set(value); err != nil {
			return 0, err
		}
		applied++
	}
	if applied == 0 {
		return 0, &apperr.Error{
			Kind: apperr.InvalidArgument,
			Msg:  "no valid fields to update",
		}
	}
	return applied, nil
}

func badField(field, want string) error {
	return &apperr.Error{
		Kind: apperr.InvalidArgument,
		Msg:  fmt.Sprintf("field %q must be a %s", field, want),
	}
}

func setString(field string, dst *string) fieldSetter {
	return func(v interface{}) error {
		s, ok := v.(string)
		if !ok {
			return badField(field, "string")
		}
		*dst = s
		return nil
	}
}

func setInt(field string, dst *int) fieldSetter {
	return func(v interface{}) error {
		// JSON numbers decode as float64.
		switch n := v.(type) {
		case float64:
			*dst = int(n)
		case int:
			*dst = n
		default:
			return badField(field, "number")
		}
		return nil
	}
}

func setFloat(field string, dst *float64) fieldSetter {
	return func(v interface{}) error {
		switch n := v.(type) {
		case float64:
			*dst = n
		case int:
			*dst = float64(n)
		default:
			return badField(field, "number")
		}
		return nil
	}
}

func setStringSlice(field string, dst *[]string) fieldSetter {
	return func(v interface{}) error {
		switch vs := v.(type) {
		case []string:
			*dst = append([]string(nil), vs...)
		case []interface{}:
			out := make([]string, 0, len(vs))
			for _, item := range vs {
				s, ok := item.(string)
				if !ok {
					return badField(field, "list of strings")
				}
				out = append(out, s)
			}
			*dst = out
		default:
			return badField(field, "list of strings")
		}
		return nil
	}
}

// Apply applies a patch to a company. The alias is re-normalized; the
// store re-checks alias uniqueness before committing.
func (c *Company) Apply(p Patch) error {
	_, err := applyPatch(p, map[string]fieldSetter{
		"name": setString("name", &c.Name),
		"alias": func(v interface{}) error {
			s, ok := v.(string)
			if !ok {
				return badField("alias", "string")
			}
			c.Alias = NormalizeAlias(s)
			return nil
		},
	})
	return err
}

// Apply applies a patch to a user. Username changes are allowed; the
// store re-checks (username, companyAlias) uniqueness. Role goes through
// the closed set; rank rules are enforced by the caller, which knows the
// acting role.
func (u *User) Apply(p Patch) error {
	_, err := applyPatch(p, map[string]fieldSetter{
		"username": setString("username", &u.Username),
		"role": func(v interface{}) error {
			s, ok := v.(string)
			if !ok {
				return badField("role", "string")
			}
			role, ok := ParseRole(s)
			if !ok {
				return &apperr.Error{
					Kind: apperr.InvalidArgument,
					Msg:  fmt.Sprintf("unknown role %q", s),
				}
			}
			u.Role = role
			return nil
		},
	})
	return err
}

// Apply applies a patch to a lead. propertiesOfInterest is kept
// duplicate-free in input order.
func (l *Lead) Apply(p Patch) error {
	_, err := applyPatch(p, map[string]fieldSetter{
		"name":  setString("name", &l.Name),
		"phone": setString("phone", &l.Phone),
		"email": setString("email", &l.Email),
		"notes": setString("notes", &l.Notes),
		"status": func(v interface{}) error {
			s, ok := v.(string)
			if !ok {
				return badField("status", "string")
			}
			status, ok := ParseLeadStatus(s)
			if !ok {
				return &apperr.Error{
					Kind: apperr.InvalidArgument,
					Msg:  fmt.Sprintf("unknown lead status %q", s),
				}
			}
			l.Status = status
			return nil
		},
		"propertiesOfInterest": func(v interface{}) error {
			var ids []string
			if err := setStringSlice("propertiesOfInterest", &ids)(v); err != nil {
				return err
			}
			l.PropertiesOfInterest = DedupeIDs(ids)
			return nil
		},
	})
	return err
}

// Apply applies a patch to a property.
func (pr *Property) Apply(p Patch) error {
	_, err := applyPatch(p, map[string]fieldSetter{
		"name":        setString("name", &pr.Name),
		"address":     setString("address", &pr.Address),
		"status":      setString("status", &pr.Status),
		"description": setString("description", &pr.Description),
		"mainImage":   setString("mainImage", &pr.MainImage),
		"images":      setStringSlice("images", &pr.Images),
		"coordinates": func(v interface{}) error {
			m, ok := v.(map[string]interface{})
			if !ok {
				return badField("coordinates", "object with lat and lng")
			}
			lat, latOK := m["lat"].(float64)
			lng, lngOK := m["lng"].(float64)
			if !latOK || !lngOK {
				return badField("coordinates", "object with lat and lng")
			}
			pr.Coordinates = Coordinates{Lat: lat, Lng: lng}
			return nil
		},
	})
	return err
}

// Apply applies a patch to an apartment. A propertyId change is validated
// by the store against the caller's company before committing.
func (a *Apartment) Apply(p Patch) error {
	_, err := applyPatch(p, map[string]fieldSetter{
		"propertyId":      setString("propertyId", &a.PropertyID),
		"apartmentNumber": setString("apartmentNumber", &a.ApartmentNumber),
		"rooms":           setInt("rooms", &a.Rooms),
		"area":            setFloat("area", &a.Area),
		"price":           setFloat("price", &a.Price),
		"images":          setStringSlice("images", &a.Images),
	})
	return err
}

// DedupeIDs removes duplicate ids preserving first-seen order. Reference
// lists like propertiesOfInterest are kept duplicate-free in this form.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
