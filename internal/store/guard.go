package store

import "crm-service/internal/apperr"

// ensureCompany is the single choke point for tenant isolation: every
// scoped read, patch and delete passes the loaded entity's company
// through here after existence has been confirmed. A nonexistent entity
// is NotFound; an entity owned by another tenant is Forbidden. The two
// are never conflated.
func ensureCompany(op, entityCompanyID, callerCompanyID string) error {
	if entityCompanyID != callerCompanyID {
		return &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied", Op: op}
	}
	return nil
}

func notFound(op, msg string) error {
	return &apperr.Error{Kind: apperr.NotFound, Msg: msg, Op: op}
}

func conflict(op, msg string) error {
	return &apperr.Error{Kind: apperr.Conflict, Msg: msg, Op: op}
}

func invalid(op, msg string) error {
	return &apperr.Error{Kind: apperr.InvalidArgument, Msg: msg, Op: op}
}
