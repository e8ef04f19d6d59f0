// Package authz decides whether a principal may read or write a resource.
package authz

import (
	"reflect"
	"strings"
)

// AdminRole grants universal read/write. Matched case-insensitively.
const AdminRole = "mcp.admin"

// Operation is the kind of access being requested.
type Operation int

// Operations.
const (
	OperationRead Operation = iota
	OperationWrite
)

// Principal is an authenticated caller.
type Principal struct {
	// UserID is the stable principal identifier (token subject).
	UserID string

	// Name is the human-readable name, used for logging only.
	Name string

	// Roles are the role values the principal holds.
	Roles []string
}

// HasRole reports whether the principal holds the given role value,
// compared case-insensitively.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the distinguished
// administrator role.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(AdminRole)
}

// Protected is the view of a resource the evaluator needs: its owner and
// the roles that grant non-owner read access.
type Protected interface {
	Owner() string
	ReadRoles() []string
}

// Allowed evaluates the access rules in order; the first match wins.
//
//  1. The owner may do anything.
//  2. An admin may do anything.
//  3. Reads are allowed when the resource requires no roles, or when the
//     principal holds any required role.
//  4. Writes by non-owners are denied.
func Allowed(principal *Principal, resource Protected, op Operation) bool {
	if principal == nil || resource == nil {
		return false
	}
	if principal.UserID != "" && principal.UserID == resource.Owner() {
		return true
	}
	if principal.IsAdmin() {
		return true
	}
	if op == OperationRead {
		required := resource.ReadRoles()
		if len(required) == 0 {
			return true
		}
		for _, role := range required {
			if principal.HasRole(role) {
				return true
			}
		}
	}
	return false
}

// Filter applies Allowed per element, preserving input order. Nil elements
// are dropped. The second return value is the number of elements removed,
// which callers log but do not surface.
func Filter[T Protected](principal *Principal, resources []T, op Operation) ([]T, int) {
	out := make([]T, 0, len(resources))
	filtered := 0
	for _, r := range resources {
		if isNil(r) {
			filtered++
			continue
		}
		if Allowed(principal, r, op) {
			out = append(out, r)
		} else {
			filtered++
		}
	}
	return out, filtered
}

// isNil catches both nil interfaces and typed nil pointers, since stores may
// hand back partial lists with missing entries.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
