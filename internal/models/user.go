package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserPermission is the closed set of grants a user may hold. Values are
// comma-encoded on User.Permissions.
type UserPermission string

const (
	PermBypassReadProgress UserPermission = "bypass:read-progress"
	PermFileUpload         UserPermission = "file:upload"
	PermFileDownload       UserPermission = "file:download"
	PermLibraryCreate      UserPermission = "library:create"
	PermLibraryEdit        UserPermission = "library:edit"
	PermLibraryScan        UserPermission = "library:scan"
	PermLibraryDelete      UserPermission = "library:delete"
	PermLibraryManage      UserPermission = "library:manage" // implies create/edit/scan/delete
	PermUserRead           UserPermission = "user:read"
	PermUserManage         UserPermission = "user:manage" // implies user:read
	PermEmailerRead        UserPermission = "emailer:read"
	PermEmailerCreate      UserPermission = "emailer:create"
	PermEmailerManage      UserPermission = "emailer:manage" // implies create/read
	PermServerManage       UserPermission = "server:manage"
)

// permissionImplications: granting the left permission
// implicitly grants every permission in the set on the right.
var permissionImplications = map[UserPermission][]UserPermission{
	PermLibraryManage: {PermLibraryCreate, PermLibraryEdit, PermLibraryScan, PermLibraryDelete},
	PermUserManage:    {PermUserRead},
	PermEmailerManage: {PermEmailerCreate, PermEmailerRead},
}

// ExpandPermissions unions the explicit set with every implied permission.
// Idempotent: ExpandPermissions(ExpandPermissions(s)) == ExpandPermissions(s)
//, since applying implications to an already-expanded
// set adds nothing new.
func ExpandPermissions(explicit []UserPermission) []UserPermission {
	set := make(map[UserPermission]bool, len(explicit))
	for _, p := range explicit {
		set[p] = true
	}
	// Fixed-point iteration: implications can in principle chain, though the
	// table above is one level deep today.
	for changed := true; changed; {
		changed = false
		for p := range set {
			for _, implied := range permissionImplications[p] {
				if !set[implied] {
					set[implied] = true
					changed = true
				}
			}
		}
	}
	out := make([]UserPermission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// EncodePermissions renders a permission set as the comma-encoded string
// stored on User.Permissions.
func EncodePermissions(perms []UserPermission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

// DecodePermissions parses the comma-encoded string back into a slice.
func DecodePermissions(encoded string) []UserPermission {
	if encoded == "" {
		return nil
	}
	parts := strings.Split(encoded, ",")
	out := make([]UserPermission, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, UserPermission(p))
		}
	}
	return out
}

// HasPermission reports whether the (already-expanded) permission set
// contains perm.
func HasPermission(perms []UserPermission, perm UserPermission) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// AgeRestriction gates Media/Series visibility for a user.
type AgeRestriction struct {
	Age             int  `json:"age" db:"age"`
	RestrictOnUnset bool `json:"restrict_on_unset" db:"restrict_on_unset"`
}

// User is a Stump account.
type User struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Username       string          `json:"username" db:"username"`
	PasswordHash   string          `json:"-" db:"password_hash"`
	IsServerOwner  bool            `json:"is_server_owner" db:"is_server_owner"`
	IsLocked       bool            `json:"is_locked" db:"is_locked"`
	AgeRestriction *AgeRestriction `json:"age_restriction,omitempty" db:"-"`
	Permissions    []UserPermission `json:"permissions" db:"-"`
	HiddenLibraries []uuid.UUID    `json:"hidden_libraries,omitempty" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Can reports whether the user holds perm, after permission expansion.
func (u *User) Can(perm UserPermission) bool {
	if u.IsServerOwner {
		return true
	}
	return HasPermission(ExpandPermissions(u.Permissions), perm)
}
