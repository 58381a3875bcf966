package core

import "sort"

// Privilege names resolved through the role lookup.
const (
	PrivilegeAdmin = "admin"
	// PrivilegeSuperApprover marks users implicitly added to every
	// project's approver set on submission.
	PrivilegeSuperApprover = "superapprover"
)

// RoleLookup resolves which users hold a named privilege. Role storage is
// owned by an external system; the core only queries it. Group membership
// is not expanded.
type RoleLookup interface {
	// UsersWithPrivilege returns a sorted, deduplicated list of user ids.
	UsersWithPrivilege(privilege string) ([]string, error)
}

// StaticRoles is a RoleLookup backed by a fixed in-process table, for
// embedded deployments and tests.
type StaticRoles struct {
	users map[string][]string
}

// NewStaticRoles builds a lookup from privilege name to user ids.
func NewStaticRoles(users map[string][]string) *StaticRoles {
	return &StaticRoles{users: users}
}

func (r *StaticRoles) UsersWithPrivilege(privilege string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, user := range r.users[privilege] {
		if _, ok := seen[user]; ok {
			continue
		}
		seen[user] = struct{}{}
		out = append(out, user)
	}
	sort.Strings(out)
	return out, nil
}
