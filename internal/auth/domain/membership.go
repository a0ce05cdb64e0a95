package domain

import "time"

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

var roleRank = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is the same as or above min in the
// member < admin < owner order. Unknown roles satisfy nothing.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

type Membership struct {
	UserID         string
	OrganisationID string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MembershipView is a membership joined with its organisation's name, for
// login and org switch responses.
type MembershipView struct {
	Membership
	OrganisationName string
}
