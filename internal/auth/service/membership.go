package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/slogx"
)

// MembershipRegistry answers which organisations a user belongs to and with
// which role. Nothing tenant-scoped should be served to a user that this
// registry does not place in the tenant.
type MembershipRegistry struct {
	Store store.Store
	Clock Clock
}

// In returns a registry bound to tx.
func (r *MembershipRegistry) In(tx store.Store) *MembershipRegistry {
	return &MembershipRegistry{Store: tx, Clock: r.Clock}
}

func (r *MembershipRegistry) RoleOf(ctx context.Context, userID, organisationID string) (domain.Role, error) {
	m, err := r.Store.Memberships().GetMembership(ctx, userID, organisationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotAMember
		}
		return "", err
	}
	return m.Role, nil
}

// MembershipsOf lists every organisation the user belongs to, oldest first.
// Used at login and organisation switch only.
func (r *MembershipRegistry) MembershipsOf(ctx context.Context, userID string) ([]domain.MembershipView, error) {
	return r.Store.Memberships().ListMembershipsByUser(ctx, userID)
}

func (r *MembershipRegistry) Add(ctx context.Context, userID, organisationID string, role domain.Role) (domain.Membership, error) {
	if !role.Valid() {
		return domain.Membership{}, invalidInput("unknown role %q", role)
	}
	now := r.Clock.now()
	m := domain.Membership{
		UserID:         userID,
		OrganisationID: organisationID,
		Role:           role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Store.Memberships().CreateMembership(ctx, m); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Membership{}, invalidInput("user is already a member")
		}
		return domain.Membership{}, err
	}
	return m, nil
}

// ChangeRole takes effect on the next refresh, or immediately for checks
// that ask for a fresh role.
func (r *MembershipRegistry) ChangeRole(ctx context.Context, userID, organisationID string, role domain.Role) error {
	if !role.Valid() {
		return invalidInput("unknown role %q", role)
	}
	err := r.Store.Memberships().UpdateMembershipRole(ctx, userID, organisationID, role, r.Clock.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotAMember
	}
	if err == nil {
		slogx.FromContext(ctx).Info("membership role changed",
			slog.String("user_id", userID),
			slog.String("organisation_id", organisationID),
			slog.String("role", string(role)),
		)
	}
	return err
}

// Remove deletes the membership. Live refresh families scoped to the
// organisation are revoked on their next rotation.
func (r *MembershipRegistry) Remove(ctx context.Context, userID, organisationID string) error {
	err := r.Store.Memberships().DeleteMembership(ctx, userID, organisationID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotAMember
	}
	return err
}
