package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/idx"
	"github.com/finsightai/finsight/pkg/slogx"
)

const MinPasswordLength = 8

type RegisterInput struct {
	Email            string
	Password         string
	FullName         string
	OrganisationName string
}

type LoginInput struct {
	Email    string
	Password string
	// OrganisationID selects the tenant. Empty picks the user's oldest
	// membership.
	OrganisationID string
}

type UserService struct {
	Store       store.Store
	Hasher      *cryptox.PasswordHasher
	Tokens      *TokenService
	Memberships *MembershipRegistry
	Ledger      *SubscriptionLedger
	Clock       Clock

	// dummyHash is verified against when the email is unknown so both
	// failure paths cost the same.
	dummyOnce sync.Once
	dummyHash string
}

// Register creates the user, their organisation, an owner membership and
// a trial subscription in one transaction.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, domain.Organisation, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, domain.Organisation{}, invalidInput("invalid email address")
	}
	if len(in.Password) < MinPasswordLength {
		return domain.User{}, domain.Organisation{}, invalidInput("password must be at least %d characters", MinPasswordLength)
	}
	orgName := strings.TrimSpace(in.OrganisationName)
	slug := domain.Slugify(orgName)
	if slug == "" {
		return domain.User{}, domain.Organisation{}, invalidInput("organisation name is required")
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, domain.Organisation{}, err
	}

	now := s.Clock.now()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	org := domain.Organisation{
		ID:        idx.New().String(),
		Name:      orgName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return err
		}

		// Slugs are unique; a clash gets the id suffix.
		for _, candidate := range []string{slug, slug + "-" + strings.ToLower(org.ID[len(org.ID)-6:])} {
			org.Slug = candidate
			created, err := tx.Organisations().TryCreateOrganisation(ctx, org)
			if err != nil {
				return fmt.Errorf("create organisation: %w", err)
			}
			if created {
				break
			}
			org.Slug = ""
		}
		if org.Slug == "" {
			return fmt.Errorf("create organisation: slug %q and its suffixed form are taken", slug)
		}

		if _, err := s.Memberships.In(tx).Add(ctx, user.ID, org.ID, domain.RoleOwner); err != nil {
			return err
		}
		_, err := s.Ledger.In(tx).StartTrial(ctx, org.ID)
		return err
	})
	if err != nil {
		return domain.User{}, domain.Organisation{}, err
	}

	slogx.FromContext(ctx).Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("organisation_id", org.ID),
	)
	return user, org, nil
}

// Authenticate never says which factor failed, and treats disabled
// accounts like wrong passwords.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.burnHash(password)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("password verification failed", slog.String("user_id", user.ID))
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.Active() {
		slogx.FromContext(ctx).Info("login attempt on disabled account", slog.String("user_id", user.ID))
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a pair for the chosen organisation.
func (s *UserService) Login(ctx context.Context, in LoginInput) (domain.TokenPair, error) {
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return domain.TokenPair{}, err
	}

	orgID := strings.TrimSpace(in.OrganisationID)
	if orgID == "" {
		ms, err := s.Memberships.MembershipsOf(ctx, user.ID)
		if err != nil {
			return domain.TokenPair{}, err
		}
		if len(ms) == 0 {
			return domain.TokenPair{}, ErrNotAMember
		}
		orgID = ms[0].OrganisationID
	}
	return s.Tokens.IssueInitialPair(ctx, user, orgID)
}

func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// GetUserByEmail looks a user up by address. Unknown addresses are
// store.ErrNotFound.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.Store.Users().GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// Disable locks the user out. Live refresh families fail on their next
// rotation.
func (s *UserService) Disable(ctx context.Context, userID string) error {
	return s.Store.Users().UpdateUserStatus(ctx, userID, domain.UserStatusDisabled, s.Clock.now())
}

func (s *UserService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("not-a-real-password")
	})
	if s.dummyHash != "" {
		_ = s.Hasher.Verify(password, s.dummyHash)
	}
}
