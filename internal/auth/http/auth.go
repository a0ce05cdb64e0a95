package http

import (
	"errors"
	"net/http"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/pkg/authsdk"
	"github.com/finsightai/finsight/pkg/httpx"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	Users       *service.UserService
	Tokens      *service.TokenService
	Memberships *service.MembershipRegistry
}

func tokenResponse(pair domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        int(pair.ExpiresIn.Seconds()),
		RefreshExpiresIn: int(pair.RefreshExpiresIn.Seconds()),
		OrganisationID:   pair.OrganisationID,
		Role:             string(pair.Role),
		Tier:             string(pair.Tier),
	}
}

// HandleRegister serves POST /v1/auth/register. The new user owns a new
// organisation on a trial and is signed straight in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	user, org, err := h.Users.Register(ctx, service.RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		FullName:         req.FullName,
		OrganisationName: req.OrganisationName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pair, err := h.Tokens.IssueInitialPair(ctx, user, org.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.RegisterResponse{
		UserID:         user.ID,
		OrganisationID: org.ID,
		Tokens:         tokenResponse(pair),
	})
}

// HandleLogin serves POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Users.Login(r.Context(), service.LoginInput{
		Email:          req.Email,
		Password:       req.Password,
		OrganisationID: req.OrganisationID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh serves POST /v1/auth/refresh. Every refresh failure looks
// the same to the caller.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Tokens.Refresh(r.Context(), req.RefreshToken)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
	case errors.Is(err, service.ErrTokenUnknown),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenReuseDetected),
		errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrNotAMember):
		authsdk.ErrInvalidGrant.WriteError(w)
	default:
		writeServiceError(w, r, err)
	}
}

// HandleLogout serves POST /v1/auth/logout. It always answers 204 for a
// well-formed request.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.Tokens.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSwitchOrganisation serves POST /v1/auth/switch-organisation.
func (h *AuthHandler) HandleSwitchOrganisation(w http.ResponseWriter, r *http.Request) {
	ac, ok := AuthFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.SwitchOrganisationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.OrganisationID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Tokens.SwitchOrganisation(r.Context(), ac.UserID, req.OrganisationID, req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleMe serves GET /v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac, ok := AuthFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.Users.GetUserByID(ctx, ac.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views, err := h.Memberships.MembershipsOf(ctx, ac.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	memberships := make([]authsdk.MembershipInfo, 0, len(views))
	for _, v := range views {
		memberships = append(memberships, authsdk.MembershipInfo{
			OrganisationID:   v.OrganisationID,
			OrganisationName: v.OrganisationName,
			Role:             string(v.Role),
		})
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
		UserID:         user.ID,
		Email:          user.Email,
		FullName:       user.FullName,
		OrganisationID: ac.OrganisationID,
		Role:           string(ac.Role),
		Tier:           string(ac.Tier),
		Memberships:    memberships,
	})
}
