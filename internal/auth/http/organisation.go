package http

import (
	"errors"
	"net/http"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/authsdk"
	"github.com/finsightai/finsight/pkg/httpx"
)

// OrganisationHandler manages memberships of the caller's current
// organisation. Callers can never grant or touch a role above their own.
type OrganisationHandler struct {
	Users       *service.UserService
	Memberships *service.MembershipRegistry
}

// HandleAdd serves POST /v1/organisation/members.
func (h *OrganisationHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac, ok := AuthFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.AddMemberRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	role, valid := domain.ParseRole(req.Role)
	if req.Email == "" || !valid {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if !ac.Role.AtLeast(role) {
		authsdk.ErrInsufficientRole.WriteError(w)
		return
	}

	user, err := h.Users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeInvalidRequest, "no user with that email").WriteError(w)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	m, err := h.Memberships.Add(ctx, user.ID, ac.OrganisationID, role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.MemberResponse{
		UserID:         m.UserID,
		OrganisationID: m.OrganisationID,
		Role:           string(m.Role),
	})
}

// HandleChangeRole serves PUT /v1/organisation/members/{user_id}.
func (h *OrganisationHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac, ok := AuthFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	target := r.PathValue("user_id")
	var req authsdk.ChangeRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	role, valid := domain.ParseRole(req.Role)
	if !valid || target == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if target == ac.UserID {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "cannot change your own role").WriteError(w)
		return
	}

	if err := h.Memberships.ChangeRole(ctx, target, ac.OrganisationID, role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MemberResponse{
		UserID:         target,
		OrganisationID: ac.OrganisationID,
		Role:           string(role),
	})
}

// HandleRemove serves DELETE /v1/organisation/members/{user_id}.
func (h *OrganisationHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac, ok := AuthFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	target := r.PathValue("user_id")
	if target == "" || target == ac.UserID {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	current, err := h.Memberships.RoleOf(ctx, target, ac.OrganisationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ac.Role.AtLeast(current) {
		authsdk.ErrInsufficientRole.WriteError(w)
		return
	}

	if err := h.Memberships.Remove(ctx, target, ac.OrganisationID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
