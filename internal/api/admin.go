package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farkleio/tablecore/internal/admin"
	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/identity"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/store"
)

// AdminHandler registers the admin-plane HTTP endpoints.
type AdminHandler struct {
	World *store.World
	Membership *membership.Service
	Bootstrap config.BootstrapConfig
	Audit config.AuditConfig
}

// NewAdminHandler wires an AdminHandler.
func NewAdminHandler(world *store.World, mem *membership.Service, bootstrap config.BootstrapConfig, audit config.AuditConfig) *AdminHandler {
	return &AdminHandler{World: world, Membership: mem, Bootstrap: bootstrap, Audit: audit}
}

// RegisterRoutes registers every admin-plane route under /admin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(identity.Middleware())
		r.Post("/roles/{uid}", h.UpsertRole)
		r.Post("/sessions/{id}/expire", h.ExpireSession)
		r.Post("/sessions/{id}/participants/{pid}/remove", h.RemoveParticipant)
		r.Post("/sessions/{id}/conduct/{pid}/clear", h.ClearConductPlayer)
		r.Post("/sessions/{id}/conduct/clear", h.ClearConductState)
		r.Get("/audit", h.ListAudit)
	})
}

// resolveCaller authorizes the acting identity against required,
// returning the caller's uid or writing a 401/403 and false.
func (h *AdminHandler) resolveCaller(w http.ResponseWriter, r *http.Request, required domain.AdminRole) (string, bool) {
	uid := identity.AdminUIDFromContext(r.Context())
	if uid == "" {
		Error(w, http.StatusUnauthorized, apperr.ErrUnauthorized)
		return "", false
	}
	email := identity.AdminEmailFromContext(r.Context())
	resolved := admin.ResolveAdminRoleForIdentity(h.World, h.Bootstrap, uid, email)
	if !admin.HasRequiredAdminRole(resolved.Role, required) {
		Error(w, http.StatusForbidden, apperr.ErrMissingAdminRole)
		return "", false
	}
	return uid, true
}

type upsertRoleBody struct {
	Role string `json:"role"`
}

// UpsertRole implements POST /admin/roles/:uid.
func (h *AdminHandler) UpsertRole(w http.ResponseWriter, r *http.Request) {
	actorUID, ok := h.resolveCaller(w, r, domain.AdminRoleOwner)
	if !ok {
		return
	}
	var body upsertRoleBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	role := admin.NormalizeAdminRole(body.Role)
	if role == nil {
		Error(w, http.StatusBadRequest, apperr.ErrInvalidAdminRole)
		return
	}
	targetUID := chi.URLParam(r, "uid")
	if err := admin.UpsertRole(h.World, h.Bootstrap, targetUID, *role, actorUID, time.Now()); err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"uid": targetUID, "role": *role})
}

// ExpireSession implements POST /admin/sessions/:id/expire.
func (h *AdminHandler) ExpireSession(w http.ResponseWriter, r *http.Request) {
	actorUID, ok := h.resolveCaller(w, r, domain.AdminRoleOperator)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "id")
	roomInventoryChanged, err := admin.ExpireSession(h.World, h.Membership.Rooms, actorUID, sessionID, time.Now())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessionId": sessionID, "roomInventoryChanged": roomInventoryChanged})
}

// RemoveParticipant implements the admin-invoked forced removal,
// delegated to membership's sole deletion path.
func (h *AdminHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	actorUID, ok := h.resolveCaller(w, r, domain.AdminRoleOperator)
	if !ok {
		return
	}
	sessionID, targetID := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
	if err := admin.RemoveParticipant(h.Membership, actorUID, sessionID, targetID, time.Now()); err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessionId": sessionID, "removed": targetID})
}

// ClearConductPlayer resets one player's chat-conduct record.
func (h *AdminHandler) ClearConductPlayer(w http.ResponseWriter, r *http.Request) {
	actorUID, ok := h.resolveCaller(w, r, domain.AdminRoleOperator)
	if !ok {
		return
	}
	sessionID, targetID := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
	if err := admin.ClearSessionConductPlayer(h.World, actorUID, sessionID, targetID, time.Now()); err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessionId": sessionID, "cleared": targetID})
}

// ClearConductState resets every player's chat-conduct record for a session.
func (h *AdminHandler) ClearConductState(w http.ResponseWriter, r *http.Request) {
	actorUID, ok := h.resolveCaller(w, r, domain.AdminRoleOperator)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "id")
	if err := admin.ClearSessionConductState(h.World, actorUID, sessionID, time.Now()); err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessionId": sessionID, "cleared": "all"})
}

// ListAudit implements a viewer-level audit-log listing, bounded per
// AuditConfig.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveCaller(w, r, domain.AdminRoleViewer); !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries := admin.ListAudit(h.World, admin.AuditListOpts{
		SessionID: r.URL.Query().Get("sessionId"),
		PlayerID: r.URL.Query().Get("playerId"),
		RequestLimit: limit,
		DefaultLimit: h.Audit.DefaultLimit,
		HardCap: h.Audit.HardCap,
	})
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
