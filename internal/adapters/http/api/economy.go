package api

import (
	"context"
	"net/http"

	service "github.com/okian/gubs/internal/app"
	"github.com/okian/gubs/internal/domain/catalog"
)

// EconomyDependencies defines the player-facing economy operations.
type EconomyDependencies interface {
	SyncGubs(ctx context.Context, uid string, req service.SyncRequest) (service.SyncResult, error)
	PurchaseItem(ctx context.Context, uid string, req service.PurchaseItemRequest) (service.PurchaseItemResult, error)
	PurchaseUpgrade(ctx context.Context, uid string, req service.PurchaseUpgradeRequest) (service.PurchaseUpgradeResult, error)
	SetUsername(ctx context.Context, uid string, req service.UsernameRequest) (service.Profile, error)
	State(ctx context.Context, uid string) (State, error)
	Catalog() *catalog.Catalog
}

// EconomyHandler serves the authenticated /v1 economy routes.
type EconomyHandler struct {
	deps EconomyDependencies
}

// NewEconomyHandler creates a new economy handler.
func NewEconomyHandler(deps EconomyDependencies) *EconomyHandler {
	return &EconomyHandler{deps: deps}
}

// HandleSync handles POST /v1/sync.
func (h *EconomyHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req service.SyncRequest
	if err := decode(w, r, "syncGubs", &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := h.deps.SyncGubs(r.Context(), UIDFromContext(r.Context()), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePurchaseItem handles POST /v1/purchase/item.
func (h *EconomyHandler) HandlePurchaseItem(w http.ResponseWriter, r *http.Request) {
	var req service.PurchaseItemRequest
	if err := decode(w, r, "purchaseItem", &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := h.deps.PurchaseItem(r.Context(), UIDFromContext(r.Context()), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePurchaseUpgrade handles POST /v1/purchase/upgrade.
func (h *EconomyHandler) HandlePurchaseUpgrade(w http.ResponseWriter, r *http.Request) {
	var req service.PurchaseUpgradeRequest
	if err := decode(w, r, "purchaseUpgrade", &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := h.deps.PurchaseUpgrade(r.Context(), UIDFromContext(r.Context()), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSetUsername handles PUT /v1/profile/username.
func (h *EconomyHandler) HandleSetUsername(w http.ResponseWriter, r *http.Request) {
	var req service.UsernameRequest
	if err := decode(w, r, "setUsername", &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := h.deps.SetUsername(r.Context(), UIDFromContext(r.Context()), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleState handles GET /v1/state.
func (h *EconomyHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.State(r.Context(), UIDFromContext(r.Context()))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleCatalog handles GET /v1/catalog.
func (h *EconomyHandler) HandleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Catalog())
}
