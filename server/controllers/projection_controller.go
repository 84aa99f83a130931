package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"dao-service/core"
)

// ProjectionController serves read access to the materialized chain state.
type ProjectionController struct {
	store *core.Store
}

// NewProjectionController wires a controller over the projection store.
func NewProjectionController(store *core.Store) *ProjectionController {
	return &ProjectionController{store: store}
}

// Ping answers the load balancer health probe.
func (c *ProjectionController) Ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// ListDaos returns all Daos with limit/offset pagination.
func (c *ProjectionController) ListDaos(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	offset := queryInt(r, "offset", 0)
	var daos []core.Dao
	if err := c.store.DB().Order("id").Limit(limit).Offset(offset).Find(&daos).Error; err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, daos)
}

// GetDao returns one Dao by id.
func (c *ProjectionController) GetDao(w http.ResponseWriter, r *http.Request) {
	var dao core.Dao
	err := c.store.DB().Where("id = ?", chi.URLParam(r, "id")).First(&dao).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, errors.New("dao not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, dao)
}

// GetProposal returns one Proposal by id together with its votes.
func (c *ProjectionController) GetProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var proposal core.Proposal
	err := c.store.DB().Where("id = ?", id).First(&proposal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, errors.New("proposal not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var votes []core.Vote
	if err := c.store.DB().Where("proposal_id = ?", id).Order("voter_id").Find(&votes).Error; err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{"proposal": proposal, "votes": votes})
}

// GetAsset returns one Asset by id together with its holdings.
func (c *ProjectionController) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid asset id"))
		return
	}
	var asset core.Asset
	err = c.store.DB().Where("id = ?", id).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, errors.New("asset not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var holdings []core.AssetHolding
	if err := c.store.DB().Where("asset_id = ?", id).Order("owner_id").Find(&holdings).Error; err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{"asset": asset, "holdings": holdings})
}

// Health reports whether the database and the chain node are reachable.
func (c *ProjectionController) Health(checkChain func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		details := map[string]bool{
			"database":   c.store.DB().Exec("SELECT 1").Error == nil,
			"blockchain": checkChain(),
		}
		status, code := "passed", http.StatusOK
		for _, ok := range details {
			if !ok {
				status, code = "failed", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "details": details})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
