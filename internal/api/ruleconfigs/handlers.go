// internal/api/ruleconfigs/handlers.go

// Package ruleconfigs exposes the admin endpoints for per-facility rule
// configuration rows. Payloads are validated against the rule's schema
// before they are stored, so the engine never has to reject a row it
// wrote itself.
package ruleconfigs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/api/apiutil"
	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/store"
)

var (
	st       *store.Store
	initOnce sync.Once
)

const configQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s *store.Store) {
	if s == nil {
		return
	}
	initOnce.Do(func() {
		st = s
	})
}

type ruleConfigBody struct {
	FacilityID int64           `json:"facility_id"`
	RuleCode   string          `json:"rule_code"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	CourtIDs   []int64         `json:"court_ids,omitempty"`
	TierIDs    []int64         `json:"tier_ids,omitempty"`
}

type ruleConfigResponse struct {
	ID         int64           `json:"id"`
	FacilityID int64           `json:"facility_id"`
	RuleCode   string          `json:"rule_code"`
	Enabled    bool            `json:"enabled"`
	Config     json.RawMessage `json:"config"`
	CourtIDs   []int64         `json:"court_ids,omitempty"`
	TierIDs    []int64         `json:"tier_ids,omitempty"`
}

func toResponse(c models.FacilityRuleConfig) ruleConfigResponse {
	config := c.Config
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	return ruleConfigResponse{
		ID:         c.ID,
		FacilityID: c.FacilityID,
		RuleCode:   c.RuleCode,
		Enabled:    c.Enabled,
		Config:     config,
		CourtIDs:   c.CourtIDs,
		TierIDs:    c.TierIDs,
	}
}

// GET /api/v1/admin/rule-configs?facility_id=N
func HandleList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if st == nil {
		logger.Error().Msg("Rule config handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	facilityID, err := apiutil.FacilityIDFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), configQueryTimeout)
	defer cancel()

	configs, err := st.ListRuleConfigs(ctx, facilityID)
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", facilityID).Msg("Failed to list rule configs")
		http.Error(w, "Failed to list rule configs", http.StatusInternalServerError)
		return
	}

	out := make([]ruleConfigResponse, 0, len(configs))
	for _, c := range configs {
		out = append(out, toResponse(c))
	}
	apiutil.WriteJSON(w, http.StatusOK, out)
}

// PUT /api/v1/admin/rule-configs
func HandleUpsert(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if st == nil {
		logger.Error().Msg("Rule config handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body ruleConfigBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.FacilityID <= 0 {
		http.Error(w, "facility_id must be a positive integer", http.StatusBadRequest)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(body.RuleCode))
	if code == "" {
		http.Error(w, "rule_code is required", http.StatusBadRequest)
		return
	}

	config := body.Config
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	if err := rules.ValidateRuleConfig(code, config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	ctx, cancel := context.WithTimeout(r.Context(), configQueryTimeout)
	defer cancel()

	row := models.FacilityRuleConfig{
		FacilityID: body.FacilityID,
		RuleCode:   code,
		Enabled:    enabled,
		Config:     config,
		CourtIDs:   body.CourtIDs,
		TierIDs:    body.TierIDs,
	}
	id, err := st.UpsertRuleConfig(ctx, row)
	if err != nil {
		logger.Error().Err(err).
			Int64("facility_id", body.FacilityID).
			Str("rule_code", code).
			Msg("Failed to upsert rule config")
		http.Error(w, "Failed to save rule config", http.StatusInternalServerError)
		return
	}
	row.ID = id

	logger.Info().
		Int64("facility_id", body.FacilityID).
		Str("rule_code", code).
		Bool("enabled", enabled).
		Msg("Rule config saved")
	apiutil.WriteJSON(w, http.StatusOK, toResponse(row))
}

// DELETE /api/v1/admin/rule-configs?facility_id=N&rule_code=ACC-001
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodDelete {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if st == nil {
		logger.Error().Msg("Rule config handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	facilityID, err := apiutil.FacilityIDFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("rule_code")))
	if code == "" {
		http.Error(w, "rule_code is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), configQueryTimeout)
	defer cancel()

	if err := st.DeleteRuleConfig(ctx, facilityID, code); err != nil {
		if errors.Is(err, store.ErrNoRuleConfig) {
			http.Error(w, "Rule config not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).
			Int64("facility_id", facilityID).
			Str("rule_code", code).
			Msg("Failed to delete rule config")
		http.Error(w, "Failed to delete rule config", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
