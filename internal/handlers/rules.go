package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"event-router/internal/common/errors"
	"event-router/internal/models"
	"event-router/internal/routing"
	"event-router/internal/storage"
)

const defaultRulePriority = 100

// CreateRule creates a routing rule for a tenant.
// POST /api/tenants/{tenantID}/rules
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	var req models.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}

	if err := validateRuleRequest(&req); err != nil {
		h.writeError(w, err)
		return
	}

	now := time.Now().UTC()
	rule := &storage.RoutingRule{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		Name:              req.Name,
		EventTypeFilter:   req.EventTypeFilter,
		Condition:         req.Condition,
		DestinationType:   req.DestinationType,
		DestinationConfig: req.DestinationConfig,
		Priority:          defaultRulePriority,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if rule.Condition == nil {
		rule.Condition = map[string]interface{}{}
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.storage.CreateRoutingRule(r.Context(), rule); err != nil {
		h.writeError(w, err)
		return
	}

	h.evaluator.InvalidateTenant(r.Context(), tenantID)
	writeJSON(w, http.StatusCreated, models.ToRuleResponse(rule))
}

// GetRule returns one rule.
// GET /api/tenants/{tenantID}/rules/{ruleID}
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.tenantRule(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ToRuleResponse(rule))
}

// ListRules returns all of a tenant's rules in priority order.
// GET /api/tenants/{tenantID}/rules
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	rules, err := h.storage.ListRoutingRules(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	responses := make([]*models.RuleResponse, len(rules))
	for i, rule := range rules {
		responses[i] = models.ToRuleResponse(rule)
	}

	writeJSON(w, http.StatusOK, responses)
}

// UpdateRule replaces a rule's mutable fields.
// PUT /api/tenants/{tenantID}/rules/{ruleID}
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.tenantRule(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req models.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}

	if err := validateRuleRequest(&req); err != nil {
		h.writeError(w, err)
		return
	}

	rule.Name = req.Name
	rule.EventTypeFilter = req.EventTypeFilter
	rule.Condition = req.Condition
	if rule.Condition == nil {
		rule.Condition = map[string]interface{}{}
	}
	rule.DestinationType = req.DestinationType
	rule.DestinationConfig = req.DestinationConfig
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := h.storage.UpdateRoutingRule(r.Context(), rule); err != nil {
		h.writeError(w, err)
		return
	}

	h.evaluator.InvalidateTenant(r.Context(), rule.TenantID)
	writeJSON(w, http.StatusOK, models.ToRuleResponse(rule))
}

// DeleteRule removes a rule.
// DELETE /api/tenants/{tenantID}/rules/{ruleID}
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.tenantRule(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.storage.DeleteRoutingRule(r.Context(), rule.ID); err != nil {
		h.writeError(w, err)
		return
	}

	h.evaluator.InvalidateTenant(r.Context(), rule.TenantID)
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRule activates or deactivates a rule.
// POST /api/tenants/{tenantID}/rules/{ruleID}/toggle
func (h *Handlers) ToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.tenantRule(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.storage.SetRoutingRuleActive(r.Context(), rule.ID, !rule.IsActive); err != nil {
		h.writeError(w, err)
		return
	}
	rule.IsActive = !rule.IsActive

	h.evaluator.InvalidateTenant(r.Context(), rule.TenantID)
	writeJSON(w, http.StatusOK, models.ToRuleResponse(rule))
}

// tenantRule loads the rule from the path and enforces tenant scoping.
func (h *Handlers) tenantRule(r *http.Request) (*storage.RoutingRule, error) {
	vars := mux.Vars(r)

	rule, err := h.storage.GetRoutingRule(r.Context(), vars["ruleID"])
	if err != nil {
		return nil, err
	}
	if rule.TenantID != vars["tenantID"] {
		return nil, errors.NotFoundError("routing rule")
	}
	return rule, nil
}

func validateRuleRequest(req *models.RuleRequest) error {
	if req.Name == "" {
		return errors.ValidationError("rule name must not be empty")
	}
	if !storage.ValidDestinationType(req.DestinationType) {
		return errors.ValidationError("destination_type must be one of webhook, table, queue")
	}
	if req.Condition != nil {
		if err := routing.ValidateCondition(req.Condition); err != nil {
			return err
		}
	}
	return nil
}
