// Package calculate exposes the pricing engine over HTTP.
package calculate

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/pipeline"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/store"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

var orchestrator *pipeline.Orchestrator
var resultRepo *store.ResultRepo

// InitHandler wires the handlers to a running pipeline.
func InitHandler(orc *pipeline.Orchestrator) {
	orchestrator = orc
	resultRepo = store.NewResultRepo()
}

// errorBody is the JSON error shape returned by every handler.
type errorBody struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind"`
	Violations []string `json:"violations,omitempty"`
}

// HandleCalculate runs one calculation: POST /v1/calculate.
func HandleCalculate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.WrapError(models.ErrInvalidInput, "malformed request body", err))
		return
	}

	resp, err := orchestrator.Calculate(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleResult returns the last committed result for a proposal:
// GET /v1/results?proposalId=...
func HandleResult(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	proposalID := r.URL.Query().Get("proposalId")
	if proposalID == "" {
		writeError(w, models.NewError(models.ErrInvalidInput, "proposalId query parameter is required"))
		return
	}

	raw, err := resultRepo.LookupByProposal(r.Context(), proposalID)
	if err != nil {
		writeError(w, models.WrapError(models.ErrDatabase, "look up result", err))
		return
	}
	if raw == nil {
		writeError(w, models.NewErrorf(models.ErrDataFetch, "no result for proposal %s", proposalID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: string(kind)}
	var ee *models.Error
	if errors.As(err, &ee) {
		body.Violations = ee.Violations
	}
	writeJSON(w, StatusForKind(kind), body)
}

// StatusForKind maps the error taxonomy onto HTTP statuses.
func StatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrInvalidInput, models.ErrInvalidMargin, models.ErrRuleCompile:
		return http.StatusUnprocessableEntity
	case models.ErrResourceLimit, models.ErrTimeout:
		return http.StatusTooManyRequests
	case models.ErrRuleEval:
		return http.StatusUnprocessableEntity
	case models.ErrDataFetch:
		return http.StatusNotFound
	case models.ErrDatabase, models.ErrEventPublish, models.ErrWebhook:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
