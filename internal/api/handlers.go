package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/stock-screener/internal/export"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/mohamedkhairy/stock-screener/internal/screener"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// ScreenRunner compiles and runs rule trees
type ScreenRunner interface {
	Compile(ast *models.Node) models.QueryPlan
	Run(ctx context.Context, ast *models.Node, limit int) (models.RunResult, error)
	RunRule(ctx context.Context, rule *models.SavedRule) (models.RunResult, error)
}

// Reloader resyncs scheduled jobs after rule changes
type Reloader interface {
	Reload(ctx context.Context) error
}

var validate = validator.New()

// RunRequest is the body of POST /api/v1/run
type RunRequest struct {
	AST   *models.Node `json:"ast" validate:"required"`
	Limit int          `json:"limit" validate:"gte=0,lte=1000"`
}

// CompileRequest is the body of POST /api/v1/compile
type CompileRequest struct {
	AST *models.Node `json:"ast" validate:"required"`
}

// CompileResponse is a compiled plan plus the condition ids the compiler
// does not know
type CompileResponse struct {
	Plan    models.QueryPlan `json:"plan"`
	Unknown []string         `json:"unknown,omitempty"`
}

// RuleRequest is the body of rule create and update calls
type RuleRequest struct {
	ID       string       `json:"id,omitempty" validate:"omitempty,max=64"`
	Name     string       `json:"name" validate:"required,max=200"`
	AST      *models.Node `json:"ast" validate:"required"`
	Schedule string       `json:"schedule,omitempty"`
	Limit    int          `json:"limit,omitempty" validate:"gte=0,lte=1000"`
	Enabled  *bool        `json:"enabled,omitempty"`
}

func (req *RuleRequest) toRule() *models.SavedRule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &models.SavedRule{
		ID:       req.ID,
		Name:     strings.TrimSpace(req.Name),
		AST:      req.AST,
		Schedule: strings.TrimSpace(req.Schedule),
		Limit:    req.Limit,
		Enabled:  enabled,
	}
}

// decodeRequest decodes and validates a JSON body
func decodeRequest(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid field %s: failed %s", strings.ToLower(fe.Field()), fe.Tag())
		}
		return err
	}
	return nil
}

// respondWithRunError maps run errors to HTTP responses
func respondWithRunError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.WithContext(r.Context())

	var cfgErr *screener.ConfigurationError
	var baseErr *screener.BaseQueryError
	switch {
	case errors.As(err, &cfgErr):
		log.Error("Run rejected", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Missing FMP_API_KEY")
	case errors.As(err, &baseErr):
		log.Warn("Base query failed", logger.ErrorField(err))
		respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  baseErr.Message(),
			"detail": baseErr.Detail,
		})
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("Run timed out", logger.ErrorField(err))
		respondWithError(w, http.StatusGatewayTimeout, "Run timed out")
	default:
		log.Error("Run failed", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Run failed")
	}
}

// ScreenerHandler handles ad-hoc run, compile and catalog endpoints
type ScreenerHandler struct {
	runner  ScreenRunner
	timeout time.Duration
}

// NewScreenerHandler creates a screener handler. A zero timeout leaves runs
// bounded only by the client.
func NewScreenerHandler(runner ScreenRunner, timeout time.Duration) *ScreenerHandler {
	return &ScreenerHandler{runner: runner, timeout: timeout}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// Run handles POST /api/v1/run
func (h *ScreenerHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.AST.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := withTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx, req.AST, req.Limit)
	if err != nil {
		respondWithRunError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Compile handles POST /api/v1/compile
func (h *ScreenerHandler) Compile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	unknown, err := rules.ValidateAST(req.AST)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, CompileResponse{
		Plan:    h.runner.Compile(req.AST),
		Unknown: unknown,
	})
}

// Conditions handles GET /api/v1/conditions
func (h *ScreenerHandler) Conditions(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("group") {
	case "":
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"conditions": rules.Catalog(),
		})
	case "category":
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"categories": rules.Categories(),
			"groups":     rules.CatalogByCategory(),
		})
	default:
		respondWithError(w, http.StatusBadRequest, "group must be category")
	}
}

// RuleHandler handles saved rule endpoints
type RuleHandler struct {
	ruleStore rules.RuleStore
	runner    ScreenRunner
	sink      export.Sink
	reloader  Reloader
	timeout   time.Duration
}

// NewRuleHandler creates a new rule handler. sink and reloader may be nil.
func NewRuleHandler(ruleStore rules.RuleStore, runner ScreenRunner, sink export.Sink, reloader Reloader, timeout time.Duration) *RuleHandler {
	return &RuleHandler{
		ruleStore: ruleStore,
		runner:    runner,
		sink:      sink,
		reloader:  reloader,
		timeout:   timeout,
	}
}

func (h *RuleHandler) reload(r *http.Request) {
	if h.reloader == nil {
		return
	}
	if err := h.reloader.Reload(r.Context()); err != nil {
		// Don't fail the request; the periodic reload catches up
		logger.WithContext(r.Context()).Warn("Failed to reload schedules", logger.ErrorField(err))
	}
}

func (h *RuleHandler) respondWithStoreError(w http.ResponseWriter, r *http.Request, err error, action string) {
	if errors.Is(err, models.ErrRuleNotFound) {
		respondWithError(w, http.StatusNotFound, "Rule not found")
		return
	}
	logger.WithContext(r.Context()).Error("Rule store error",
		logger.String("action", action),
		logger.ErrorField(err),
	)
	respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s rule", action))
}

// ListRules handles GET /api/v1/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	allRules, err := h.ruleStore.GetAllRules(r.Context())
	if err != nil {
		h.respondWithStoreError(w, r, err, "list")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"rules": allRules,
		"count": len(allRules),
	})
}

// GetRule handles GET /api/v1/rules/{id}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.ruleStore.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithStoreError(w, r, err, "get")
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/v1/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := req.toRule()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := rules.ValidateRule(rule); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.ruleStore.GetRule(r.Context(), rule.ID); err == nil {
		respondWithError(w, http.StatusConflict, "Rule already exists")
		return
	}

	if err := h.ruleStore.AddRule(r.Context(), rule); err != nil {
		h.respondWithStoreError(w, r, err, "create")
		return
	}
	h.reload(r)

	logger.WithContext(r.Context()).Info("Rule created",
		logger.String("rule_id", rule.ID),
		logger.String("rule_name", rule.Name),
	)

	created, err := h.ruleStore.GetRule(r.Context(), rule.ID)
	if err != nil {
		created = rule
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// UpdateRule handles PUT /api/v1/rules/{id}
func (h *RuleHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]

	var req RuleRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := req.toRule()
	rule.ID = ruleID
	if err := rules.ValidateRule(rule); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ruleStore.UpdateRule(r.Context(), rule); err != nil {
		h.respondWithStoreError(w, r, err, "update")
		return
	}
	h.reload(r)

	logger.WithContext(r.Context()).Info("Rule updated", logger.String("rule_id", ruleID))

	updated, err := h.ruleStore.GetRule(r.Context(), ruleID)
	if err != nil {
		updated = rule
	}
	respondWithJSON(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]

	if err := h.ruleStore.DeleteRule(r.Context(), ruleID); err != nil {
		h.respondWithStoreError(w, r, err, "delete")
		return
	}
	h.reload(r)

	logger.WithContext(r.Context()).Info("Rule deleted", logger.String("rule_id", ruleID))
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Rule deleted"})
}

// RunRule handles POST /api/v1/rules/{id}/run. The result is also pushed
// to the sink so subscribers see manual runs.
func (h *RuleHandler) RunRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.ruleStore.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithStoreError(w, r, err, "get")
		return
	}

	ctx, cancel := withTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.runner.RunRule(ctx, rule)
	if err != nil {
		respondWithRunError(w, r, err)
		return
	}

	if h.sink != nil {
		if err := h.sink.Publish(ctx, result); err != nil {
			logger.WithContext(ctx).Warn("Failed to export run result", logger.ErrorField(err))
		}
	}
	respondWithJSON(w, http.StatusOK, result)
}
