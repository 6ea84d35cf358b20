package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/mohamedkhairy/stock-screener/internal/screener"
)

type fakeRunner struct {
	err      error
	lastAST  *models.Node
	lastRule *models.SavedRule
	limit    int
}

func (f *fakeRunner) Compile(ast *models.Node) models.QueryPlan {
	return rules.Compile(ast)
}

func (f *fakeRunner) Run(ctx context.Context, ast *models.Node, limit int) (models.RunResult, error) {
	f.lastAST = ast
	f.limit = limit
	if f.err != nil {
		return models.RunResult{}, f.err
	}
	return models.RunResult{
		Rows: []models.ScreenerRow{{Symbol: "AAA", Explain: []models.ExplainEntry{}}},
		AsOf: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeRunner) RunRule(ctx context.Context, rule *models.SavedRule) (models.RunResult, error) {
	f.lastRule = rule
	result, err := f.Run(ctx, rule.AST, rule.Limit)
	result.RuleID = rule.ID
	result.RuleName = rule.Name
	return result, err
}

type countingSink struct {
	published int
}

func (s *countingSink) Publish(context.Context, models.RunResult) error {
	s.published++
	return nil
}

func (s *countingSink) Close() error { return nil }

type countingReloader struct {
	calls int
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls++
	return nil
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (%s)", err, w.Body.String())
	}
	return body
}

const sampleAST = `{"type":"AND","children":[{"type":"condition","id":"base.exchange","params":{"value":"NYSE"}}]}`

func TestScreenerHandler_Run(t *testing.T) {
	runner := &fakeRunner{}
	handler := NewScreenerHandler(runner, time.Second)

	w := httptest.NewRecorder()
	handler.Run(w, postJSON("/api/v1/run", `{"ast":`+sampleAST+`,"limit":10}`))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if runner.limit != 10 || runner.lastAST == nil {
		t.Errorf("Expected runner to receive the request, got limit %d", runner.limit)
	}

	body := decodeBody(t, w)
	rows, ok := body["rows"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Errorf("Expected one row, got %v", body["rows"])
	}
	if body["asOf"] != "2026-03-02T15:00:00Z" {
		t.Errorf("Unexpected asOf %v", body["asOf"])
	}
}

func TestScreenerHandler_RunBadRequests(t *testing.T) {
	handler := NewScreenerHandler(&fakeRunner{}, 0)

	for name, body := range map[string]string{
		"not json":        `{`,
		"missing ast":     `{"limit":5}`,
		"limit too big":   `{"ast":` + sampleAST + `,"limit":5000}`,
		"empty and":       `{"ast":{"type":"AND","children":[]}}`,
		"unknown type":    `{"ast":{"type":"XOR","children":[]}}`,
		"condition no id": `{"ast":{"type":"condition"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Run(w, postJSON("/api/v1/run", body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestScreenerHandler_RunErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantError  string
		wantDetail string
	}{
		{
			name:      "missing key",
			err:       &screener.ConfigurationError{Err: models.ErrMissingCredentials},
			wantCode:  http.StatusInternalServerError,
			wantError: "Missing FMP_API_KEY",
		},
		{
			name:       "upstream failure",
			err:        &screener.BaseQueryError{Status: 503, Detail: "maintenance"},
			wantCode:   http.StatusBadGateway,
			wantError:  "Upstream 503",
			wantDetail: "maintenance",
		},
		{
			name:      "timeout",
			err:       context.DeadlineExceeded,
			wantCode:  http.StatusGatewayTimeout,
			wantError: "Run timed out",
		},
		{
			name:      "other",
			err:       errors.New("boom"),
			wantCode:  http.StatusInternalServerError,
			wantError: "Run failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewScreenerHandler(&fakeRunner{err: tt.err}, 0)
			w := httptest.NewRecorder()
			handler.Run(w, postJSON("/api/v1/run", `{"ast":`+sampleAST+`}`))

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			body := decodeBody(t, w)
			if body["error"] != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
			}
			if tt.wantDetail != "" && body["detail"] != tt.wantDetail {
				t.Errorf("Expected detail %q, got %v", tt.wantDetail, body["detail"])
			}
		})
	}
}

func TestScreenerHandler_Compile(t *testing.T) {
	handler := NewScreenerHandler(&fakeRunner{}, 0)

	body := `{"ast":{"type":"AND","children":[` +
		`{"type":"condition","id":"ta.rsi.lte","params":{"value":30}},` +
		`{"type":"condition","id":"fa.beta.gte","params":{"value":1}}]}}`
	w := httptest.NewRecorder()
	handler.Compile(w, postJSON("/api/v1/compile", body))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp CompileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Plan.Technical) != 1 {
		t.Errorf("Expected one technical filter, got %+v", resp.Plan.Technical)
	}
	if len(resp.Unknown) != 1 || resp.Unknown[0] != "fa.beta.gte" {
		t.Errorf("Expected unknown condition to be reported, got %v", resp.Unknown)
	}

	w = httptest.NewRecorder()
	handler.Compile(w, postJSON("/api/v1/compile", `{"ast":{"type":"OR"}}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for invalid AST, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestScreenerHandler_Conditions(t *testing.T) {
	handler := NewScreenerHandler(&fakeRunner{}, 0)

	w := httptest.NewRecorder()
	handler.Conditions(w, httptest.NewRequest("GET", "/api/v1/conditions", nil))
	body := decodeBody(t, w)
	conditions, ok := body["conditions"].([]interface{})
	if !ok || len(conditions) != len(rules.Catalog()) {
		t.Errorf("Expected full catalog, got %v", body)
	}

	w = httptest.NewRecorder()
	handler.Conditions(w, httptest.NewRequest("GET", "/api/v1/conditions?group=category", nil))
	body = decodeBody(t, w)
	groups, ok := body["groups"].(map[string]interface{})
	if !ok || groups[rules.CategoryTechnical] == nil {
		t.Errorf("Expected grouped catalog, got %v", body)
	}

	w = httptest.NewRecorder()
	handler.Conditions(w, httptest.NewRequest("GET", "/api/v1/conditions?group=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func newRuleHandler() (*RuleHandler, rules.RuleStore, *fakeRunner, *countingSink, *countingReloader) {
	store := rules.NewInMemoryRuleStore()
	runner := &fakeRunner{}
	sink := &countingSink{}
	reloader := &countingReloader{}
	return NewRuleHandler(store, runner, sink, reloader, time.Second), store, runner, sink, reloader
}

func TestRuleHandler_CreateAndList(t *testing.T) {
	handler, store, _, _, reloader := newRuleHandler()

	w := httptest.NewRecorder()
	handler.CreateRule(w, postJSON("/api/v1/rules", `{"name":"Value","ast":`+sampleAST+`,"schedule":"0 9 * * 1-5","limit":20}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var created models.SavedRule
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if created.ID == "" || !created.Enabled || created.CreatedAt.IsZero() {
		t.Errorf("Expected generated id, enabled flag and timestamps, got %+v", created)
	}
	if reloader.calls != 1 {
		t.Errorf("Expected schedules to be reloaded once, got %d", reloader.calls)
	}

	w = httptest.NewRecorder()
	handler.ListRules(w, httptest.NewRequest("GET", "/api/v1/rules", nil))
	body := decodeBody(t, w)
	if body["count"] != float64(1) {
		t.Errorf("Expected 1 rule, got %v", body["count"])
	}

	if _, err := store.GetRule(context.Background(), created.ID); err != nil {
		t.Errorf("Expected rule in store: %v", err)
	}
}

func TestRuleHandler_CreateInvalid(t *testing.T) {
	handler, store, _, _, _ := newRuleHandler()
	existing := &models.SavedRule{ID: "dup", Name: "Dup", AST: models.Condition(rules.IDExchange, nil), Enabled: true}
	if err := store.AddRule(context.Background(), existing); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	tests := map[string]struct {
		body string
		code int
	}{
		"missing name":   {`{"ast":` + sampleAST + `}`, http.StatusBadRequest},
		"missing ast":    {`{"name":"x"}`, http.StatusBadRequest},
		"bad schedule":   {`{"name":"x","ast":` + sampleAST + `,"schedule":"every day"}`, http.StatusBadRequest},
		"negative limit": {`{"name":"x","ast":` + sampleAST + `,"limit":-1}`, http.StatusBadRequest},
		"duplicate id":   {`{"id":"dup","name":"x","ast":` + sampleAST + `}`, http.StatusConflict},
		"malformed tree": {`{"name":"x","ast":{"type":"NOT"}}`, http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.CreateRule(w, postJSON("/api/v1/rules", tt.body))
			if w.Code != tt.code {
				t.Errorf("Expected status %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestRuleHandler_GetUpdateDelete(t *testing.T) {
	handler, store, _, _, reloader := newRuleHandler()
	ctx := context.Background()
	rule := &models.SavedRule{ID: "rule-1", Name: "Old", AST: models.Condition(rules.IDExchange, nil), Enabled: true}
	if err := store.AddRule(ctx, rule); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/rules/rule-1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "rule-1"})
	w := httptest.NewRecorder()
	handler.GetRule(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	req = httptest.NewRequest("PUT", "/api/v1/rules/rule-1", bytes.NewBufferString(`{"name":"New","ast":`+sampleAST+`,"enabled":false}`))
	req = mux.SetURLVars(req, map[string]string{"id": "rule-1"})
	w = httptest.NewRecorder()
	handler.UpdateRule(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	updated, _ := store.GetRule(ctx, "rule-1")
	if updated.Name != "New" || updated.Enabled {
		t.Errorf("Expected rule to be updated, got %+v", updated)
	}

	req = httptest.NewRequest("PUT", "/api/v1/rules/missing", bytes.NewBufferString(`{"name":"New","ast":`+sampleAST+`}`))
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	w = httptest.NewRecorder()
	handler.UpdateRule(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	req = mux.SetURLVars(httptest.NewRequest("DELETE", "/api/v1/rules/rule-1", nil), map[string]string{"id": "rule-1"})
	w = httptest.NewRecorder()
	handler.DeleteRule(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if reloader.calls != 2 {
		t.Errorf("Expected a reload per change, got %d", reloader.calls)
	}

	req = mux.SetURLVars(httptest.NewRequest("GET", "/api/v1/rules/rule-1", nil), map[string]string{"id": "rule-1"})
	w = httptest.NewRecorder()
	handler.GetRule(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d after delete, got %d", http.StatusNotFound, w.Code)
	}
}

func TestRuleHandler_RunRule(t *testing.T) {
	handler, store, runner, sink, _ := newRuleHandler()
	rule := &models.SavedRule{ID: "rule-1", Name: "Momentum", AST: models.Condition(rules.IDExchange, nil), Limit: 7, Enabled: true}
	if err := store.AddRule(context.Background(), rule); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	req := mux.SetURLVars(httptest.NewRequest("POST", "/api/v1/rules/rule-1/run", nil), map[string]string{"id": "rule-1"})
	w := httptest.NewRecorder()
	handler.RunRule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["ruleId"] != "rule-1" || body["ruleName"] != "Momentum" {
		t.Errorf("Expected result labelled with the rule, got %v", body)
	}
	if runner.limit != 7 {
		t.Errorf("Expected rule limit to be used, got %d", runner.limit)
	}
	if sink.published != 1 {
		t.Errorf("Expected manual run to be exported, got %d", sink.published)
	}

	req = mux.SetURLVars(httptest.NewRequest("POST", "/api/v1/rules/nope/run", nil), map[string]string{"id": "nope"})
	w = httptest.NewRecorder()
	handler.RunRule(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestRouter(t *testing.T) {
	handler, _, _, _, _ := newRuleHandler()
	ready := errors.New("redis down")
	router := NewRouter(RouterConfig{
		Screener: NewScreenerHandler(&fakeRunner{}, 0),
		Rules:    handler,
		Ready:    func(context.Context) error { return ready },
	})

	tests := []struct {
		method string
		path   string
		body   string
		code   int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"GET", "/live", "", http.StatusOK},
		{"GET", "/ready", "", http.StatusServiceUnavailable},
		{"GET", "/metrics", "", http.StatusOK},
		{"GET", "/api/v1/conditions", "", http.StatusOK},
		{"POST", "/api/v1/run", `{"ast":` + sampleAST + `}`, http.StatusOK},
		{"GET", "/api/v1/run", "", http.StatusMethodNotAllowed},
		{"DELETE", "/api/v1/rules", "", http.StatusMethodNotAllowed},
		{"PATCH", "/api/v1/rules/r1", "", http.StatusMethodNotAllowed},
		{"GET", "/api/v1/unknown", "", http.StatusNotFound},
		{"GET", "/nowhere", "", http.StatusNotFound},
		{"GET", "/api/v1/rules/missing", "", http.StatusNotFound},
		{"GET", "/api/v1/ws", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestRouter_MethodNotAllowedBody(t *testing.T) {
	handler, _, _, _, _ := newRuleHandler()
	router := NewRouter(RouterConfig{
		Screener: NewScreenerHandler(&fakeRunner{}, 0),
		Rules:    handler,
	})

	req := httptest.NewRequest("GET", "/api/v1/compile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected status 405, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["error"] != "Method not allowed" {
		t.Errorf("Expected error message, got %v", body["error"])
	}
}
