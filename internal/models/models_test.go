package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNode_Validate(t *testing.T) {
	tests := []struct {
		name    string
		node    *Node
		wantErr error
	}{
		{
			name: "valid condition",
			node: Condition("base.exchange", map[string]interface{}{"value": "NYSE"}),
		},
		{
			name: "valid nested composite",
			node: And(
				Condition("base.exchange", nil),
				Or(Condition("ti.rsi", nil), Not(Condition("fa.per", nil))),
			),
		},
		{
			name:    "nil node",
			node:    nil,
			wantErr: ErrInvalidAST,
		},
		{
			name:    "condition without id",
			node:    &Node{Type: NodeCondition},
			wantErr: ErrMissingConditionID,
		},
		{
			name:    "empty composite",
			node:    And(),
			wantErr: ErrEmptyComposite,
		},
		{
			name:    "unknown type",
			node:    &Node{Type: "XOR"},
			wantErr: ErrInvalidNodeType,
		},
		{
			name:    "invalid grandchild",
			node:    And(Or(&Node{Type: NodeCondition})),
			wantErr: ErrMissingConditionID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Node.Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Node.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNode_JSONShape(t *testing.T) {
	raw := `{"type":"AND","children":[
		{"type":"condition","id":"base.marketCapMin","params":{"value":1000000000}},
		{"type":"condition","id":"pv.priceChangePctN","params":{"days":20,"pct":5,"op":"gte"}}
	]}`

	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Type != NodeAnd || len(n.Children) != 2 {
		t.Fatalf("unexpected tree: %+v", n)
	}
	conds := n.Conditions()
	if len(conds) != 2 || conds[0].ID != "base.marketCapMin" || conds[1].ID != "pv.priceChangePctN" {
		t.Errorf("Conditions() returned %+v", conds)
	}
}

func TestNode_WalkSkipsChildren(t *testing.T) {
	tree := And(Condition("a", nil), Not(Condition("b", nil)), Condition("c", nil))

	var seen []string
	tree.Walk(func(node *Node, parents []*Node) bool {
		if node.Type == NodeCondition {
			seen = append(seen, node.ID)
		}
		return node.Type != NodeNot
	})

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "c" {
		t.Errorf("Walk visited %v, want [a c]", seen)
	}
}

func TestCompareOp(t *testing.T) {
	tests := []struct {
		op        CompareOp
		observed  float64
		threshold float64
		want      bool
	}{
		{OpGTE, 6, 5, true},
		{OpGTE, 5, 5, true},
		{OpGTE, 4, 5, false},
		{OpLTE, 30, 30, true},
		{OpLTE, 31, 30, false},
		{CompareOp("eq"), 1, 1, false},
	}

	for _, tt := range tests {
		if got := tt.op.Compare(tt.observed, tt.threshold); got != tt.want {
			t.Errorf("%s.Compare(%v, %v) = %v, want %v", tt.op, tt.observed, tt.threshold, got, tt.want)
		}
	}
}

func TestParseCompareOp(t *testing.T) {
	for in, want := range map[string]CompareOp{"gte": OpGTE, ">=": OpGTE, " LTE ": OpLTE, "<=": OpLTE} {
		got, err := ParseCompareOp(in)
		if err != nil || got != want {
			t.Errorf("ParseCompareOp(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCompareOp("eq"); !errors.Is(err, ErrInvalidOperator) {
		t.Errorf("ParseCompareOp(eq) error = %v, want ErrInvalidOperator", err)
	}
}

func TestQueryPlan_Helpers(t *testing.T) {
	plan := QueryPlan{
		Base: []BaseFilter{{Param: ParamExchange, Value: "NYSE"}},
		Historical: []HistoricalFilter{
			{Metric: MetricPriceChangePctNDays, Days: 20},
			{Metric: MetricVolumeChangePctNDays, Days: 45},
		},
	}

	if v, ok := plan.BaseValue(ParamExchange); !ok || v != "NYSE" {
		t.Errorf("BaseValue(exchange) = %v, %v", v, ok)
	}
	if _, ok := plan.BaseValue(ParamSector); ok {
		t.Error("BaseValue(sector) should be absent")
	}
	if got := plan.MaxHistoricalDays(); got != 45 {
		t.Errorf("MaxHistoricalDays() = %d, want 45", got)
	}
}

func TestScreenerRow_Finalize(t *testing.T) {
	row := ScreenerRow{
		Symbol: "AAPL",
		Price:  Float(190.5),
		Raw:    map[string]interface{}{"symbol": "AAPL"},
	}
	row.Finalize()

	if row.Raw != nil {
		t.Error("Finalize() should strip Raw")
	}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["explain"]; !ok {
		t.Error("explain should always be present after Finalize()")
	}
	if _, ok := out["per"]; ok {
		t.Error("absent P/E should be omitted")
	}
}

func TestSavedRule_Validate(t *testing.T) {
	now := time.Now()
	valid := SavedRule{ID: "r1", Name: "momentum", AST: Condition("base.exchange", nil), CreatedAt: now, UpdatedAt: now}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid rule: %v", err)
	}

	noName := valid
	noName.Name = " "
	if err := noName.Validate(); !errors.Is(err, ErrInvalidRuleName) {
		t.Errorf("missing name error = %v", err)
	}

	noAST := valid
	noAST.AST = nil
	if err := noAST.Validate(); !errors.Is(err, ErrInvalidAST) {
		t.Errorf("missing ast error = %v", err)
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(6); got != "6.00" {
		t.Errorf("FormatValue(6) = %q", got)
	}
	if got := FormatValue(-3.14159); got != "-3.14" {
		t.Errorf("FormatValue(-3.14159) = %q", got)
	}
}
