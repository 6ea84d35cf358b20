package rules

import (
	"fmt"
	"strings"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// ConditionKind identifies what a condition id compiles to
type ConditionKind int

const (
	KindUnknown ConditionKind = iota
	KindExchange
	KindSector
	KindMarketCapMin
	KindMarketCapMax
	KindPriceChangePct
	KindVolumeChangePct
	KindRSI
	KindPER
)

// isBase reports whether the kind becomes an upstream screener parameter
func (k ConditionKind) isBase() bool {
	switch k {
	case KindExchange, KindSector, KindMarketCapMin, KindMarketCapMax:
		return true
	}
	return false
}

func (k ConditionKind) String() string {
	switch k {
	case KindExchange:
		return "exchange"
	case KindSector:
		return "sector"
	case KindMarketCapMin:
		return "marketCapMin"
	case KindMarketCapMax:
		return "marketCapMax"
	case KindPriceChangePct:
		return "priceChangePct"
	case KindVolumeChangePct:
		return "volumeChangePct"
	case KindRSI:
		return "rsi"
	case KindPER:
		return "per"
	default:
		return "unknown"
	}
}

// Binding ties a condition id to its kind. Op, when set, is fixed by the id
// and overrides any op param. Canonical, when set, replaces the id in the
// compiled filters so aliases share one explain id.
type Binding struct {
	Kind      ConditionKind
	Op        models.CompareOp
	Canonical string
}

// Emitter appends the plan entries of one condition and reports whether it
// did. Conditions whose params it cannot use are ignored.
type Emitter func(p *PlanBuilder, cond Condition) bool

// Condition is a resolved condition leaf handed to an Emitter
type Condition struct {
	ID     string
	Kind   ConditionKind
	Op     models.CompareOp
	Params map[string]interface{}
}

// PlanBuilder accumulates a QueryPlan during compilation
type PlanBuilder struct {
	plan models.QueryPlan
}

// SetBase sets a base parameter; a later call for the same param replaces
// the earlier value in place
func (p *PlanBuilder) SetBase(param string, value interface{}) {
	for i := range p.plan.Base {
		if p.plan.Base[i].Param == param {
			p.plan.Base[i].Value = value
			return
		}
	}
	p.plan.Base = append(p.plan.Base, models.BaseFilter{Param: param, Value: value})
}

// AddHistorical appends a historical filter
func (p *PlanBuilder) AddHistorical(f models.HistoricalFilter) {
	p.plan.Historical = append(p.plan.Historical, f)
}

// AddTechnical appends a technical filter
func (p *PlanBuilder) AddTechnical(f models.TechnicalFilter) {
	p.plan.Technical = append(p.plan.Technical, f)
}

// AddPost appends a post filter
func (p *PlanBuilder) AddPost(f models.PostFilter) {
	p.plan.Post = append(p.plan.Post, f)
}

func (p *PlanBuilder) warn(msg string) {
	for _, w := range p.plan.Warnings {
		if w == msg {
			return
		}
	}
	p.plan.Warnings = append(p.plan.Warnings, msg)
}

// Compiler turns rule ASTs into query plans
type Compiler struct {
	bindings map[string]Binding
	emitters map[ConditionKind]Emitter
}

// NewCompiler creates a compiler with the built-in condition set
func NewCompiler() *Compiler {
	c := &Compiler{
		bindings: make(map[string]Binding),
		emitters: make(map[ConditionKind]Emitter),
	}
	for id, b := range defaultBindings {
		c.bindings[id] = b
	}
	for kind, e := range defaultEmitters {
		c.emitters[kind] = e
	}
	return c
}

// Bind maps a condition id to a kind
func (c *Compiler) Bind(id string, b Binding) {
	c.bindings[id] = b
}

// RegisterEmitter installs the emitter used for kind
func (c *Compiler) RegisterEmitter(kind ConditionKind, e Emitter) {
	c.emitters[kind] = e
}

// Resolve returns the binding of a condition id
func (c *Compiler) Resolve(id string) (Binding, bool) {
	b, ok := c.bindings[strings.TrimSpace(id)]
	return b, ok
}

var defaultCompiler = NewCompiler()

// Compile compiles ast with the built-in condition set
func Compile(ast *models.Node) models.QueryPlan {
	return defaultCompiler.Compile(ast)
}

// Compile walks ast in pre-order and builds a plan. Unknown or malformed
// conditions are dropped. It never fails.
func (c *Compiler) Compile(ast *models.Node) models.QueryPlan {
	b := &PlanBuilder{}
	c.visit(b, ast, nil)

	if _, ok := b.plan.BaseValue(models.ParamExchange); !ok {
		b.plan.Base = append(b.plan.Base, models.BaseFilter{Param: models.ParamExchange, Value: models.DefaultExchange})
	}
	return b.plan
}

func (c *Compiler) visit(b *PlanBuilder, n *models.Node, composites []models.NodeType) {
	if n == nil {
		return
	}

	switch {
	case n.Type == models.NodeCondition:
		c.emit(b, n, composites)
	case n.Type.IsComposite():
		next := append(composites[:len(composites):len(composites)], n.Type)
		for _, child := range n.Children {
			c.visit(b, child, next)
		}
	}
}

func (c *Compiler) emit(b *PlanBuilder, n *models.Node, composites []models.NodeType) {
	binding, ok := c.Resolve(n.ID)
	if !ok {
		return
	}
	emitter, ok := c.emitters[binding.Kind]
	if !ok {
		return
	}

	params := n.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	id := strings.TrimSpace(n.ID)
	if binding.Canonical != "" {
		id = binding.Canonical
	}
	if !emitter(b, Condition{ID: id, Kind: binding.Kind, Op: binding.Op, Params: params}) {
		return
	}

	if binding.Kind.isBase() {
		return
	}
	for _, t := range composites {
		if t == models.NodeOr || t == models.NodeNot {
			b.warn(fmt.Sprintf("%s is not supported yet: %s was applied as AND", t, id))
		}
	}
}
