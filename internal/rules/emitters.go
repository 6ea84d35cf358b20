package rules

import (
	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// Condition ids understood by the built-in compiler
const (
	IDExchange        = "base.exchange"
	IDSector          = "base.sector"
	IDMarketCapMin    = "base.marketCapMin"
	IDMarketCapMax    = "base.marketCapMax"
	IDPEMoreThan      = "base.peMoreThan"
	IDPELowerThan     = "base.peLowerThan"
	IDPriceChangePctN = "pv.priceChangePctN"
	IDVolumeChangePct = "pv.volumeChangePctN"
	IDRSI             = "ti.rsi"
	IDPER             = "fa.per"
	IDPETTMLte        = "fa.peTTM.lte"
)

// DefaultRSIPeriod is used when an RSI condition names no period
const DefaultRSIPeriod = 14

var defaultBindings = map[string]Binding{
	IDExchange:     {Kind: KindExchange},
	IDSector:       {Kind: KindSector},
	IDMarketCapMin: {Kind: KindMarketCapMin},
	IDMarketCapMax: {Kind: KindMarketCapMax},

	IDPriceChangePctN:          {Kind: KindPriceChangePct},
	IDPriceChangePctN + ".gte": {Kind: KindPriceChangePct, Op: models.OpGTE, Canonical: IDPriceChangePctN},
	IDPriceChangePctN + ".lte": {Kind: KindPriceChangePct, Op: models.OpLTE, Canonical: IDPriceChangePctN},
	IDVolumeChangePct:          {Kind: KindVolumeChangePct},
	IDVolumeChangePct + ".gte": {Kind: KindVolumeChangePct, Op: models.OpGTE, Canonical: IDVolumeChangePct},
	IDVolumeChangePct + ".lte": {Kind: KindVolumeChangePct, Op: models.OpLTE, Canonical: IDVolumeChangePct},

	IDRSI:        {Kind: KindRSI},
	"ta.rsi.lte": {Kind: KindRSI, Op: models.OpLTE, Canonical: IDRSI},
	"ta.rsi.gte": {Kind: KindRSI, Op: models.OpGTE, Canonical: IDRSI},

	IDPER:         {Kind: KindPER},
	IDPETTMLte:    {Kind: KindPER, Op: models.OpLTE},
	IDPEMoreThan:  {Kind: KindPER, Op: models.OpGTE},
	IDPELowerThan: {Kind: KindPER, Op: models.OpLTE},
}

var defaultEmitters = map[ConditionKind]Emitter{
	KindExchange:        emitBaseString(models.ParamExchange),
	KindSector:          emitBaseString(models.ParamSector),
	KindMarketCapMin:    emitBaseNumber(models.ParamMarketCapMoreThan),
	KindMarketCapMax:    emitBaseNumber(models.ParamMarketCapLowerThan),
	KindPriceChangePct:  emitHistorical(models.MetricPriceChangePctNDays),
	KindVolumeChangePct: emitHistorical(models.MetricVolumeChangePctNDays),
	KindRSI:             emitRSI,
	KindPER:             emitPER,
}

func emitBaseString(param string) Emitter {
	return func(p *PlanBuilder, c Condition) bool {
		v, ok := nonEmptyString(c.Params, "value")
		if !ok {
			return false
		}
		p.SetBase(param, v)
		return true
	}
}

func emitBaseNumber(param string) Emitter {
	return func(p *PlanBuilder, c Condition) bool {
		v, ok := strictNumber(c.Params, "value")
		if !ok {
			return false
		}
		p.SetBase(param, v)
		return true
	}
}

func emitHistorical(metric models.HistoricalMetric) Emitter {
	return func(p *PlanBuilder, c Condition) bool {
		days, ok := positiveWhole(c.Params, "days", 0)
		if !ok {
			return false
		}
		pct, ok := looseNumber(c.Params, "pct")
		if !ok {
			return false
		}
		op, ok := resolveOp(c, models.OpGTE)
		if !ok {
			return false
		}
		p.AddHistorical(models.HistoricalFilter{
			ConditionID: c.ID,
			Metric:      metric,
			Days:        days,
			Pct:         pct,
			Op:          op,
		})
		return true
	}
}

func emitRSI(p *PlanBuilder, c Condition) bool {
	value, ok := looseNumber(c.Params, "value")
	if !ok {
		return false
	}
	period, ok := positiveWhole(c.Params, "period", DefaultRSIPeriod)
	if !ok {
		return false
	}
	timeframe := models.TimeframeDaily
	if raw, present := c.Params["timeframe"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok || !models.Timeframe(s).Valid() {
			return false
		}
		timeframe = models.Timeframe(s)
	}
	op, ok := resolveOp(c, models.OpLTE)
	if !ok {
		return false
	}
	p.AddTechnical(models.TechnicalFilter{
		ConditionID: c.ID,
		Kind:        models.TechnicalRSI,
		Timeframe:   timeframe,
		Period:      period,
		Op:          op,
		Value:       value,
	})
	return true
}

// emitPER compiles P/E conditions into post filters. The screener endpoint
// has no P/E parameter, so they run after enrichment.
func emitPER(p *PlanBuilder, c Condition) bool {
	value, ok := looseNumber(c.Params, "value")
	if !ok {
		return false
	}
	op, ok := resolveOp(c, models.OpLTE)
	if !ok {
		return false
	}
	p.AddPost(models.PostFilter{
		ConditionID: c.ID,
		Kind:        models.PostPER,
		Op:          op,
		Value:       value,
	})
	return true
}

func resolveOp(c Condition, def models.CompareOp) (models.CompareOp, bool) {
	if c.Op != "" {
		return c.Op, true
	}
	return compareOp(c.Params, def)
}
