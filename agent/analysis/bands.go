package analysis

import (
	"github.com/shopspring/decimal"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

// metricOrder fixes the iteration order so scoring and rendering stay
// deterministic for identical records.
var metricOrder = []contractx.Metric{
	contractx.MetricPERatio,
	contractx.MetricROE,
	contractx.MetricEVToEBITDA,
	contractx.MetricEPS,
}

// MetricBands maps one raw metric value onto a qualitative rating. For
// lower-is-better metrics the thresholds are upper bounds; otherwise they are
// lower bounds.
type MetricBands struct {
	LowerIsBetter bool
	Excellent     float64
	Good          float64
	Fair          float64
	Weight        decimal.Decimal
}

func (b MetricBands) Rate(value float64) contractx.Rating {
	if b.LowerIsBetter {
		switch {
		case value < b.Excellent:
			return contractx.RatingExcellent
		case value < b.Good:
			return contractx.RatingGood
		case value < b.Fair:
			return contractx.RatingFair
		default:
			return contractx.RatingPoor
		}
	}
	switch {
	case value > b.Excellent:
		return contractx.RatingExcellent
	case value > b.Good:
		return contractx.RatingGood
	case value > b.Fair:
		return contractx.RatingFair
	default:
		return contractx.RatingPoor
	}
}

// ValuationBand maps an overall score onto a valuation label and a
// recommendation line. Bands are ordered by descending floor.
type ValuationBand struct {
	Floor          decimal.Decimal
	Label          string
	Recommendation string
}

// Bands is the full scoring configuration: per-metric rating bands, numeric
// rating values, valuation bands, and optional per-sector overrides.
type Bands struct {
	Metrics      map[contractx.Metric]MetricBands
	RatingValues map[contractx.Rating]decimal.Decimal
	Valuations   []ValuationBand
	// Sectors overrides individual metric bands for a sector, e.g. looser
	// P/E expectations for banks. Metrics absent from the override keep the
	// defaults.
	Sectors map[string]map[contractx.Metric]MetricBands
}

// DefaultBands returns the stock configuration. The thresholds are defaults,
// not a fixed requirement; callers may substitute their own tables.
func DefaultBands() Bands {
	weight := decimal.RequireFromString("0.25")
	return Bands{
		Metrics: map[contractx.Metric]MetricBands{
			contractx.MetricPERatio:    {LowerIsBetter: true, Excellent: 10, Good: 15, Fair: 25, Weight: weight},
			contractx.MetricEVToEBITDA: {LowerIsBetter: true, Excellent: 6, Good: 10, Fair: 14, Weight: weight},
			contractx.MetricROE:        {Excellent: 20, Good: 15, Fair: 10, Weight: weight},
			contractx.MetricEPS:        {Excellent: 5, Good: 2, Fair: 1, Weight: weight},
		},
		RatingValues: map[contractx.Rating]decimal.Decimal{
			contractx.RatingExcellent: decimal.NewFromInt(100),
			contractx.RatingGood:      decimal.NewFromInt(80),
			contractx.RatingFair:      decimal.NewFromInt(60),
			contractx.RatingPoor:      decimal.NewFromInt(40),
		},
		Valuations: []ValuationBand{
			{Floor: decimal.NewFromInt(80), Label: "Undervalued / Buy", Recommendation: "Strong fundamentals relative to price. Consider for investment."},
			{Floor: decimal.NewFromInt(65), Label: "Fairly Valued / Hold", Recommendation: "Hold or monitor."},
			{Floor: decimal.NewFromInt(50), Label: "Caution / Monitor", Recommendation: "Mixed fundamentals. Proceed with caution."},
			{Floor: decimal.Zero, Label: "Overvalued / Avoid", Recommendation: "Weak fundamentals relative to price. Consider carefully before investing."},
		},
		Sectors: map[string]map[contractx.Metric]MetricBands{},
	}
}

// ForSector merges sector overrides over the default metric bands.
func (b Bands) ForSector(sector string) map[contractx.Metric]MetricBands {
	overrides, ok := b.Sectors[sector]
	if !ok || len(overrides) == 0 {
		return b.Metrics
	}
	merged := make(map[contractx.Metric]MetricBands, len(b.Metrics))
	for metric, mb := range b.Metrics {
		merged[metric] = mb
	}
	for metric, mb := range overrides {
		merged[metric] = mb
	}
	return merged
}

// Score derives the ScoreResult for one record. Absent metrics (zero or
// negative values) contribute nothing; weights are not renormalized, matching
// the retrieval source's scoring scheme.
func (b Bands) Score(rec contractx.FinancialRecord) contractx.ScoreResult {
	metricBands := b.ForSector(rec.Sector)
	total := decimal.Zero
	scores := make([]contractx.MetricScore, 0, len(metricOrder))

	for _, metric := range metricOrder {
		value := metricValue(rec, metric)
		if value <= 0 {
			continue
		}
		mb, ok := metricBands[metric]
		if !ok {
			continue
		}
		rating := mb.Rate(value)
		total = total.Add(b.RatingValues[rating].Mul(mb.Weight))
		scores = append(scores, contractx.MetricScore{Metric: metric, Value: value, Rating: rating})
	}

	if len(scores) == 0 {
		return contractx.ScoreResult{
			Overall:        decimal.Zero,
			Band:           "Very Poor",
			Valuation:      "Unable to evaluate",
			Recommendation: "Insufficient financial data available for meaningful analysis.",
		}
	}

	overall := total.Round(2)
	label, recommendation := b.valuationFor(overall)
	return contractx.ScoreResult{
		Overall:         overall,
		Band:            scoreBand(overall),
		Metrics:         scores,
		Valuation:       label,
		Recommendation:  recommendation,
		MetricsAnalyzed: len(scores),
	}
}

func (b Bands) valuationFor(overall decimal.Decimal) (string, string) {
	for _, vb := range b.Valuations {
		if overall.GreaterThanOrEqual(vb.Floor) {
			return vb.Label, vb.Recommendation
		}
	}
	last := b.Valuations[len(b.Valuations)-1]
	return last.Label, last.Recommendation
}

func metricValue(rec contractx.FinancialRecord, metric contractx.Metric) float64 {
	switch metric {
	case contractx.MetricPERatio:
		return rec.PERatio
	case contractx.MetricROE:
		return rec.ROE
	case contractx.MetricEVToEBITDA:
		return rec.EVToEBITDA
	case contractx.MetricEPS:
		return rec.EPS
	default:
		return 0
	}
}

// scoreBand maps the overall score onto its qualitative band.
func scoreBand(overall decimal.Decimal) string {
	score, _ := overall.Float64()
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 80:
		return "Very Good"
	case score >= 70:
		return "Good"
	case score >= 60:
		return "Fair"
	case score >= 50:
		return "Poor"
	default:
		return "Very Poor"
	}
}
