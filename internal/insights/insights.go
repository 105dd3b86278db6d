package insights

import (
	"fmt"
	"math"
	"slices"
	"time"

	"agriprice/domain/model"
)

// MarketData is what the generator needs from a trained engine
type MarketData interface {
	HistoricalAverages(city, variety string, month int) (model.HistoricalAverages, bool, error)
	Predict(input model.PredictionInput) (model.PredictionResult, error)
}

// Request selects the market cell to describe
type Request struct {
	City    string `form:"city" json:"city"`
	Variety string `form:"variety" json:"variety"`
	Month   int    `form:"month" json:"month"`
	Year    int    `form:"year" json:"year"`
}

// Report is the narrative view of one market cell
type Report struct {
	City              string                   `json:"city"`
	Variety           string                   `json:"variety"`
	Month             int                      `json:"month"`
	Year              int                      `json:"year"`
	Insights          []string                 `json:"insights"`
	RiskAlerts        []string                 `json:"risk_alerts"`
	TrendSummary      string                   `json:"trend_summary"`
	Forecast          model.PredictionResult   `json:"forecast"`
	Historical        model.HistoricalAverages `json:"historical"`
	HistoricalMatched bool                     `json:"historical_matched"`
}

// Thresholds tune when the trend summary calls a move
type Thresholds struct {
	TrendPercent      float64 // forecast vs history delta that counts as a move
	LowConfidence     int
	MajorMarkets      []string
	WinterMonths      []int
	MonsoonStart      int
	MonsoonEnd        int
	VarietyHighlights map[string]string
}

// DefaultThresholds returns the standard narrative rules
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrendPercent:  3,
		LowConfidence: 60,
		MajorMarkets:  []string{"Bangalore", "Delhi", "Mumbai"},
		WinterMonths:  []int{12, 1, 2},
		MonsoonStart:  6,
		MonsoonEnd:    9,
		VarietyHighlights: map[string]string{
			"Guntur":       "Guntur variety is highly sought after for its pungency and color, commanding premium prices in export markets.",
			"Kashmiri":     "Kashmiri chillies are valued for deep color with mild heat, and trade at a steady premium.",
			"Bhut Jolokia": "Bhut Jolokia is a niche, high-pungency variety with the highest premium and thin arrivals.",
		},
	}
}

// Generator builds market insight reports
type Generator struct {
	data       MarketData
	thresholds Thresholds
}

// NewGenerator creates an insight generator over trained market data
func NewGenerator(data MarketData, thresholds Thresholds) *Generator {
	return &Generator{data: data, thresholds: thresholds}
}

// Generate describes the requested cell. Year defaults to the current year.
func (g *Generator) Generate(req Request) (*Report, error) {
	if req.Year == 0 {
		req.Year = time.Now().Year()
	}

	historical, matched, err := g.data.HistoricalAverages(req.City, req.Variety, req.Month)
	if err != nil {
		return nil, err
	}
	forecast, err := g.data.Predict(model.PredictionInput{
		Year:      req.Year,
		Month:     req.Month,
		City:      req.City,
		Variety:   req.Variety,
		Frequency: model.FrequencyMonthly,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		City:              req.City,
		Variety:           req.Variety,
		Month:             req.Month,
		Year:              req.Year,
		Insights:          []string{},
		RiskAlerts:        []string{},
		Forecast:          forecast,
		Historical:        historical,
		HistoricalMatched: matched,
	}

	t := g.thresholds
	switch {
	case slices.Contains(t.WinterMonths, req.Month):
		report.Insights = append(report.Insights, fmt.Sprintf(
			"Winter season typically shows higher prices for %s in %s due to reduced supply and increased demand.",
			req.Variety, req.City))
	case req.Month >= t.MonsoonStart && req.Month <= t.MonsoonEnd:
		report.Insights = append(report.Insights, fmt.Sprintf(
			"Monsoon season may impact %s arrivals in %s. Expect price volatility due to weather conditions.",
			req.Variety, req.City))
		report.RiskAlerts = append(report.RiskAlerts,
			"Weather Alert: Heavy rainfall may affect transportation and supply chain.")
	}

	if slices.Contains(t.MajorMarkets, req.City) {
		report.Insights = append(report.Insights, fmt.Sprintf(
			"%s is a major consumption market with consistent demand throughout the year.", req.City))
	}
	if note, ok := t.VarietyHighlights[req.Variety]; ok {
		report.Insights = append(report.Insights, note)
	}

	if matched {
		report.Insights = append(report.Insights, fmt.Sprintf(
			"Across %d historical observations, %s in %s averaged ₹%.0f per quintal in %s with %.0f quintals arriving.",
			historical.Count, req.Variety, req.City, historical.Price, monthName(req.Month), historical.Arrivals))
	} else {
		report.RiskAlerts = append(report.RiskAlerts, fmt.Sprintf(
			"No history for %s in %s during %s; figures use market-wide averages.",
			req.Variety, req.City, monthName(req.Month)))
	}
	if forecast.Confidence < t.LowConfidence {
		report.RiskAlerts = append(report.RiskAlerts, fmt.Sprintf(
			"Low confidence (%d%%): limited comparable data near %d.", forecast.Confidence, req.Year))
	}

	report.TrendSummary = g.trendSummary(req, forecast, historical)
	return report, nil
}

func (g *Generator) trendSummary(req Request, forecast model.PredictionResult, historical model.HistoricalAverages) string {
	if historical.Price <= 0 {
		return fmt.Sprintf("Based on historical patterns, %s prices in %s are expected to remain stable with seasonal variations. "+
			"Monitor arrivals and weather conditions for price movements.", req.Variety, req.City)
	}

	delta := (float64(forecast.PredictedPrice) - historical.Price) / historical.Price * 100
	direction := "remain stable"
	switch {
	case delta >= g.thresholds.TrendPercent:
		direction = "trend higher"
	case delta <= -g.thresholds.TrendPercent:
		direction = "soften"
	}
	return fmt.Sprintf("%s forecasts ₹%d for %s in %s (%s %d), %+.1f%% against the historical ₹%.0f; prices are expected to %s. "+
		"Monitor arrivals and weather conditions for price movements.",
		forecast.Model, forecast.PredictedPrice, req.Variety, req.City, monthName(req.Month), req.Year,
		math.Round(delta*10)/10, historical.Price, direction)
}

func monthName(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("month %d", month)
	}
	return time.Month(month).String()
}
