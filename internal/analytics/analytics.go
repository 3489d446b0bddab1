package analytics

import (
	"fmt"
	"math"

	"healthtrends-server/internal/config"
)

// Trend classifications returned by Assess.
const (
	TrendWorsening        = "worsening"
	TrendWorseningGradual = "worsening_gradual"
	TrendImproving        = "improving"
	TrendStable           = "stable"
	TrendInsufficient     = "insufficient_data"
)

// Alert levels paired with the trend classifications. The lowercase "none"
// is deliberate: the dashboard treats it as "nothing to show".
const (
	AlertCritical = "CRITICAL"
	AlertWarning  = "WARNING"
	AlertInfo     = "INFO"
	AlertNone     = "none"
)

// Assessment is the outcome of the deterioration/improvement heuristic for
// one (patient, test) series.
type Assessment struct {
	Trend         string   `json:"trend"`
	AlertLevel    string   `json:"alert_level"`
	AlertMessage  string   `json:"alert_message"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

// MovingAverage returns the trailing moving average of values, one entry
// per input point. Each entry averages the current point and up to
// window-1 immediately preceding points; early points with fewer
// predecessors average over however many exist.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for _, v := range values[start : i+1] {
			sum += v
		}
		out[i] = round2(sum / float64(i+1-start))
	}
	return out
}

// Assess runs the fixed-threshold trend heuristic over a time-ascending
// series of values. It compares the mean of the most recent readings
// against the mean of the readings immediately prior; a rising value is
// treated as deterioration.
func Assess(values []float64, cfg config.AnalyticsConfig) Assessment {
	if len(values) < cfg.RiskMinPoints {
		return Assessment{
			Trend:        TrendInsufficient,
			AlertLevel:   AlertNone,
			AlertMessage: "Not enough readings to assess a trend.",
		}
	}
	if len(values) < 2*cfg.RiskMeanWindow {
		return Assessment{
			Trend:        TrendInsufficient,
			AlertLevel:   AlertNone,
			AlertMessage: "Not enough readings to compare recent and prior periods.",
		}
	}

	recent := mean(values[len(values)-cfg.RiskMeanWindow:])
	previous := mean(values[len(values)-2*cfg.RiskMeanWindow : len(values)-cfg.RiskMeanWindow])

	change := 0.0
	if previous != 0 {
		change = (recent - previous) / previous * 100
	}
	change = round1(change)

	switch {
	case change > cfg.CriticalPercent:
		return Assessment{
			Trend:         TrendWorsening,
			AlertLevel:    AlertCritical,
			AlertMessage:  fmt.Sprintf("Recent values are worsening rapidly: average rose %.1f%% versus the prior readings.", change),
			ChangePercent: &change,
		}
	case change > cfg.WarningPercent:
		return Assessment{
			Trend:         TrendWorseningGradual,
			AlertLevel:    AlertWarning,
			AlertMessage:  fmt.Sprintf("Recent values show a gradual worsening trend (%.1f%%).", change),
			ChangePercent: &change,
		}
	case change < -cfg.CriticalPercent:
		return Assessment{
			Trend:         TrendImproving,
			AlertLevel:    AlertInfo,
			AlertMessage:  fmt.Sprintf("Recent values are improving (%.1f%%).", change),
			ChangePercent: &change,
		}
	default:
		return Assessment{
			Trend:         TrendStable,
			AlertLevel:    AlertNone,
			AlertMessage:  "Values are stable.",
			ChangePercent: &change,
		}
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
