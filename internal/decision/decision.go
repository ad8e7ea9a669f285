// Package decision implements the ice-risk classification and heating
// decision policy. Evaluate is pure: no I/O, no package state, total over
// its inputs.
package decision

import "github.com/tommyskogstad/geoloop/internal/model"

const (
	iceZoneMin = -5.0
	iceZoneMax = 5.0
	criticalMin = -1.0
	criticalMax = 2.0

	maxHoursConsidered = 24
)

// Evaluate classifies ice risk from the first 24 hours of forecast and
// returns the resulting heating decision. sensorReadings is accepted but not
// inspected; see the engine's open question on future sensor-biased policy.
func Evaluate(forecast model.WeatherForecast, sensorReadings *model.SensorReadings, currentlyOn bool) model.EvaluationResult {
	horizon := forecast.Timeseries
	if len(horizon) > maxHoursConsidered {
		horizon = horizon[:maxHoursConsidered]
	}

	if len(horizon) == 0 {
		return model.EvaluationResult{
			Decision:  model.DecisionTurnOff,
			RiskLevel: model.RiskNone,
			Reason:    "no forecast data available",
			Details: map[string]interface{}{
				"reason": "empty timeseries",
			},
		}
	}

	var iceZoneHours, criticalHours, precipNearZeroHours int

	for _, snap := range horizon {
		if snap.AirTemperature == nil {
			continue
		}
		t := *snap.AirTemperature

		inIceZone := t >= iceZoneMin && t <= iceZoneMax
		inCritical := t >= criticalMin && t <= criticalMax

		if inIceZone {
			iceZoneHours++
		}
		if inCritical {
			criticalHours++
		}
		if inCritical && snap.PrecipitationAmount != nil && *snap.PrecipitationAmount > 0 {
			precipNearZeroHours++
		}
	}

	details := map[string]interface{}{
		"ice_zone_hours":         iceZoneHours,
		"critical_hours":         criticalHours,
		"precip_near_zero_hours": precipNearZeroHours,
		"hours_considered":       len(horizon),
	}

	risk, reason := classify(iceZoneHours, criticalHours, precipNearZeroHours)
	decision := decide(risk)

	return model.EvaluationResult{
		Decision:  decision,
		RiskLevel: risk,
		Reason:    reason,
		Details:   details,
	}
}

// classify applies the first-matching-rule classification over the hour
// counters, in priority order.
func classify(iceZoneHours, criticalHours, precipNearZeroHours int) (model.IceRiskLevel, string) {
	switch {
	case precipNearZeroHours >= 1:
		return model.RiskHigh, "precipitation expected in the critical band — high ice risk"
	case criticalHours >= 4:
		return model.RiskHigh, "sustained critical-band temperatures — high ice risk"
	case iceZoneHours >= 6:
		return model.RiskModerate, "extended time in the ice zone — moderate ice risk"
	case iceZoneHours >= 2:
		return model.RiskLow, "brief time in the ice zone — low ice risk"
	default:
		return model.RiskNone, "no significant ice risk in the forecast horizon"
	}
}

// decide maps a risk level to an actuation intent. LOW preserves whatever
// state the loop is already in (hysteresis band); every other level is
// unconditional.
func decide(risk model.IceRiskLevel) model.HeatingDecision {
	switch risk {
	case model.RiskHigh, model.RiskModerate:
		return model.DecisionTurnOn
	case model.RiskLow:
		return model.DecisionKeep
	default:
		return model.DecisionTurnOff
	}
}
