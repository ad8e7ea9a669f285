package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tommyskogstad/geoloop/internal/model"
)

func f64(v float64) *float64 { return &v }

func snapshot(t float64, precip *float64) model.WeatherSnapshot {
	return model.WeatherSnapshot{
		Time:                time.Now(),
		AirTemperature:      f64(t),
		PrecipitationAmount: precip,
	}
}

func repeat(n int, t float64, precip *float64) []model.WeatherSnapshot {
	out := make([]model.WeatherSnapshot, n)
	for i := range out {
		out[i] = snapshot(t, precip)
	}
	return out
}

// Scenario 1: precipitation in the critical band forces HIGH via rule 1.
func TestEvaluate_Scenario1_PrecipNearZero(t *testing.T) {
	p := f64(0.5)
	ts := append(repeat(6, 0.5, p), repeat(18, 5.0, f64(0))...)
	forecast := model.WeatherForecast{Timeseries: ts}

	result := Evaluate(forecast, nil, false)

	assert.Equal(t, model.RiskHigh, result.RiskLevel)
	assert.Equal(t, model.DecisionTurnOn, result.Decision)
	assert.GreaterOrEqual(t, result.Details["precip_near_zero_hours"], 1)
}

// Scenario 2: sustained critical-band temps without precip forces HIGH via rule 2.
func TestEvaluate_Scenario2_CriticalHours(t *testing.T) {
	temps := []float64{0.0, 0.5, 1.0, 1.5, 1.0}
	var ts []model.WeatherSnapshot
	for _, v := range temps {
		ts = append(ts, snapshot(v, nil))
	}
	ts = append(ts, repeat(19, 10.0, nil)...)
	forecast := model.WeatherForecast{Timeseries: ts}

	result := Evaluate(forecast, nil, false)

	assert.Equal(t, model.RiskHigh, result.RiskLevel)
	assert.Equal(t, model.DecisionTurnOn, result.Decision)
	assert.GreaterOrEqual(t, result.Details["critical_hours"], 4)
}

// Scenario 3: extended ice-zone time without critical mass -> MODERATE.
func TestEvaluate_Scenario3_Moderate(t *testing.T) {
	ts := append(repeat(7, 3.0, nil), repeat(17, 15.0, nil)...)
	forecast := model.WeatherForecast{Timeseries: ts}

	result := Evaluate(forecast, nil, false)

	assert.Equal(t, model.RiskModerate, result.RiskLevel)
	assert.Equal(t, model.DecisionTurnOn, result.Decision)
}

// Scenario 4: brief ice-zone time -> LOW -> KEEP preserves currentlyOn=true.
func TestEvaluate_Scenario4_LowKeepsState(t *testing.T) {
	ts := append(repeat(3, 3.0, nil), repeat(21, 15.0, nil)...)
	forecast := model.WeatherForecast{Timeseries: ts}

	result := Evaluate(forecast, nil, true)

	assert.Equal(t, model.RiskLow, result.RiskLevel)
	assert.Equal(t, model.DecisionKeep, result.Decision)
}

// Scenario 5: no ice-zone time at all -> NONE -> TURN_OFF even if currently on.
func TestEvaluate_Scenario5_NoneTurnsOff(t *testing.T) {
	forecast := model.WeatherForecast{Timeseries: repeat(24, 15.0, nil)}

	result := Evaluate(forecast, nil, true)

	assert.Equal(t, model.RiskNone, result.RiskLevel)
	assert.Equal(t, model.DecisionTurnOff, result.Decision)
}

func TestEvaluate_EmptyTimeseries(t *testing.T) {
	result := Evaluate(model.WeatherForecast{}, nil, true)

	assert.Equal(t, model.RiskNone, result.RiskLevel)
	assert.Equal(t, model.DecisionTurnOff, result.Decision)
	assert.NotEmpty(t, result.Reason)
}

func TestEvaluate_AllAbsentTemperatures(t *testing.T) {
	ts := make([]model.WeatherSnapshot, 24)
	for i := range ts {
		ts[i] = model.WeatherSnapshot{Time: time.Now()}
	}
	result := Evaluate(model.WeatherForecast{Timeseries: ts}, nil, false)

	assert.Equal(t, model.RiskNone, result.RiskLevel)
	assert.Equal(t, model.DecisionTurnOff, result.Decision)
}

func TestEvaluate_BoundaryIceZone(t *testing.T) {
	ts := append(repeat(2, -5.0, nil), repeat(22, 15.0, nil)...)
	result := Evaluate(model.WeatherForecast{Timeseries: ts}, nil, false)
	assert.Equal(t, model.RiskLow, result.RiskLevel)

	ts = append(repeat(2, 5.0, nil), repeat(22, 15.0, nil)...)
	result = Evaluate(model.WeatherForecast{Timeseries: ts}, nil, false)
	assert.Equal(t, model.RiskLow, result.RiskLevel)
}

func TestEvaluate_BoundaryCritical(t *testing.T) {
	ts := append(repeat(4, -1.0, nil), repeat(20, 15.0, nil)...)
	result := Evaluate(model.WeatherForecast{Timeseries: ts}, nil, false)
	assert.Equal(t, model.RiskHigh, result.RiskLevel)

	ts = append(repeat(4, 2.0, nil), repeat(20, 15.0, nil)...)
	result = Evaluate(model.WeatherForecast{Timeseries: ts}, nil, false)
	assert.Equal(t, model.RiskHigh, result.RiskLevel)
}

func TestEvaluate_OnlyConsidersFirst24(t *testing.T) {
	hot := repeat(24, 15.0, nil)
	withExtraIce := append(append([]model.WeatherSnapshot{}, hot...), repeat(50, -5.0, nil)...)

	base := Evaluate(model.WeatherForecast{Timeseries: hot}, nil, false)
	extended := Evaluate(model.WeatherForecast{Timeseries: withExtraIce}, nil, false)

	assert.Equal(t, base.RiskLevel, extended.RiskLevel)
	assert.Equal(t, base.Decision, extended.Decision)
}
