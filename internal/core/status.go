package core

import "twin_service/internal/domain/model"

// Status is the qualitative summary of the final predicted year.
type Status string

const (
	StatusExcellent Status = "Excellent"
	StatusGood      Status = "Good"
	StatusModerate  Status = "Moderate"
	StatusPoor      Status = "Poor"
	StatusCritical  Status = "Critical"
)

// Score averages happiness, health and inverted pollution of one year.
func Score(tp model.TimePoint) float64 {
	return (tp.HappinessIndex + tp.HealthIndex + (100 - tp.PollutionIndex)) / 3
}

func StatusForScore(score float64) Status {
	switch {
	case score >= 80:
		return StatusExcellent
	case score >= 60:
		return StatusGood
	case score >= 40:
		return StatusModerate
	case score >= 20:
		return StatusPoor
	default:
		return StatusCritical
	}
}

// OverallStatus derives the status from the last entry of a prediction. It
// reports false when there is nothing to summarize.
func OverallStatus(p *model.PredictionResult) (Status, bool) {
	final, ok := p.Final()
	if !ok {
		return "", false
	}
	return StatusForScore(Score(final)), true
}
