package risk

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

// ForecastSentinelDays is reported when the saving rate cannot reach the target.
const ForecastSentinelDays = 9999

// Forecast branches and statuses.
const (
	BranchNoHistory = "no_history"
	BranchSingle    = "single_contribution"
	BranchProjected = "projected"

	StatusOnTrack        = "on track"
	StatusBehind         = "behind"
	StatusAhead          = "ahead of schedule"
	StatusBehindSchedule = "behind schedule"
)

// Forecast describes how a savings goal is progressing.
type Forecast struct {
	GoalID              int64      `json:"goal_id"`
	Branch              string     `json:"branch"`
	Status              string     `json:"status,omitempty"`
	Remaining           float64    `json:"remaining"`
	DaysLeft            int        `json:"days_left"`
	RequiredDailyRate   float64    `json:"required_daily_rate"`
	CurrentDailyRate    float64    `json:"current_daily_rate,omitempty"`
	DaysToCompletion    int        `json:"days_to_completion,omitempty"`
	PredictedCompletion *time.Time `json:"predicted_completion,omitempty"`
}

const day = 24 * time.Hour

// daysUntil is the whole number of days until target, never less than one so the
// required rate is always defined. Past target dates count as one day.
func daysUntil(now, target time.Time) int {
	days := int(math.Ceil(target.Sub(now).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// ForecastGoal projects the completion of a goal from its contribution history.
//
// With no contributions it reports the flat daily rate needed to meet the target date.
// With one contribution it compares the average daily rate since the goal was created
// with the required rate. With two or more it averages the per-day rate of every point
// relative to the first one and projects forward from the latest cumulative amount.
func ForecastGoal(goal domain.SavingsGoal, history []domain.GoalContribution, now time.Time) Forecast {
	remaining := math.Max(toFloat(goal.TargetAmount.Sub(goal.CurrentAmount)), 0)
	daysLeft := daysUntil(now, goal.TargetDate)
	f := Forecast{
		GoalID:            goal.ID,
		Remaining:         remaining,
		DaysLeft:          daysLeft,
		RequiredDailyRate: remaining / float64(daysLeft),
	}

	switch len(history) {
	case 0:
		f.Branch = BranchNoHistory
		return f

	case 1:
		f.Branch = BranchSingle
		start := goal.CreatedAt
		if start.IsZero() || start.After(history[0].CreatedAt) {
			start = history[0].CreatedAt
		}
		elapsed := math.Max(now.Sub(start).Hours()/24, 1)
		f.CurrentDailyRate = toFloat(history[0].CumulativeAmount) / elapsed
		if remaining == 0 || f.CurrentDailyRate >= f.RequiredDailyRate {
			f.Status = StatusOnTrack
		} else {
			f.Status = StatusBehind
		}
		return f
	}

	f.Branch = BranchProjected
	first := history[0]
	last := history[len(history)-1]

	var (
		sum   float64
		count int
	)
	for _, point := range history[1:] {
		elapsed := point.CreatedAt.Sub(first.CreatedAt).Hours() / 24
		if elapsed <= 0 {
			continue
		}
		sum += toFloat(point.CumulativeAmount.Sub(first.CumulativeAmount)) / elapsed
		count++
	}
	if count > 0 {
		f.CurrentDailyRate = sum / float64(count)
	}

	outstanding := math.Max(toFloat(goal.TargetAmount.Sub(last.CumulativeAmount)), 0)
	if outstanding == 0 {
		f.DaysToCompletion = 0
		completion := last.CreatedAt
		f.PredictedCompletion = &completion
		f.Status = StatusAhead
		return f
	}
	if f.CurrentDailyRate <= 0 || math.IsNaN(f.CurrentDailyRate) || math.IsInf(f.CurrentDailyRate, 0) {
		f.DaysToCompletion = ForecastSentinelDays
		f.Status = StatusBehindSchedule
		return f
	}

	f.DaysToCompletion = int(math.Ceil(outstanding / f.CurrentDailyRate))
	if f.DaysToCompletion > ForecastSentinelDays {
		f.DaysToCompletion = ForecastSentinelDays
	}
	completion := last.CreatedAt.Add(time.Duration(f.DaysToCompletion) * day)
	f.PredictedCompletion = &completion
	if completion.After(goal.TargetDate) {
		f.Status = StatusBehindSchedule
	} else {
		f.Status = StatusAhead
	}
	return f
}
