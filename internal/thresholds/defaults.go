package thresholds

import "github.com/koperasi/anomaly-engine/internal/models"

// Metric names with preset thresholds.
const (
	MetricFinancialHealthScore = "financial_health_score"
	MetricMemberGrowthRate     = "member_growth_rate"
	MetricRevenueGrowthRate    = "revenue_growth_rate"
	MetricLoanGrowthRate       = "loan_growth_rate"
	MetricTransactionVolume    = "transaction_volume"
	MetricCashBalance          = "cash_balance"
	MetricDefaultRate          = "default_rate"
	MetricSavingsGrowthRate    = "savings_growth_rate"
)

// Defaults returns the preset thresholds. Growth and default rates are percentages, the
// health score is 0-100, cash balance is in rupiah and transaction volume is a daily count.
func Defaults() map[string]models.Threshold {
	f := models.Float
	return map[string]models.Threshold{
		MetricFinancialHealthScore: {
			Min:      f(60),
			Max:      f(100),
			Critical: &models.CriticalBound{Min: f(40)},
		},
		MetricMemberGrowthRate: {
			Min:      f(-5),
			Max:      f(50),
			Critical: &models.CriticalBound{Min: f(-15)},
		},
		MetricRevenueGrowthRate: {
			Min:      f(-10),
			Max:      f(100),
			Critical: &models.CriticalBound{Min: f(-25)},
		},
		MetricLoanGrowthRate: {
			Min:      f(-10),
			Max:      f(60),
			Critical: &models.CriticalBound{Min: f(-30), Max: f(120)},
		},
		MetricTransactionVolume: {
			Min:      f(50),
			Max:      f(10000),
			Critical: &models.CriticalBound{Min: f(10)},
		},
		MetricCashBalance: {
			Min:      f(10_000_000),
			Critical: &models.CriticalBound{Min: f(5_000_000)},
		},
		MetricDefaultRate: {
			Max:      f(5),
			Critical: &models.CriticalBound{Max: f(10)},
		},
		MetricSavingsGrowthRate: {
			Min:      f(0),
			Max:      f(50),
			Critical: &models.CriticalBound{Min: f(-10)},
		},
	}
}
