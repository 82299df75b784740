package segment_test

import (
	"time"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func daysAgo(n int) time.Time { return fixedNow.Add(-time.Duration(n) * 24 * time.Hour) }

func cond(t model.ConditionType, op model.Operator, v string) model.Condition {
	return model.Condition{Type: t, Operator: op, Value: v}
}

func fixtureCustomers() []*model.Customer {
	return []*model.Customer{
		{ID: 1, FirstName: "Asha", TotalSpend: 6000, Visits: 1, Purchases: 2, LastActiveAt: daysAgo(100),
			Location: model.Location{City: "Mumbai", State: "Maharashtra", Country: "India"}},
		{ID: 2, FirstName: "Ravi", TotalSpend: 4000, Visits: 12, Purchases: 8, LastActiveAt: daysAgo(5),
			Location: model.Location{City: "Pune", State: "Maharashtra", Country: "India"}},
		{ID: 3, FirstName: "Meera", TotalSpend: 25000, Visits: 30, Purchases: 15, LastActiveAt: daysAgo(40),
			Location: model.Location{City: "Chennai", State: "Tamil Nadu", Country: "India"}},
		{ID: 4, FirstName: "Kabir", TotalSpend: 150, Visits: 0, Purchases: 0, LastActiveAt: daysAgo(200),
			Location: model.Location{City: "Jaipur", State: "Rajasthan", Country: "India"}},
		{ID: 5, FirstName: "Lena", TotalSpend: 9999.5, Visits: 3, Purchases: 3, LastActiveAt: daysAgo(20),
			Location: model.Location{City: "Berlin", State: "Berlin", Country: "Germany"}},
	}
}

func fixtureRules() []model.RuleGroup {
	return []model.RuleGroup{
		model.And(cond(model.ConditionSpend, model.OpGreater, "5000")),
		model.Or(cond(model.ConditionVisits, model.OpLess, "3"), cond(model.ConditionInactive, model.OpGreater, "90")),
		model.And(
			cond(model.ConditionLocation, model.OpContains, "maharashtra"),
			model.Or(cond(model.ConditionPurchases, model.OpGreaterEqual, "8"), cond(model.ConditionSpend, model.OpGreater, "5000")),
		),
		model.Or(
			cond(model.ConditionSpend, model.OpGreater, "20000"),
			model.And(cond(model.ConditionVisits, model.OpLessEqual, "3"), cond(model.ConditionLocation, model.OpContains, "GERMANY")),
		),
		model.And(cond(model.ConditionInactive, model.OpLess, "30"), cond(model.ConditionVisits, model.OpEqual, "3")),
	}
}
