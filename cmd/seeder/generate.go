// cmd/seeder/generate.go
package main

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

var cities = []struct{ City, State string }{
	{"Mumbai", "Maharashtra"},
	{"Delhi", "Delhi"},
	{"Bangalore", "Karnataka"},
	{"Hyderabad", "Telangana"},
	{"Chennai", "Tamil Nadu"},
	{"Kolkata", "West Bengal"},
	{"Pune", "Maharashtra"},
	{"Ahmedabad", "Gujarat"},
	{"Jaipur", "Rajasthan"},
	{"Lucknow", "Uttar Pradesh"},
}

var (
	firstNames = []string{"Aarav", "Vivaan", "Aditya", "Vihaan", "Arjun", "Sai", "Reyansh", "Ayaan",
		"Ananya", "Diya", "Aadhya", "Saanvi", "Ira", "Myra", "Kiara", "Priya"}
	lastNames = []string{"Sharma", "Verma", "Patel", "Gupta", "Reddy", "Iyer", "Nair", "Singh",
		"Kumar", "Das", "Mehta", "Joshi"}
)

// generateCustomers builds n synthetic customers. About 95% are active; consent
// and channel opt-ins hit 90/95/70/50% for marketing, email, SMS and push.
func generateCustomers(n int, rnd *rand.Rand, now time.Time) []*model.Customer {
	customers := make([]*model.Customer, 0, n)
	for i := 0; i < n; i++ {
		first := firstNames[rnd.Intn(len(firstNames))]
		last := lastNames[rnd.Intn(len(lastNames))]
		loc := cities[rnd.Intn(len(cities))]

		customers = append(customers, &model.Customer{
			FirstName: first,
			LastName:  last,
			Email:     fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), i+1),
			Phone:     fmt.Sprintf("+91%010d", 9000000000+rnd.Int63n(999999999)),
			Location:  model.Location{City: loc.City, State: loc.State, Country: "India"},

			TotalSpend:   math.Round(rnd.Float64()*30000*100) / 100,
			Visits:       rnd.Intn(51),
			Purchases:    rnd.Intn(21),
			LastActiveAt: now.Add(-time.Duration(rnd.Intn(120*24)) * time.Hour),
			IsActive:     rnd.Float64() < 0.95,
			Preferences: model.Preferences{
				MarketingConsent: rnd.Float64() < 0.9,
				Channels: model.ChannelPreferences{
					Email: rnd.Float64() < 0.95,
					SMS:   rnd.Float64() < 0.7,
					Push:  rnd.Float64() < 0.5,
				},
			},
		})
	}
	return customers
}

func sampleCampaigns() []*model.Campaign {
	return []*model.Campaign{
		{
			Name: "Win back quiet customers",
			Type: model.ChannelEmail,
			Content: model.Content{
				Subject: "We miss you, {{firstName}}",
				Body:    "Hi {{name}}, come back this week for 15% off everything.",
			},
			SegmentRules: model.And(
				model.Condition{Type: model.ConditionInactive, Operator: model.OpGreater, Value: "60"},
				model.Condition{Type: model.ConditionPurchases, Operator: model.OpGreaterEqual, Value: "1"},
			),
		},
		{
			Name: "VIP early access",
			Type: model.ChannelEmail,
			Content: model.Content{
				Subject: "Early access for {{firstName}}",
				Body:    "Hi {{name}}, our new collection opens to you 24 hours early.",
			},
			SegmentRules: model.Or(
				model.Condition{Type: model.ConditionSpend, Operator: model.OpGreater, Value: "20000"},
				model.And(
					model.Condition{Type: model.ConditionVisits, Operator: model.OpGreaterEqual, Value: "30"},
					model.Condition{Type: model.ConditionPurchases, Operator: model.OpGreater, Value: "10"},
				),
			),
		},
		{
			Name:    "Pune weekend sale",
			Type:    model.ChannelSMS,
			Content: model.Content{Body: "Hi {first_name}, weekend sale at our {location} store!"},
			SegmentRules: model.And(
				model.Condition{Type: model.ConditionLocation, Operator: model.OpContains, Value: "pune"},
			),
		},
	}
}
