package licensing

import "time"

// FoundersThankYou is the default message shown to founders-deal members.
const FoundersThankYou = "🚀 Thank you for being a Founder! You have lifetime access to Chatello SaaS."

// DefaultPlans returns the built-in plan catalog: starter, pro, agency, and
// the seat-limited founders lifetime deal. IDs are left empty for the store
// to assign.
func DefaultPlans(now time.Time) []*Plan {
	return []*Plan{
		{
			Name:        "starter",
			DisplayName: "Starter",
			Price:       2.99,
			Currency:    "EUR",
			Features:    []Feature{FeatureBringYourOwnKey},
			MaxSites:    1,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Name:                "pro",
			DisplayName:         "Pro",
			Price:               7.99,
			Currency:            "EUR",
			MonthlyRequestLimit: 1000,
			RequestsPerMinute:   10,
			RequestsPerHour:     200,
			MonthlyBudget:       4.0,
			CostPer1KTokens:     0.0015,
			Features:            []Feature{FeatureAIIncluded},
			MaxSites:            3,
			IsActive:            true,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
		{
			Name:                "agency",
			DisplayName:         "Agency",
			Price:               19.99,
			Currency:            "EUR",
			MonthlyRequestLimit: 5000,
			RequestsPerMinute:   25,
			RequestsPerHour:     500,
			MonthlyBudget:       10.0,
			CostPer1KTokens:     0.0015,
			Features:            []Feature{FeatureAIIncluded, FeaturePrioritySupport},
			MaxSites:            -1,
			IsActive:            true,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
		{
			Name:                "founders",
			DisplayName:         "Founders Deal - Lifetime",
			Price:               29.0,
			Currency:            "EUR",
			MonthlyRequestLimit: 2000,
			RequestsPerMinute:   15,
			RequestsPerHour:     300,
			MonthlyBudget:       6.0,
			CostPer1KTokens:     0.0015,
			Features: []Feature{
				FeatureAIIncluded,
				FeatureLifetimeLicense,
				FeaturePrioritySupport,
				FeatureFoundersBadge,
			},
			IsLifetime:        true,
			LifetimeSeatLimit: 500,
			MaxSites:          5,
			IsActive:          true,
			Metadata: map[string]string{
				MetaBadge:           "founders_member",
				MetaThankYouMessage: FoundersThankYou,
				MetaPromotion:       "Limited lifetime offer for the first 500 users",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
