package billing

import "github.com/appforge-ai/appforge-backend/internal/models"

// Plan describes a subscription tier and the credit allowance that comes
// with it. Allowances replace the previous period's balance on renewal.
type Plan struct {
	ID      models.SubscriptionPlanID
	Name    string
	Credits int64
}

var plans = map[models.SubscriptionPlanID]Plan{
	models.PlanFree:       {ID: models.PlanFree, Name: "Free", Credits: 3},
	models.PlanStarter:    {ID: models.PlanStarter, Name: "Starter", Credits: 50},
	models.PlanPro:        {ID: models.PlanPro, Name: "Pro", Credits: 150},
	models.PlanEnterprise: {ID: models.PlanEnterprise, Name: "Enterprise", Credits: 500},
}

// InitialCredits is the signup grant for new accounts, equal to the free
// plan allowance
const InitialCredits int64 = 3

// PlanByID returns the plan for a plan identifier
func PlanByID(id models.SubscriptionPlanID) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// Plans returns all subscription tiers
func Plans() []Plan {
	return []Plan{
		plans[models.PlanFree],
		plans[models.PlanStarter],
		plans[models.PlanPro],
		plans[models.PlanEnterprise],
	}
}
