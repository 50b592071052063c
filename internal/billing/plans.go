// Package billing holds the subscription plan catalog and enforces each
// plan's resource limits. Payment collection happens elsewhere.
package billing

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Unlimited marks a limit that is never reached.
const Unlimited = -1

// Resource names a limited quantity.
type Resource string

const (
	ResourceAgents        Resource = "agents"
	ResourceDataSources   Resource = "data_sources"
	ResourceTasksPerMonth Resource = "tasks_per_month"
)

// Limits caps each resource for a plan. Unlimited means no cap.
type Limits struct {
	Agents        int `json:"agents"`
	DataSources   int `json:"data_sources"`
	TasksPerMonth int `json:"tasks_per_month"`
}

// For returns the limit for r.
func (l Limits) For(r Resource) (int, bool) {
	switch r {
	case ResourceAgents:
		return l.Agents, true
	case ResourceDataSources:
		return l.DataSources, true
	case ResourceTasksPerMonth:
		return l.TasksPerMonth, true
	}
	return 0, false
}

// Plan is a monthly subscription tier.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int      `json:"price"`
	PriceID  string   `json:"price_id"`
	Interval string   `json:"interval"`
	Features []string `json:"features"`
	Limits   Limits   `json:"limits"`
	Popular  bool     `json:"popular,omitempty"`
}

var plans = []Plan{
	{
		ID:       "basic",
		Name:     "Basic",
		Price:    15,
		PriceID:  "price_basic_monthly",
		Interval: "month",
		Features: []string{
			"1 AI Agent",
			"1 Data Source",
			"100 Tasks per month",
			"Email Support",
			"Basic Analytics",
		},
		Limits: Limits{Agents: 1, DataSources: 1, TasksPerMonth: 100},
	},
	{
		ID:       "pro",
		Name:     "Pro",
		Price:    45,
		PriceID:  "price_pro_monthly",
		Interval: "month",
		Features: []string{
			"5 AI Agents",
			"5 Data Sources",
			"1,000 Tasks per month",
			"Priority Support",
			"Advanced Analytics",
			"Custom Prompts",
			"API Access",
		},
		Limits:  Limits{Agents: 5, DataSources: 5, TasksPerMonth: 1000},
		Popular: true,
	},
	{
		ID:       "premium",
		Name:     "Premium",
		Price:    99,
		PriceID:  "price_premium_monthly",
		Interval: "month",
		Features: []string{
			"Unlimited AI Agents",
			"Unlimited Data Sources",
			"Unlimited Tasks",
			"24/7 Priority Support",
			"Advanced Analytics",
			"Custom Integrations",
			"White-label Options",
			"Dedicated Account Manager",
		},
		Limits: Limits{Agents: Unlimited, DataSources: Unlimited, TasksPerMonth: Unlimited},
	},
}

// Plans returns every plan, cheapest first.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Features = slices.Clone(p.Features)
		out[i] = p
	}
	return out
}

// GetPlan looks a plan up by ID, ignoring case.
func GetPlan(id string) (Plan, bool) {
	for _, p := range Plans() {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return Plan{}, false
}

// GetPlanByPriceID finds the plan billed under a payment-provider price ID.
func GetPlanByPriceID(priceID string) (Plan, bool) {
	for _, p := range Plans() {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanHasFeature reports whether the plan lists feature verbatim.
func PlanHasFeature(planID, feature string) bool {
	p, ok := GetPlan(planID)
	return ok && slices.Contains(p.Features, feature)
}

// GetPlanLimits returns the limits of a plan.
func GetPlanLimits(planID string) (Limits, bool) {
	p, ok := GetPlan(planID)
	return p.Limits, ok
}

// IsWithinLimits reports whether a user on planID currently holding
// current units of r may add one more. Unknown plans and resources are
// never within limits.
func IsWithinLimits(planID string, r Resource, current int) bool {
	limits, ok := GetPlanLimits(planID)
	if !ok {
		return false
	}
	limit, ok := limits.For(r)
	if !ok {
		return false
	}
	if limit == Unlimited {
		return true
	}
	return current < limit
}

var printer = message.NewPrinter(language.AmericanEnglish)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FormatPrice renders amount in the given ISO currency for display, with
// digit grouping and no trailing zero cents: FormatPrice(1500, "USD") is
// "$1,500".
func FormatPrice(amount float64, code string) string {
	if code == "" {
		code = "USD"
	}
	digits := printer.Sprint(number.Decimal(amount, number.MaxFractionDigits(2)))

	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %s", strings.ToUpper(code), digits)
	}
	if sym, ok := symbols[unit.String()]; ok {
		return sym + digits
	}
	return unit.String() + " " + digits
}
