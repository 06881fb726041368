package model

import "github.com/m-mizutani/goerr/v2"

// BudgetRange is the budget window a tenant accepts, in USD.
type BudgetRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Personality configures how the agent presents itself to prospects.
type Personality struct {
	Name               string `yaml:"name"`
	Tone               string `yaml:"tone"`
	Style              string `yaml:"style"`
	CompanyName        string `yaml:"company_name"`
	CompanyDescription string `yaml:"company_description"`
}

// TenantPolicy defines what counts as a qualified prospect for one
// tenant. Loaded once at startup and never mutated afterwards.
type TenantPolicy struct {
	TenantID             string      `yaml:"tenant_id"`
	Budget               BudgetRange `yaml:"budget"`
	ValidAuthorityTitles []string    `yaml:"valid_authority_titles"`
	ValidNeedCategories  []string    `yaml:"valid_need_categories"`
	MaxTimelineDays      int         `yaml:"max_timeline_days"`
	Personality          Personality `yaml:"personality"`
}

// DefaultTenantPolicy returns the built-in single-tenant policy used
// when no tenant catalog file is configured.
func DefaultTenantPolicy() *TenantPolicy {
	return &TenantPolicy{
		TenantID:             "default",
		Budget:               BudgetRange{Min: 5000, Max: 100000},
		ValidAuthorityTitles: []string{"CEO", "CTO", "Director", "Manager", "Head", "VP"},
		ValidNeedCategories:  []string{"automation", "CRM", "sales", "marketing"},
		MaxTimelineDays:      90,
		Personality: Personality{
			Name:               "Ana",
			Tone:               "friendly and professional",
			Style:              "casual but polite",
			CompanyName:        "Spicy",
			CompanyDescription: "a technology solutions company",
		},
	}
}

// Validate checks the policy invariants
func (p *TenantPolicy) Validate() error {
	if p.TenantID == "" {
		return goerr.New("tenant_id is empty")
	}
	if p.Budget.Min > p.Budget.Max {
		return goerr.New("budget min exceeds max",
			goerr.V("min", p.Budget.Min), goerr.V("max", p.Budget.Max))
	}
	if p.MaxTimelineDays <= 0 {
		return goerr.New("max_timeline_days must be positive",
			goerr.V("max_timeline_days", p.MaxTimelineDays))
	}
	return nil
}
