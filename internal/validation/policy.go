// Package validation compares invoice line items against contract billable
// items and produces pricing exceptions with audit evidence. Everything in
// this package is pure: no I/O, no logging, no shared state between calls.
package validation

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunable thresholds applied during a comparison.
type Policy struct {
	// PriceTolerance absorbs rounding noise; a unit price this far or less
	// above the contract price is compliant.
	PriceTolerance float64 `yaml:"price_tolerance" mapstructure:"price_tolerance"`

	// CriticalOverchargeThreshold is the total overcharge above which a
	// price mismatch is critical. Equal to the threshold stays a warning.
	CriticalOverchargeThreshold float64 `yaml:"critical_overcharge_threshold" mapstructure:"critical_overcharge_threshold"`

	// IncludeUnauthorizedInTotals adds unauthorized line totals to
	// TotalVariance and PotentialSavings.
	IncludeUnauthorizedInTotals bool `yaml:"include_unauthorized_in_totals" mapstructure:"include_unauthorized_in_totals"`

	// CheckQuantityCaps flags matched items billed above the contracted quantity.
	CheckQuantityCaps bool `yaml:"check_quantity_caps" mapstructure:"check_quantity_caps"`

	// CheckContractDates adds a notice when the invoice date is outside the
	// contract term.
	CheckContractDates bool `yaml:"check_contract_dates" mapstructure:"check_contract_dates"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		PriceTolerance:              0.01,
		CriticalOverchargeThreshold: 500,
	}
}

// PolicyOverride replaces individual Policy fields for one vendor. Nil
// fields inherit from the base policy.
type PolicyOverride struct {
	PriceTolerance              *float64 `yaml:"price_tolerance"`
	CriticalOverchargeThreshold *float64 `yaml:"critical_overcharge_threshold"`
	IncludeUnauthorizedInTotals *bool    `yaml:"include_unauthorized_in_totals"`
	CheckQuantityCaps           *bool    `yaml:"check_quantity_caps"`
	CheckContractDates          *bool    `yaml:"check_contract_dates"`
}

func (o PolicyOverride) apply(p Policy) Policy {
	if o.PriceTolerance != nil {
		p.PriceTolerance = *o.PriceTolerance
	}
	if o.CriticalOverchargeThreshold != nil {
		p.CriticalOverchargeThreshold = *o.CriticalOverchargeThreshold
	}
	if o.IncludeUnauthorizedInTotals != nil {
		p.IncludeUnauthorizedInTotals = *o.IncludeUnauthorizedInTotals
	}
	if o.CheckQuantityCaps != nil {
		p.CheckQuantityCaps = *o.CheckQuantityCaps
	}
	if o.CheckContractDates != nil {
		p.CheckContractDates = *o.CheckContractDates
	}
	return p
}

// PolicySet resolves the policy for a vendor.
type PolicySet struct {
	Base    Policy
	Vendors map[string]PolicyOverride
}

// NewPolicySet returns a set with no vendor overrides.
func NewPolicySet(base Policy) *PolicySet {
	return &PolicySet{Base: base, Vendors: map[string]PolicyOverride{}}
}

// For returns the base policy with the vendor's overrides applied. Vendor
// names are compared after normalization.
func (ps *PolicySet) For(vendor string) Policy {
	if ps == nil {
		return DefaultPolicy()
	}
	key := normalize(vendor)
	for name, o := range ps.Vendors {
		if normalize(name) == key {
			return o.apply(ps.Base)
		}
	}
	return ps.Base
}

type policyFile struct {
	Default PolicyOverride            `yaml:"default"`
	Vendors map[string]PolicyOverride `yaml:"vendors"`
}

// LoadPolicySet reads vendor overrides from a YAML file. The file's default
// block is layered over base.
//
//	default:
//	  price_tolerance: 0.02
//	vendors:
//	  Cardinal Health:
//	    critical_overcharge_threshold: 1000
func LoadPolicySet(path string, base Policy) (*PolicySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "validation: read policy file %s", path)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrapf(err, "validation: parse policy file %s", path)
	}

	ps := NewPolicySet(pf.Default.apply(base))
	for name, o := range pf.Vendors {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ps.Vendors[name] = o
	}
	return ps, nil
}
