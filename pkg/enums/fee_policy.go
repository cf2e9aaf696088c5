package enums

import "fmt"

// FeePolicyScope maps to the fee_policy_scope enum in Postgres.
type FeePolicyScope string

const (
	FeePolicyScopeAll       FeePolicyScope = "all"
	FeePolicyScopeDeal      FeePolicyScope = "deal"
	FeePolicyScopeLicense   FeePolicyScope = "license"
	FeePolicyScopeValuation FeePolicyScope = "valuation"
)

var validFeePolicyScopes = []FeePolicyScope{
	FeePolicyScopeAll,
	FeePolicyScopeDeal,
	FeePolicyScopeLicense,
	FeePolicyScopeValuation,
}

// IsValid reports whether the value matches the canonical fee_policy_scope enum.
func (f FeePolicyScope) IsValid() bool {
	for _, candidate := range validFeePolicyScopes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeePolicyScope converts raw input into FeePolicyScope.
func ParseFeePolicyScope(value string) (FeePolicyScope, error) {
	for _, candidate := range validFeePolicyScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee policy scope %q", value)
}
