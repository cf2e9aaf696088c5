package feepolicies

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
)

// SnapshotVersion is bumped whenever the Snapshot layout changes.
const SnapshotVersion = 1

// DefaultPolicyName labels snapshots taken when no active policy exists.
const DefaultPolicyName = "platform default"

var hundred = decimal.NewFromInt(100)

// Snapshot is the durable record of the fee rule applied to a settlement.
type Snapshot struct {
	Version     int        `json:"version"`
	PolicyID    *uuid.UUID `json:"policy_id,omitempty"`
	PolicyName  string     `json:"policy_name"`
	Scope       string     `json:"scope,omitempty"`
	RatePercent string     `json:"rate_percent"`
	FixedFee    string     `json:"fixed_fee"`
	Gross       string     `json:"gross"`
	Fee         string     `json:"fee"`
	Net         string     `json:"net"`
	Default     bool       `json:"default"`
	AppliedAt   time.Time  `json:"applied_at"`
}

// Apply computes the fee on gross. A nil policy falls back to defaultRate with
// no fixed fee. The fee is rounded to cents and never exceeds gross.
func Apply(policy *models.FeePolicy, defaultRate, gross decimal.Decimal, now time.Time) Snapshot {
	snap := Snapshot{
		Version:   SnapshotVersion,
		AppliedAt: now.UTC(),
	}

	rate := defaultRate
	fixed := decimal.Zero
	if policy != nil {
		id := policy.ID
		snap.PolicyID = &id
		snap.PolicyName = policy.Name
		snap.Scope = string(policy.ApplicableTo)
		rate = policy.RatePercent
		fixed = policy.FixedFee
	} else {
		snap.PolicyName = DefaultPolicyName
		snap.Default = true
	}

	fee := gross.Mul(rate).Div(hundred).Add(fixed).Round(2)
	if fee.GreaterThan(gross) {
		fee = gross
	}
	if fee.IsNegative() {
		fee = decimal.Zero
	}

	snap.RatePercent = rate.String()
	snap.FixedFee = fixed.StringFixed(2)
	snap.Gross = gross.StringFixed(2)
	snap.Fee = fee.StringFixed(2)
	snap.Net = gross.Sub(fee).StringFixed(2)
	return snap
}

// Note renders the snapshot as the human-readable provenance line kept on the settlement.
func (s Snapshot) Note() string {
	return fmt.Sprintf("Fee policy %q applied at %s%% + %s: gross %s, fee %s, net %s",
		s.PolicyName, s.RatePercent, s.FixedFee, s.Gross, s.Fee, s.Net)
}
