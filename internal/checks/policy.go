package checks

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Check names. Stable across releases.
const (
	NameLiquidityThreshold     = "liquidity_threshold"
	NameOwnershipConcentration = "ownership_concentration"
	NameContractMutability     = "contract_mutability"
	NamePairAge                = "pair_age"
	NameVolumePlausibility     = "volume_plausibility"
)

// Policy is the configurable check catalog: which checks run, in which
// order, with which thresholds and score weights.
type Policy struct {
	Enabled  []string                 `yaml:"enabled"`
	Timeouts map[string]time.Duration `yaml:"timeouts"`

	Liquidity  LiquidityPolicy  `yaml:"liquidity_threshold"`
	Ownership  OwnershipPolicy  `yaml:"ownership_concentration"`
	Mutability MutabilityPolicy `yaml:"contract_mutability"`
	PairAge    PairAgePolicy    `yaml:"pair_age"`
	Volume     VolumePolicy     `yaml:"volume_plausibility"`
}

// LiquidityPolicy configures liquidity_threshold.
type LiquidityPolicy struct {
	MinUSD       float64 `yaml:"min_usd"`
	WarnMultiple float64 `yaml:"warn_multiple"` // warn below MinUSD*WarnMultiple
	FailScore    int     `yaml:"fail_score"`
	WarnScore    int     `yaml:"warn_score"`
	PassScore    int     `yaml:"pass_score"`
}

// OwnershipPolicy configures ownership_concentration.
type OwnershipPolicy struct {
	MaxTop10Share  float64 `yaml:"max_top10_share"`
	MaxTopHolder   float64 `yaml:"max_top_holder_share"`
	MinHolderCount int     `yaml:"min_holder_count"`
	FailScore      int     `yaml:"fail_score"`
	WarnScore      int     `yaml:"warn_score"`
	PassScore      int     `yaml:"pass_score"`
}

// MutabilityPolicy configures contract_mutability.
type MutabilityPolicy struct {
	FailScore int `yaml:"fail_score"`
	WarnScore int `yaml:"warn_score"`
	PassScore int `yaml:"pass_score"`
}

// PairAgePolicy configures pair_age.
type PairAgePolicy struct {
	FailBelow time.Duration `yaml:"fail_below"`
	WarnBelow time.Duration `yaml:"warn_below"`
	FailScore int           `yaml:"fail_score"`
	WarnScore int           `yaml:"warn_score"`
	PassScore int           `yaml:"pass_score"`
}

// VolumePolicy configures volume_plausibility.
type VolumePolicy struct {
	MaxVolumeToLiquidity float64 `yaml:"max_volume_to_liquidity"`
	IdleScore            int     `yaml:"idle_score"`
	WashScore            int     `yaml:"wash_score"`
	PassScore            int     `yaml:"pass_score"`
}

// DefaultPolicy returns the built-in catalog.
func DefaultPolicy() Policy {
	return Policy{
		Enabled: []string{
			NameLiquidityThreshold,
			NameOwnershipConcentration,
			NameContractMutability,
			NamePairAge,
			NameVolumePlausibility,
		},
		Liquidity: LiquidityPolicy{
			MinUSD:       10_000,
			WarnMultiple: 2,
			FailScore:    -50,
			WarnScore:    -10,
			PassScore:    20,
		},
		Ownership: OwnershipPolicy{
			MaxTop10Share:  0.50,
			MaxTopHolder:   0.15,
			MinHolderCount: 100,
			FailScore:      -40,
			WarnScore:      -15,
			PassScore:      20,
		},
		Mutability: MutabilityPolicy{
			FailScore: -30,
			WarnScore: -15,
			PassScore: 15,
		},
		PairAge: PairAgePolicy{
			FailBelow: time.Hour,
			WarnBelow: 24 * time.Hour,
			FailScore: -30,
			WarnScore: -20,
			PassScore: 10,
		},
		Volume: VolumePolicy{
			MaxVolumeToLiquidity: 20,
			IdleScore:            -10,
			WashScore:            -20,
			PassScore:            10,
		},
	}
}

// LoadPolicy reads a YAML policy file over DefaultPolicy.
// Fields absent from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return p, nil
}
