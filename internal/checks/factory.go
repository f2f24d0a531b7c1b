package checks

import (
	"errors"
	"fmt"
)

// Factory errors
var (
	ErrUnknownCheck        = errors.New("unknown check")
	ErrNoChecksEnabled     = errors.New("policy enables no checks")
	ErrInvalidLiquidityMin = errors.New("liquidity_threshold requires min_usd > 0 and warn_multiple >= 1")
	ErrInvalidOwnership    = errors.New("ownership_concentration shares must be within (0, 1]")
	ErrInvalidPairAge      = errors.New("pair_age requires 0 < fail_below <= warn_below")
	ErrInvalidVolumeRatio  = errors.New("volume_plausibility requires max_volume_to_liquidity > 0")
	ErrInvalidTimeout      = errors.New("check timeout must be positive")
)

// FromPolicy builds a Registry holding the enabled checks in policy order.
// Validates parameters per check and returns clear errors for invalid ones.
func FromPolicy(p Policy) (*Registry, error) {
	if len(p.Enabled) == 0 {
		return nil, ErrNoChecksEnabled
	}

	reg := NewRegistry()
	for _, name := range p.Enabled {
		c, err := fromName(name, p)
		if err != nil {
			return nil, err
		}

		timeout, hasOverride := p.Timeouts[name]
		if hasOverride && timeout <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, name)
		}
		if err := reg.RegisterWithTimeout(c, timeout); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Default builds the registry for DefaultPolicy.
func Default() *Registry {
	reg, err := FromPolicy(DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("default check policy is invalid: %v", err))
	}
	return reg
}

func fromName(name string, p Policy) (Check, error) {
	switch name {
	case NameLiquidityThreshold:
		if p.Liquidity.MinUSD <= 0 || p.Liquidity.WarnMultiple < 1 {
			return nil, ErrInvalidLiquidityMin
		}
		return NewLiquidityThreshold(p.Liquidity), nil
	case NameOwnershipConcentration:
		if !validShare(p.Ownership.MaxTop10Share) || !validShare(p.Ownership.MaxTopHolder) {
			return nil, ErrInvalidOwnership
		}
		return NewOwnershipConcentration(p.Ownership), nil
	case NameContractMutability:
		return NewContractMutability(p.Mutability), nil
	case NamePairAge:
		if p.PairAge.FailBelow <= 0 || p.PairAge.WarnBelow < p.PairAge.FailBelow {
			return nil, ErrInvalidPairAge
		}
		return NewPairAge(p.PairAge), nil
	case NameVolumePlausibility:
		if p.Volume.MaxVolumeToLiquidity <= 0 {
			return nil, ErrInvalidVolumeRatio
		}
		return NewVolumePlausibility(p.Volume), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCheck, name)
	}
}

func validShare(v float64) bool {
	return v > 0 && v <= 1
}
