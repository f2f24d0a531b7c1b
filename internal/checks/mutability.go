package checks

import (
	"context"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"token-vetting/internal/domain"
)

// ContractMutability fails tokens whose supply can still be minted by an owner
// and warns on freeze authority.
type ContractMutability struct {
	MutabilityPolicy
}

// NewContractMutability creates a ContractMutability check.
func NewContractMutability(p MutabilityPolicy) *ContractMutability {
	return &ContractMutability{MutabilityPolicy: p}
}

// Name implements Check.
func (c *ContractMutability) Name() string { return NameContractMutability }

// Evaluate implements Check.
func (c *ContractMutability) Evaluate(ctx context.Context, _ domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if !snap.ContractDataAvailable {
		return Outcome{}, fmt.Errorf("%w: contract metadata", ErrMissingData)
	}

	if snap.Mintable && !snap.OwnershipRenounced {
		return fail(c.FailScore, "supply is mintable by %s", describeAuthority(snap.MintAuthority)), nil
	}
	if snap.Freezable {
		return warn(c.WarnScore, "token accounts can be frozen"), nil
	}
	return pass(c.PassScore, "mint and freeze authorities revoked"), nil
}

// describeAuthority names the kind of key holding mint authority.
// Program-derived addresses are off the ed25519 curve and have no private key.
func describeAuthority(addr string) string {
	if addr == "" {
		return "an unknown authority"
	}
	if isOnCurve(addr) {
		return fmt.Sprintf("wallet %s", addr)
	}
	return fmt.Sprintf("program-derived address %s", addr)
}

// isOnCurve reports whether addr decodes to a valid ed25519 point.
func isOnCurve(addr string) bool {
	b, err := base58.Decode(addr)
	if err != nil || len(b) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}
