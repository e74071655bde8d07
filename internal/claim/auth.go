package claim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
)

type role int

const (
	roleAnyone role = iota
	roleOwner
	roleAuthority
)

func (r role) String() string {
	switch r {
	case roleOwner:
		return "owner"
	case roleAuthority:
		return "authority"
	default:
		return "anyone"
	}
}

// authorize is the single role check used by every state-changing operation.
func (c *Claim) authorize(caller common.Address, r role) error {
	var want common.Address
	switch r {
	case roleAnyone:
		return nil
	case roleOwner:
		want = c.rec.Owner
	case roleAuthority:
		want = c.rec.Terms.Authority
	}
	if caller != want {
		return fmt.Errorf("%w: %s is not the %s of claim %s",
			domain.ErrUnauthorized, caller.Hex(), r, c.rec.Address.Hex())
	}
	return nil
}
