package consensus

import (
	"fmt"

	"globe.dev/node/crypto"
)

// OutputLookup finds an anonymous output by its public key.
type OutputLookup interface {
	FindByPubKey(pk crypto.Point) (uint64, bool, error)
}

// AllAnonOutputsUnknown fails when a RingCT output of tx reuses a public key
// already present in the index, or repeats one within tx.
func AllAnonOutputsUnknown(tx *Tx, lookup OutputLookup, state *ValidationState) bool {
	seen := make(map[crypto.Point]struct{})
	for i, o := range tx.Outputs {
		rct, ok := o.(*RingCTOutput)
		if !ok {
			continue
		}
		if _, dup := seen[rct.PubKey]; dup {
			return state.Invalid(ANON_ERR_OUTPUT_KNOWN, fmt.Sprintf("output %d repeats a pubkey", i))
		}
		seen[rct.PubKey] = struct{}{}
		idx, found, err := lookup.FindByPubKey(rct.PubKey)
		if err != nil {
			return state.Invalid(ANON_ERR_INDEX_READ, err.Error())
		}
		if found {
			return state.Invalid(ANON_ERR_OUTPUT_KNOWN, fmt.Sprintf("output %d pubkey already at index %d", i, idx))
		}
	}
	return true
}
