package consensus

import "globe.dev/node/crypto"

// TxID is SHA3-256 over the transaction without anon witness stacks. Key
// images are covered; MLSAG signatures are not. It is also the message each
// ring signs.
func TxID(p crypto.Provider, tx *Tx) ([32]byte, error) {
	b, err := TxNoWitnessBytes(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return p.SHA3_256(b), nil
}
