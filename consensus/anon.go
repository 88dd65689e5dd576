package consensus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"golang.org/x/tools/container/intsets"

	"globe.dev/node/crypto"
)

// RingView resolves ring members and chain key images for the verifier.
type RingView interface {
	// ResolveRingMember returns ok=false when index is outside the
	// currently valid range of the anonymous output index.
	ResolveRingMember(index uint64) (RingMember, bool, error)
	// SpentKeyImage reports whether a confirmed transaction already
	// presented ki.
	SpentKeyImage(ki KeyImage) (bool, error)
}

// KeyImagePool is the pool side of the double-spend check.
type KeyImagePool interface {
	HaveKeyImage(ki KeyImage) bool
}

type VerifyOptions struct {
	// Provider defaults to crypto.Secp256k1Provider.
	Provider crypto.Provider
	// Pool, when set, rejects key images held by another pooled tx.
	Pool KeyImagePool
	// SkipRangeProofs trusts range proofs (block import fast path).
	SkipRangeProofs bool
	// MinFeeRate is the relay fee per kB; anonymous transactions must pay
	// ANON_FEE_MULTIPLIER times it. Zero disables the floor.
	MinFeeRate uint64
}

func (o VerifyOptions) provider() crypto.Provider {
	if o.Provider == nil {
		return crypto.Secp256k1Provider{}
	}
	return o.Provider
}

// anonRing is one anon txin after structural decoding. Element (col, k)
// of indices, pubs and commits sits at col+k*ringSize.
type anonRing struct {
	nInputs   int
	ringSize  int
	indices   []uint64
	keyImages []KeyImage
	sig       *crypto.MLSAGSignature
	pseudo    crypto.Commitment
	pubs      []crypto.Point
	commits   []crypto.Commitment
}

func parseAnonInput(in *TxIn) (*anonRing, error) {
	nIn, ringSize := in.AnonInfo()
	if nIn < 1 || nIn > MAX_ANON_INPUTS {
		return nil, txerr(ANON_ERR_INPUT_COUNT, fmt.Sprintf("%d anon inputs", nIn))
	}
	if ringSize < MIN_RINGSIZE || ringSize > MAX_RINGSIZE {
		return nil, txerr(ANON_ERR_RING_SIZE, fmt.Sprintf("ring size %d", ringSize))
	}
	r := &anonRing{nInputs: int(nIn), ringSize: int(ringSize)}

	kis, err := in.KeyImages()
	if err != nil {
		return nil, err
	}
	r.keyImages = kis

	if len(in.ScriptWitness) != 2 {
		return nil, txerr(ANON_ERR_MALFORMED, "bad witness stack size")
	}
	raw := in.ScriptWitness[0]
	r.indices = make([]uint64, r.nInputs*r.ringSize)
	off := 0
	for i := range r.indices {
		v, n := binary.Uvarint(raw[off:])
		if n <= 0 {
			return nil, txerr(ANON_ERR_MALFORMED, "bad ring member index")
		}
		r.indices[i] = v
		off += n
	}
	if off != len(raw) {
		return nil, txerr(ANON_ERR_MALFORMED, "trailing ring member data")
	}

	rows := r.nInputs + 1
	sigBytes := in.ScriptWitness[1]
	sigLen := crypto.MLSAGSignatureSize(r.ringSize, rows)
	if len(sigBytes) != sigLen+PSEUDO_COMMITMENT_BYTES {
		return nil, txerr(ANON_ERR_MALFORMED, fmt.Sprintf("bad mlsag size %d", len(sigBytes)))
	}
	if r.sig, err = crypto.ParseMLSAGSignature(sigBytes[:sigLen], r.ringSize, rows); err != nil {
		return nil, txerr(ANON_ERR_MALFORMED, err.Error())
	}
	copy(r.pseudo[:], sigBytes[sigLen:])
	return r, nil
}

// EncodeRingIndices packs ring member indices for ScriptWitness[0].
func EncodeRingIndices(indices []uint64) []byte {
	var out []byte
	for _, idx := range indices {
		out = binary.AppendUvarint(out, idx)
	}
	return out
}

// VerifyMLSAG checks every anonymous input of tx: ring shape, member
// resolution, the ring signature, the range proofs of hidden outputs and the
// commitment balance against the explicit fee. It never mutates state; the
// first failure is recorded in state and false is returned. A tx without
// anonymous inputs passes trivially.
func VerifyMLSAG(tx *Tx, view RingView, opts VerifyOptions, state *ValidationState) bool {
	nAnon := 0
	for i := range tx.Inputs {
		if tx.Inputs[i].IsAnon() {
			nAnon++
		}
	}
	if nAnon == 0 {
		return true
	}
	if nAnon != len(tx.Inputs) {
		return state.Invalid(TX_ERR_MIXED_INPUTS, "mixed input types")
	}

	// Structure only: no curve arithmetic and no index reads until every
	// input has acceptable bounds.
	rings := make([]*anonRing, len(tx.Inputs))
	for i := range tx.Inputs {
		r, err := parseAnonInput(&tx.Inputs[i])
		if err != nil {
			return state.invalidErr(ANON_ERR_MALFORMED, fmt.Errorf("input %d: %w", i, err))
		}
		rings[i] = r
	}

	var members intsets.Sparse
	seen := make(map[KeyImage]struct{})
	for _, r := range rings {
		for _, idx := range r.indices {
			if idx == 0 || idx > math.MaxInt {
				return state.Invalid(ANON_ERR_MEMBER_UNKNOWN, fmt.Sprintf("ring member %d out of range", idx))
			}
			if !members.Insert(int(idx)) {
				return state.Invalid(ANON_ERR_MEMBER_DUP, fmt.Sprintf("duplicate ring member %d", idx))
			}
		}
		for _, ki := range r.keyImages {
			if _, dup := seen[ki]; dup {
				return state.Invalid(ANON_ERR_KEYIMAGE_DUP, fmt.Sprintf("duplicate key image %x", ki[:]))
			}
			seen[ki] = struct{}{}
		}
	}

	if !CheckOutputs(tx, state) {
		return false
	}
	fee, err := GetCTFee(tx)
	if err != nil {
		return state.invalidErr(TX_ERR_FEE, err)
	}
	if opts.MinFeeRate > 0 {
		b, err := MarshalTx(tx)
		if err != nil {
			return state.Invalid(TX_ERR_PARSE, err.Error())
		}
		if floor := MinAnonFee(len(b), opts.MinFeeRate); fee < floor {
			return state.Invalid(TX_ERR_FEE, fmt.Sprintf("fee %d below anon minimum %d", fee, floor))
		}
	}

	plain := fee
	var outCommits []crypto.Commitment
	for _, o := range tx.Outputs {
		switch out := o.(type) {
		case *StandardOutput:
			var carry uint64
			plain, carry = bits.Add64(plain, out.Value, 0)
			if carry != 0 || plain > MAX_MONEY {
				return state.Invalid(TX_ERR_OUTPUT, "plain value out of range")
			}
		case *DataOutput:
		case *ConfidentialOutput:
			outCommits = append(outCommits, out.Commitment)
		case *RingCTOutput:
			outCommits = append(outCommits, out.Commitment)
		}
	}

	for ki := range seen {
		if opts.Pool != nil && opts.Pool.HaveKeyImage(ki) {
			return state.Invalid(ANON_ERR_KEYIMAGE_POOL, fmt.Sprintf("key image %x in mempool", ki[:]))
		}
		spent, err := view.SpentKeyImage(ki)
		if err != nil {
			return state.Invalid(ANON_ERR_INDEX_READ, err.Error())
		}
		if spent {
			return state.Invalid(ANON_ERR_KEYIMAGE_SPENT, fmt.Sprintf("key image %x spent", ki[:]))
		}
	}

	// (a) resolve ring members.
	for _, r := range rings {
		r.pubs = make([]crypto.Point, len(r.indices))
		r.commits = make([]crypto.Commitment, len(r.indices))
		for i, idx := range r.indices {
			m, ok, err := view.ResolveRingMember(idx)
			if err != nil {
				return state.Invalid(ANON_ERR_INDEX_READ, err.Error())
			}
			if !ok {
				return state.Invalid(ANON_ERR_MEMBER_UNKNOWN, fmt.Sprintf("unknown ring member %d", idx))
			}
			r.pubs[i] = m.PubKey
			r.commits[i] = m.Commitment
		}
	}

	// (b) ring equations.
	p := opts.provider()
	txid, err := TxID(p, tx)
	if err != nil {
		return state.Invalid(TX_ERR_PARSE, err.Error())
	}
	pseudos := make([]crypto.Commitment, 0, len(rings))
	for i, r := range rings {
		commitRow, err := crypto.PrepareCommitmentRow(r.ringSize, r.nInputs, r.commits, []crypto.Commitment{r.pseudo})
		if err != nil {
			return state.Invalid(ANON_ERR_MALFORMED, fmt.Sprintf("input %d: %v", i, err))
		}
		matrix := make([]crypto.Point, 0, len(r.pubs)+len(commitRow))
		matrix = append(matrix, r.pubs...)
		matrix = append(matrix, commitRow...)
		kis := make([]crypto.Point, len(r.keyImages))
		for k := range r.keyImages {
			kis[k] = crypto.Point(r.keyImages[k])
		}
		err = p.VerifyMLSAG(txid, r.ringSize, r.nInputs+1, matrix, kis, r.sig)
		switch {
		case errors.Is(err, crypto.ErrMLSAGMismatch):
			return state.Invalid(ANON_ERR_SIG_MISMATCH, fmt.Sprintf("input %d: mlsag mismatch", i))
		case err != nil:
			return state.Invalid(ANON_ERR_MALFORMED, fmt.Sprintf("input %d: %v", i, err))
		}
		pseudos = append(pseudos, r.pseudo)
	}

	// (c) range proofs.
	if !opts.SkipRangeProofs {
		for i, o := range tx.Outputs {
			var c crypto.Commitment
			var proof []byte
			switch out := o.(type) {
			case *ConfidentialOutput:
				c, proof = out.Commitment, out.RangeProof
			case *RingCTOutput:
				c, proof = out.Commitment, out.RangeProof
			default:
				continue
			}
			if _, _, err := p.VerifyRange(c, proof); err != nil {
				return state.Invalid(ANON_ERR_RANGEPROOF, fmt.Sprintf("output %d: %v", i, err))
			}
		}
	}

	// (d) Σ pseudo == Σ out + plain·H.
	if plain > 0 {
		pc, err := crypto.Commit(crypto.Scalar{}, plain)
		if err != nil {
			return state.Invalid(ANON_ERR_MALFORMED, err.Error())
		}
		outCommits = append(outCommits, pc)
	}
	ok, err := p.VerifyTally(pseudos, outCommits)
	if err != nil {
		return state.Invalid(ANON_ERR_MALFORMED, err.Error())
	}
	if !ok {
		return state.Invalid(ANON_ERR_COMMITMENT_SUM, "commitments do not balance")
	}
	return true
}
