package consensus

import "fmt"

type ErrorCode string

const (
	TX_ERR_PARSE        ErrorCode = "TX_ERR_PARSE"
	TX_ERR_MIXED_INPUTS ErrorCode = "TX_ERR_MIXED_INPUTS"
	TX_ERR_OUTPUT       ErrorCode = "TX_ERR_OUTPUT"
	TX_ERR_FEE          ErrorCode = "TX_ERR_FEE"

	ANON_ERR_INPUT_COUNT     ErrorCode = "ANON_ERR_INPUT_COUNT"
	ANON_ERR_RING_SIZE       ErrorCode = "ANON_ERR_RING_SIZE"
	ANON_ERR_MALFORMED       ErrorCode = "ANON_ERR_MALFORMED"
	ANON_ERR_MEMBER_UNKNOWN  ErrorCode = "ANON_ERR_MEMBER_UNKNOWN"
	ANON_ERR_MEMBER_DUP      ErrorCode = "ANON_ERR_MEMBER_DUP"
	ANON_ERR_KEYIMAGE_DUP    ErrorCode = "ANON_ERR_KEYIMAGE_DUP"
	ANON_ERR_KEYIMAGE_SPENT  ErrorCode = "ANON_ERR_KEYIMAGE_SPENT"
	ANON_ERR_KEYIMAGE_POOL   ErrorCode = "ANON_ERR_KEYIMAGE_POOL"
	ANON_ERR_SIG_MISMATCH    ErrorCode = "ANON_ERR_SIG_MISMATCH"
	ANON_ERR_RANGEPROOF      ErrorCode = "ANON_ERR_RANGEPROOF"
	ANON_ERR_COMMITMENT_SUM  ErrorCode = "ANON_ERR_COMMITMENT_SUM"
	ANON_ERR_OUTPUT_KNOWN    ErrorCode = "ANON_ERR_OUTPUT_KNOWN"
	ANON_ERR_INDEX_READ      ErrorCode = "ANON_ERR_INDEX_READ"
	ANON_ERR_INDEX_CORRUPT   ErrorCode = "ANON_ERR_INDEX_CORRUPT"
)

// ErrorClass groups codes by how a caller should react to them.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassMalformed
	ClassUnresolved
	ClassCrypto
	ClassDoubleSpend
	ClassPolicy
	ClassCorruption
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassMalformed:
		return "malformed"
	case ClassUnresolved:
		return "unresolved"
	case ClassCrypto:
		return "crypto"
	case ClassDoubleSpend:
		return "double-spend"
	case ClassPolicy:
		return "policy"
	case ClassCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

// Class returns the rejection class of a code.
func (c ErrorCode) Class() ErrorClass {
	switch c {
	case "":
		return ClassNone
	case TX_ERR_PARSE, TX_ERR_MIXED_INPUTS, TX_ERR_OUTPUT,
		ANON_ERR_INPUT_COUNT, ANON_ERR_RING_SIZE, ANON_ERR_MALFORMED,
		ANON_ERR_MEMBER_DUP, ANON_ERR_KEYIMAGE_DUP, ANON_ERR_OUTPUT_KNOWN:
		return ClassMalformed
	case ANON_ERR_MEMBER_UNKNOWN:
		return ClassUnresolved
	case ANON_ERR_SIG_MISMATCH, ANON_ERR_RANGEPROOF, ANON_ERR_COMMITMENT_SUM:
		return ClassCrypto
	case ANON_ERR_KEYIMAGE_SPENT, ANON_ERR_KEYIMAGE_POOL:
		return ClassDoubleSpend
	case TX_ERR_FEE:
		return ClassPolicy
	case ANON_ERR_INDEX_READ, ANON_ERR_INDEX_CORRUPT:
		return ClassCorruption
	default:
		return ClassMalformed
	}
}

// DoS returns the peer misbehaviour score for a code. A key image already
// spent on chain is a provable double spend; a pool conflict may be a race.
func (c ErrorCode) DoS() int {
	switch c.Class() {
	case ClassMalformed, ClassUnresolved, ClassCrypto:
		return 100
	case ClassDoubleSpend:
		if c == ANON_ERR_KEYIMAGE_SPENT {
			return 100
		}
		return 0
	default:
		return 0
	}
}

type TxError struct {
	Code ErrorCode
	Msg  string
}

func (e *TxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func txerr(code ErrorCode, msg string) error {
	return &TxError{Code: code, Msg: msg}
}
