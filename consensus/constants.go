package consensus

import "globe.dev/node/crypto"

// Ring and input bounds. These are part of the protocol contract.
const (
	MIN_RINGSIZE        = 3
	MAX_RINGSIZE        = 32
	MAX_ANON_INPUTS     = 32
	ANON_FEE_MULTIPLIER = 2
)

// ANON_MARKER in the prevout vout marks an anonymous input. The prevout txid
// then carries the input count (bytes 0..3) and ring size (bytes 4..7), u32le.
const ANON_MARKER uint32 = 0xffffffa0

const (
	COIN      uint64 = 100_000_000
	MAX_MONEY uint64 = 21_000_000 * COIN
)

// Output type tags on the wire.
const (
	OUTPUT_STANDARD uint8 = 1
	OUTPUT_CT       uint8 = 2
	OUTPUT_RINGCT   uint8 = 3
	OUTPUT_DATA     uint8 = 4
)

// DO_FEE introduces the varint fee inside the leading data output.
const DO_FEE byte = 6

// Parser caps.
const (
	MAX_TX_INPUTS         = 1024
	MAX_TX_OUTPUTS        = 1024
	MAX_SCRIPT_BYTES      = 10_000
	MAX_STACK_ITEMS       = 8
	MAX_STACK_ITEM_BYTES  = 64 * 1024
	MAX_DATA_OUTPUT_BYTES = 512
)

// Anon output ephemeral data: a 33 byte ephemeral pubkey plus up to 5 bytes
// of narration/lookahead metadata.
const (
	MIN_ANON_EPHEMERAL_BYTES = crypto.PointSize
	MAX_ANON_EPHEMERAL_BYTES = crypto.PointSize + 5
)

// Sizes of the anon input stacks.
const (
	KEY_IMAGE_BYTES         = crypto.PointSize
	PSEUDO_COMMITMENT_BYTES = crypto.PointSize
)
