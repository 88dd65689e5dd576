package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"globe.dev/node/consensus"
	"globe.dev/node/node"
	"globe.dev/node/node/store"
)

const usage = `usage: globe-node [flags] <command> [args]

commands:
  tip                      print the anon index tip
  resolve <index>          print the anon output at index
  mark-compromised <index> flag the anon output at index
  rewind <height>          disconnect anon blocks above height
  rangeproof-info <hex>    decode a range proof header
  rangeproof-params <value> print the range proof parameters for value
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	fs := flag.NewFlagSet("globe-node", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }

	configPath := fs.String("config", "", "JSON config file")
	network := fs.String("network", "", "network name (mainnet/testnet/regtest)")
	dataDir := fs.String("datadir", "", "node data directory")
	backend := fs.String("db-backend", "", "index backend: bolt|leveldb")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error")
	workers := fs.Int("verify-workers", 0, "parallel verification workers")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := node.LoadConfigFile(*configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "config load failed: %v\n", err)
			return 2
		}
		cfg = loaded
	}
	// Flags override the file.
	if *network != "" {
		cfg.Network = *network
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *backend != "" {
		cfg.DBBackend = *backend
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *workers != 0 {
		cfg.VerifyWorkers = *workers
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]

	// Commands that do not touch the index.
	switch cmd {
	case "rangeproof-info":
		return rangeProofInfo(cmdArgs, stdout, stderr)
	case "rangeproof-params":
		return rangeProofParams(cmdArgs, stdout, stderr)
	case "tip", "resolve", "mark-compromised", "rewind":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	state, err := node.NewAnonState(cfg, node.NewLogger(cfg.LogLevel, stderr))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anon index open failed: %v\n", err)
		return 2
	}
	defer func() { _ = state.Close() }()

	switch cmd {
	case "tip":
		return printTip(state, stdout, stderr)
	case "resolve":
		idx, ok := parseIndexArg(cmdArgs, stderr)
		if !ok {
			return 2
		}
		o, err := state.Resolve(idx)
		if errors.Is(err, store.ErrNotFound) {
			_, _ = fmt.Fprintf(stderr, "index %d not found\n", idx)
			return 1
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "resolve failed: %v\n", err)
			return 2
		}
		return printJSON(stdout, stderr, outputView(idx, o))
	case "mark-compromised":
		idx, ok := parseIndexArg(cmdArgs, stderr)
		if !ok {
			return 2
		}
		if err := state.MarkCompromised(idx); err != nil {
			_, _ = fmt.Fprintf(stderr, "mark-compromised failed: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "marked: index=%d\n", idx)
		return 0
	case "rewind":
		if len(cmdArgs) != 1 {
			_, _ = fmt.Fprintln(stderr, "rewind: expected <height>")
			return 2
		}
		h, err := strconv.ParseInt(cmdArgs[0], 10, 32)
		if err != nil || h < 0 {
			_, _ = fmt.Fprintf(stderr, "rewind: bad height %q\n", cmdArgs[0])
			return 2
		}
		released := make(map[consensus.KeyImage]struct{})
		n, err := state.Rollback().RewindToCheckpoint(int32(h), released)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "rewind failed after %d blocks: %v\n", n, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "rewound: blocks=%d key_images=%d\n", n, len(released))
		return printTip(state, stdout, stderr)
	}
	return 2
}

func parseIndexArg(args []string, stderr io.Writer) (uint64, bool) {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(stderr, "expected <index>")
		return 0, false
	}
	idx, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || idx == 0 {
		_, _ = fmt.Fprintf(stderr, "bad index %q\n", args[0])
		return 0, false
	}
	return idx, true
}

func printTip(state *node.AnonState, stdout, stderr io.Writer) int {
	tip, err := state.CurrentTip()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "tip read failed: %v\n", err)
		return 2
	}
	h, ok, err := state.TipHeight()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "tip height read failed: %v\n", err)
		return 2
	}
	if ok {
		_, _ = fmt.Fprintf(stdout, "anon index: tip=%d height=%d state=%s\n", tip, h, state.Rollback().State())
	} else {
		_, _ = fmt.Fprintf(stdout, "anon index: tip=%d height=none state=%s\n", tip, state.Rollback().State())
	}
	return 0
}

type anonOutputJSON struct {
	Index       uint64 `json:"index"`
	PubKey      string `json:"pubkey"`
	Commitment  string `json:"commitment"`
	TxID        string `json:"txid"`
	Vout        uint32 `json:"vout"`
	BlockHeight int32  `json:"block_height"`
	Compromised bool   `json:"compromised"`
}

func outputView(idx uint64, o consensus.AnonOutput) anonOutputJSON {
	return anonOutputJSON{
		Index:       idx,
		PubKey:      hex.EncodeToString(o.PubKey[:]),
		Commitment:  hex.EncodeToString(o.Commitment[:]),
		TxID:        hex.EncodeToString(o.OutPoint.TxID[:]),
		Vout:        o.OutPoint.Vout,
		BlockHeight: o.BlockHeight,
		Compromised: o.Compromised != 0,
	}
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 1
	}
	return 0
}

func rangeProofInfo(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(stderr, "rangeproof-info: expected <hex>")
		return 2
	}
	proof, err := hex.DecodeString(strings.TrimSpace(args[0]))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "rangeproof-info: bad hex: %v\n", err)
		return 2
	}
	info, err := consensus.GetRangeProofInfo(proof)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "rangeproof-info: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, map[string]any{
		"exponent":  info.Exponent,
		"mantissa":  info.Mantissa,
		"min_value": info.MinValue,
		"max_value": info.MaxValue,
	})
}

func rangeProofParams(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(stderr, "rangeproof-params: expected <value>")
		return 2
	}
	value, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "rangeproof-params: bad value %q\n", args[0])
		return 2
	}
	minValue, exponent, bits, err := consensus.SelectRangeProofParameters(value)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "rangeproof-params: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, map[string]any{
		"min_value": minValue,
		"exponent":  exponent,
		"bits":      bits,
	})
}
