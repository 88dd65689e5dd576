package node

import (
	"context"
	"sync"

	"globe.dev/node/consensus"
)

// TxVerifier checks one transaction and records the first failure in state.
// It must not mutate shared state.
type TxVerifier func(tx *consensus.Tx, state *consensus.ValidationState) bool

// VerifyBatch runs verify over txs on at most workers goroutines.
// results[i] is the state of txs[i]. If ctx is cancelled first, the
// unchecked entries stay nil and ctx.Err() is returned.
func VerifyBatch(ctx context.Context, txs []*consensus.Tx, workers int, verify TxVerifier) ([]*consensus.ValidationState, error) {
	results := make([]*consensus.ValidationState, len(txs))
	if len(txs) == 0 {
		return results, ctx.Err()
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(txs) {
		workers = len(txs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				state := &consensus.ValidationState{}
				verify(txs[i], state)
				results[i] = state
			}
		}()
	}

feed:
	for i := range txs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// FirstInvalid returns the position and state of the first failed result,
// or -1.
func FirstInvalid(results []*consensus.ValidationState) (int, *consensus.ValidationState) {
	for i, r := range results {
		if r != nil && !r.IsValid() {
			return i, r
		}
	}
	return -1, nil
}
