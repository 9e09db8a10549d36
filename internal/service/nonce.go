package service

import (
	"context"
	"fmt"

	"minter-core/internal/state"
	"minter-core/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// InitializeNonce opens a fresh event log with an Initialized event so that
// the first created transaction continues the on-chain history of address.
// A non-negative configured value is used as is, a negative one reads the
// latest transaction count. Logs that already hold events are left alone.
func InitializeNonce(ctx context.Context, events EventLog, chain ChainClient, address common.Address, configured int64) (uint64, error) {
	var fresh bool
	var next uint64
	events.Read(func(st *state.EthTransactions) {
		fresh = st.Fresh()
		next = st.NextNonce()
	})
	if !fresh {
		return next, nil
	}

	if configured >= 0 {
		next = uint64(configured)
	} else {
		latest, err := chain.LatestTransactionCount(ctx, address)
		if err != nil {
			return 0, fmt.Errorf("initial nonce of %s: %w", address, err)
		}
		next = latest
	}
	if _, err := events.AppendAndApply(ctx, state.Initialized{NextTransactionNonce: next}); err != nil {
		return 0, err
	}
	logger.Info("initialized transaction nonce",
		zap.Stringer("address", address),
		zap.Uint64("next_nonce", next),
		zap.Bool("from_chain", configured < 0))
	return next, nil
}
