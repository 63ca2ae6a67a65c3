package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpcpool"
)

// SendAndConfirm signs, submits, and waits until the cluster confirms the
// transaction or the context expires.
func (s *Signer) SendAndConfirm(ctx context.Context, pool *rpcpool.Pool, tx *solana.Transaction) (solana.Signature, error) {
	if err := s.SignTx(tx); err != nil {
		return solana.Signature{}, err
	}

	sig, err := pool.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}

	if err := Confirm(ctx, pool, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// Confirm polls signature status until the transaction is confirmed or
// finalized. A transaction error recorded on-chain is returned as an error.
func Confirm(ctx context.Context, pool *rpcpool.Pool, sig solana.Signature) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		statuses, err := pool.GetSignatureStatuses(ctx, []solana.Signature{sig})
		if err != nil {
			return fmt.Errorf("confirm %s: %w", sig, err)
		}
		if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
