// Package ensure emits the setup instructions a request depends on: the
// associated token accounts it references and enough wrapped SOL to fund it.
// Everything here is read-then-decide; nothing is submitted.
package ensure

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
)

const (
	ixSyncNative   = 17
	ixCloseAccount = 9
	sysIxTransfer  = 2

	// token account layout: mint(32) owner(32) amount(8) ...
	tokenAmountOffset = 64
)

// AccountFetcher is the read capability Ensurer needs; the pool satisfies it.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.AccountInfo, error)
}

// Ensurer decides which setup instructions a transaction needs.
type Ensurer struct {
	fetcher AccountFetcher
	logger  *logrus.Logger
}

func New(fetcher AccountFetcher, logger *logrus.Logger) *Ensurer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ensurer{fetcher: fetcher, logger: logger}
}

// EnsureATA returns the associated token account for (owner, mint) and, when
// the account does not exist yet, an idempotent creation instruction. The
// creation uses the idempotent variant so a concurrent creator cannot make
// the transaction fail.
func (e *Ensurer) EnsureATA(ctx context.Context, payer, owner, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("derive associated account: %w", err)
	}

	info, err := e.fetcher.GetAccountInfo(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("check associated account %s: %w", ata, err)
	}
	if info != nil {
		return ata, nil, nil
	}

	e.logger.WithFields(logrus.Fields{
		"ata":  ata.String(),
		"mint": mint.String(),
	}).Debug("associated account missing, queueing creation")

	ix := solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		[]byte{1}, // CreateIdempotent
	)
	return ata, ix, nil
}

// EnsureWrappedBalance tops the owner's wrapped-SOL account up to exactly
// requiredLamports: a system transfer of the shortfall followed by a
// sync-native so the token balance reflects it. Returns no instructions when
// the balance already suffices.
func (e *Ensurer) EnsureWrappedBalance(ctx context.Context, owner solana.PublicKey, requiredLamports uint64) ([]solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, solana.SolMint)
	if err != nil {
		return nil, fmt.Errorf("derive wrapped account: %w", err)
	}

	var current uint64
	info, err := e.fetcher.GetAccountInfo(ctx, ata)
	if err != nil {
		return nil, fmt.Errorf("read wrapped account %s: %w", ata, err)
	}
	if info != nil {
		if len(info.Data) < tokenAmountOffset+8 {
			return nil, fmt.Errorf("wrapped account %s has short data (%d bytes)", ata, len(info.Data))
		}
		current = binary.LittleEndian.Uint64(info.Data[tokenAmountOffset:])
	}

	if current >= requiredLamports {
		return nil, nil
	}
	shortfall := requiredLamports - current

	e.logger.WithFields(logrus.Fields{
		"ata":       ata.String(),
		"current":   current,
		"required":  requiredLamports,
		"shortfall": shortfall,
	}).Debug("topping up wrapped balance")

	transferData := make([]byte, 12)
	binary.LittleEndian.PutUint32(transferData, sysIxTransfer)
	binary.LittleEndian.PutUint64(transferData[4:], shortfall)

	return []solana.Instruction{
		solana.NewInstruction(
			solana.SystemProgramID,
			solana.AccountMetaSlice{
				solana.NewAccountMeta(owner, true, true),
				solana.NewAccountMeta(ata, true, false),
			},
			transferData,
		),
		solana.NewInstruction(
			solana.TokenProgramID,
			solana.AccountMetaSlice{
				solana.NewAccountMeta(ata, true, false),
			},
			[]byte{ixSyncNative},
		),
	}, nil
}

// CloseWrappedAccount builds the instruction that unwraps any residual SOL
// back to the owner.
func CloseWrappedAccount(owner solana.PublicKey) (solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, solana.SolMint)
	if err != nil {
		return nil, fmt.Errorf("derive wrapped account: %w", err)
	}
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		[]byte{ixCloseAccount},
	), nil
}
