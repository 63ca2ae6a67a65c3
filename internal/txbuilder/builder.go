// Package txbuilder binds resolved accounts and typed arguments to a named
// program method and assembles unsigned transactions.
package txbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
)

// Network is the slice of the pool the builder needs.
type Network interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulationResult, error)
}

// Builder assembles instructions and unsigned transactions for one program.
type Builder struct {
	reg     *idl.Registry
	network Network
	logger  *logrus.Logger

	// PriorityFee, in micro-lamports per compute unit, prepends a price
	// instruction when non-zero. ComputeUnitLimit is a separate opt-in.
	PriorityFee      uint64
	ComputeUnitLimit uint32
}

func New(reg *idl.Registry, network Network, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{reg: reg, network: network, logger: logger}
}

// Instruction binds args and accounts to the named method. Accounts are
// emitted in the method's declared order with its declared flags; a missing
// required role is an error, a missing optional role is skipped.
func (b *Builder) Instruction(methodName string, args map[string]interface{}, accounts map[string]solana.PublicKey) (solana.Instruction, error) {
	method, err := b.reg.Method(methodName)
	if err != nil {
		return nil, err
	}

	data, err := b.encodeArgs(method, args)
	if err != nil {
		return nil, err
	}

	metas := make(solana.AccountMetaSlice, 0, len(method.Accounts))
	for _, role := range method.Accounts {
		pk, ok := lookupAccount(accounts, role.Name)
		if !ok {
			if role.Optional {
				continue
			}
			return nil, fmt.Errorf("method %s: no account bound for role %q", method.Name, role.Name)
		}
		metas = append(metas, solana.NewAccountMeta(pk, role.Writable, role.Signer))
	}

	return solana.NewInstruction(b.reg.ProgramID, metas, data), nil
}

// Build assembles an unsigned transaction: optional compute-budget
// instructions first, then setup instructions, then the main instruction.
func (b *Builder) Build(ctx context.Context, feePayer solana.PublicKey, setup []solana.Instruction, main solana.Instruction) (*solana.Transaction, error) {
	blockhash, err := b.network.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	var ixs []solana.Instruction
	ixs = append(ixs, b.computeBudgetInstructions()...)
	ixs = append(ixs, setup...)
	ixs = append(ixs, main)

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}
	return tx, nil
}

// Simulate runs the transaction against the cluster without submitting it.
// When feePayer is zero an ephemeral key stands in, which works because
// simulation skips signature checks.
func (b *Builder) Simulate(ctx context.Context, feePayer solana.PublicKey, setup []solana.Instruction, main solana.Instruction) (*rpc.SimulationResult, error) {
	if feePayer.IsZero() {
		feePayer = solana.NewWallet().PublicKey()
	}
	tx, err := b.Build(ctx, feePayer, setup, main)
	if err != nil {
		return nil, err
	}
	sim, err := b.network.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	b.logger.WithFields(logrus.Fields{
		"success": sim.Success,
		"units":   sim.UnitsConsumed,
	}).Debug("simulation finished")
	return sim, nil
}

func lookupAccount(accounts map[string]solana.PublicKey, name string) (solana.PublicKey, bool) {
	if pk, ok := accounts[name]; ok {
		return pk, true
	}
	want := normalize(name)
	for k, pk := range accounts {
		if normalize(k) == want {
			return pk, true
		}
	}
	return solana.PublicKey{}, false
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
