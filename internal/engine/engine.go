// Package engine wires the pipeline together: resolve an intent, ensure its
// dependencies, build and simulate the transaction, optionally submit it and
// watch for the fill.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/cache"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/diaglog"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/ensure"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/markets"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/resolver"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpcpool"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/txbuilder"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/txlog"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/wallet"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/watcher"
)

// Engine owns one configured pipeline instance.
type Engine struct {
	reg      *idl.Registry
	markets  *markets.Registry
	resolver *resolver.Resolver
	ensurer  *ensure.Ensurer
	builder  *txbuilder.Builder
	pool     *rpcpool.Pool
	signer   *wallet.Signer // nil in dry-run mode
	txlog    *txlog.Store   // optional
	cache    *cache.Cache   // optional
	logger   *logrus.Logger

	fillTimeout  time.Duration
	pollInterval time.Duration
}

// Options collects the engine's collaborators. Signer, Txlog, and Cache may
// be nil.
type Options struct {
	Registry     *idl.Registry
	Markets      *markets.Registry
	Resolver     *resolver.Resolver
	Ensurer      *ensure.Ensurer
	Builder      *txbuilder.Builder
	Pool         *rpcpool.Pool
	Signer       *wallet.Signer
	Txlog        *txlog.Store
	Cache        *cache.Cache
	Logger       *logrus.Logger
	FillTimeout  time.Duration
	PollInterval time.Duration
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.FillTimeout <= 0 {
		opts.FillTimeout = 90 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Engine{
		reg:          opts.Registry,
		markets:      opts.Markets,
		resolver:     opts.Resolver,
		ensurer:      opts.Ensurer,
		builder:      opts.Builder,
		pool:         opts.Pool,
		signer:       opts.Signer,
		txlog:        opts.Txlog,
		cache:        opts.Cache,
		logger:       opts.Logger,
		fillTimeout:  opts.FillTimeout,
		pollInterval: opts.PollInterval,
	}
}

// Outcome reports what a run produced. Simulation failures carry a parsed
// diagnostic alongside the raw logs.
type Outcome struct {
	Resolved   *resolver.Resolved
	Simulation *rpc.SimulationResult
	Diagnostic *diaglog.Diagnostic
	Signature  solana.Signature
	Filled     bool
}

type prepared struct {
	res   *resolver.Resolved
	setup []solana.Instruction
	main  solana.Instruction
}

// methodCandidates maps an operation to the instruction names used across
// program versions, oldest alias last.
func methodCandidates(op resolver.Operation) ([]string, []string) {
	if op == resolver.OpIncrease {
		return []string{
			"createIncreasePositionMarketRequest",
			"createIncreasePositionRequest",
		}, []string{"increase", "request"}
	}
	return []string{
		"createDecreasePositionMarketRequest",
		"createDecreasePositionRequest",
	}, []string{"decrease", "request"}
}

func (e *Engine) prepare(ctx context.Context, in *resolver.Intent) (*prepared, error) {
	candidates, fallback := methodCandidates(in.Operation)
	method, err := e.reg.FindMethod(candidates, fallback)
	if err != nil {
		return nil, err
	}

	res, err := e.resolver.Resolve(in, method)
	if err != nil {
		return nil, err
	}

	market, err := e.markets.Resolve(in.Market)
	if err != nil {
		return nil, err
	}

	var setup []solana.Instruction
	collateralTokens := uint64(0)
	if in.Operation == resolver.OpIncrease {
		collateralTokens, err = collateralTokenAmount(in, market)
		if err != nil {
			return nil, err
		}

		_, createIx, err := e.ensurer.EnsureATA(ctx, in.Owner, in.Owner, market.InputMint)
		if err != nil {
			return nil, err
		}
		if createIx != nil {
			setup = append(setup, createIx)
		}

		if market.InputMint.Equals(solana.SolMint) && collateralTokens > 0 {
			topUp, err := e.ensurer.EnsureWrappedBalance(ctx, in.Owner, collateralTokens)
			if err != nil {
				return nil, err
			}
			setup = append(setup, topUp...)
		}
	}

	args, err := bindArgs(method, res, in, collateralTokens)
	if err != nil {
		return nil, err
	}

	main, err := e.builder.Instruction(method.Name, args, res.Accounts)
	if err != nil {
		return nil, err
	}

	return &prepared{res: res, setup: setup, main: main}, nil
}

// bindArgs fills the method's declared arguments from the resolved intent.
// Binding is by argument name so version-to-version arg reordering cannot
// scramble values.
func bindArgs(method *idl.Method, res *resolver.Resolved, in *resolver.Intent, collateralTokens uint64) (map[string]interface{}, error) {
	sideVariant := "Long"
	if in.Side == resolver.SideShort {
		sideVariant = "Short"
	}

	args := make(map[string]interface{}, len(method.Args))
	for _, f := range method.Args {
		switch normalizeArg(f.Name) {
		case "sizeusddelta", "sizeusd":
			args[f.Name] = res.SizeUsd
		case "collateraltokendelta", "collateraldelta":
			args[f.Name] = collateralTokens
		case "collateralusddelta", "collateralusd":
			args[f.Name] = res.Collateral
		case "side":
			args[f.Name] = sideVariant
		case "priceslippage", "price", "triggerprice":
			args[f.Name] = &res.Guardrail.MicroUsd
		case "counter":
			args[f.Name] = res.Counter
		case "entireposition":
			// A decrease with no size and no collateral delta closes the
			// whole position; a collateral-only withdrawal does not.
			args[f.Name] = res.SizeUsd == 0 && res.Collateral == 0
		case "jupiterminimumout":
			args[f.Name] = (*uint64)(nil)
		default:
			return nil, fmt.Errorf("method %s: no binding for argument %q", method.Name, f.Name)
		}
	}
	return args, nil
}

// collateralTokenAmount converts the collateral USD amount into the input
// mint's smallest unit using the oracle price for non-stable inputs.
func collateralTokenAmount(in *resolver.Intent, market *markets.Market) (uint64, error) {
	if in.CollateralUsd.IsZero() {
		return 0, nil
	}
	if market.InputMint.Equals(solana.SolMint) {
		if in.OraclePrice.Sign() <= 0 {
			return 0, fmt.Errorf("oracle price required to size collateral in SOL")
		}
		lamports := in.CollateralUsd.Div(in.OraclePrice).Shift(9).Truncate(0)
		if !lamports.BigInt().IsUint64() {
			return 0, fmt.Errorf("collateral amount out of range")
		}
		return lamports.BigInt().Uint64(), nil
	}
	// stable input: 6-decimal token units track micro-USD one to one
	units := in.CollateralUsd.Shift(6).Truncate(0)
	if units.Sign() < 0 || !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("collateral amount out of range")
	}
	return units.BigInt().Uint64(), nil
}

// DryRun resolves, builds, and simulates without signing or submitting.
func (e *Engine) DryRun(ctx context.Context, in *resolver.Intent) (*Outcome, error) {
	p, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	feePayer := solana.PublicKey{}
	if e.signer != nil {
		feePayer = e.signer.PublicKey()
	}
	sim, err := e.builder.Simulate(ctx, feePayer, p.setup, p.main)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Resolved: p.res, Simulation: sim}
	if !sim.Success {
		diag := diaglog.Parse(sim.Logs)
		out.Diagnostic = &diag
	}

	e.record(ctx, in, out, false)
	return out, nil
}

// Execute runs the full pipeline: simulate first, then sign, submit,
// confirm, and watch the request account for its fill.
func (e *Engine) Execute(ctx context.Context, in *resolver.Intent) (*Outcome, error) {
	if e.signer == nil {
		return nil, fmt.Errorf("no signer configured; use dry-run")
	}

	p, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	sim, err := e.builder.Simulate(ctx, e.signer.PublicKey(), p.setup, p.main)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Resolved: p.res, Simulation: sim}
	if !sim.Success {
		diag := diaglog.Parse(sim.Logs)
		out.Diagnostic = &diag
		e.record(ctx, in, out, false)
		return out, fmt.Errorf("simulation failed: %s", sim.Err)
	}

	tx, err := e.builder.Build(ctx, e.signer.PublicKey(), p.setup, p.main)
	if err != nil {
		return nil, err
	}
	sig, err := e.signer.SendAndConfirm(ctx, e.pool, tx)
	if err != nil {
		return nil, err
	}
	out.Signature = sig

	e.logger.WithFields(logrus.Fields{
		"signature": sig.String(),
		"market":    in.Market,
	}).Info("request submitted")

	out.Filled = e.watchFill(ctx, in, p.res)
	e.record(ctx, in, out, true)
	return out, nil
}

// watchFill polls the request account until it changes or disappears, which
// is how the keeper reports execution. Best-effort: a timeout is not an
// error, just an unfilled outcome.
func (e *Engine) watchFill(ctx context.Context, in *resolver.Intent, res *resolver.Resolved) bool {
	request, ok := res.Account("positionRequest")
	if !ok {
		return false
	}

	wctx, cancel := context.WithTimeout(ctx, e.fillTimeout)
	defer cancel()

	w := watcher.New(e.pool, []solana.PublicKey{request}, e.pollInterval, e.logger)

	// Seed the baseline from the post-submission state. A keeper that
	// executes and closes the request before the first poll would otherwise
	// become the baseline itself and never show up as a change.
	if info, err := e.pool.GetAccountInfo(wctx, request); err == nil {
		if info == nil {
			e.publishFill(ctx, in, watcher.Change{Address: request, Missing: true})
			return true
		}
		w.SeedBaseline(request, info.Data)
	}

	filled := false
	_ = w.Run(wctx, func(c watcher.Change) {
		filled = true
		w.Stop()
		e.publishFill(ctx, in, c)
	})
	return filled
}

func (e *Engine) publishFill(ctx context.Context, in *resolver.Intent, c watcher.Change) {
	if err := e.cache.PublishFill(ctx, &cache.FillEvent{
		Request: c.Address.String(),
		Market:  in.Market,
		Side:    string(in.Side),
		Closed:  c.Missing,
	}); err != nil {
		e.logger.WithError(err).Warn("fill event publish failed")
	}
}

// record writes to the optional sinks; failures are logged, never returned.
func (e *Engine) record(ctx context.Context, in *resolver.Intent, out *Outcome, submitted bool) {
	rec := &txlog.Record{
		Market:        in.Market,
		Side:          string(in.Side),
		Operation:     string(in.Operation),
		GuardrailUsd:  out.Resolved.Guardrail.String(),
		SizeUsd:       out.Resolved.SizeUsd,
		CollateralUsd: out.Resolved.Collateral,
		Simulated:     true,
		Submitted:     submitted,
	}
	if out.Simulation != nil {
		rec.UnitsConsumed = out.Simulation.UnitsConsumed
		rec.Success = out.Simulation.Success
		rec.Error = out.Simulation.Err
	}
	if !out.Signature.IsZero() {
		rec.Signature = out.Signature.String()
	}
	if err := e.txlog.Insert(ctx, rec); err != nil {
		e.logger.WithError(err).Warn("request log insert failed")
	}

	if err := e.cache.AddActivity(ctx, &cache.Activity{
		Signature: rec.Signature,
		Market:    rec.Market,
		Side:      rec.Side,
		Operation: rec.Operation,
		Success:   rec.Success,
	}); err != nil {
		e.logger.WithError(err).Warn("activity cache update failed")
	}
}

func normalizeArg(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '_' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
