package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/cache"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/config"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/decoder"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/engine"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/ensure"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/markets"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/pda"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/resolver"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpcpool"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/txbuilder"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/txlog"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/wallet"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/watcher"
)

const usageText = `usage: perps <command> [flags]

commands:
  open      submit an increase-position request
  close     submit a decrease-position request for the full size
  withdraw  submit a collateral withdrawal (decrease, size unchanged)
  trigger   submit a decrease request at an explicit trigger price
  dryrun    resolve and simulate an intent without signing
  derive    derive one role's program address
  seeds     print the declared seed layout for a role
  match     brute-force the seed combination behind an address
  watch     poll accounts and report content changes
  markets   list configured markets
`

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func main() {
	loadEnv()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg := config.Load()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init failed:", err)
		os.Exit(1)
	}
	defer a.Close()

	cmd, args := os.Args[1], os.Args[2:]
	if err := a.run(ctx, cmd, args); err != nil {
		if ue, ok := err.(usageError); ok {
			fmt.Fprintln(os.Stderr, string(ue))
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, cmd+" failed:", err)
		os.Exit(1)
	}
}

// usageError marks a bad invocation (exit 2) as opposed to a runtime
// failure (exit 1).
type usageError string

func (e usageError) Error() string { return string(e) }

type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	reg     *idl.Registry
	markets *markets.Registry
	deriver *pda.Deriver
	pool    *rpcpool.Pool
	engine  *engine.Engine
	signer  *wallet.Signer
	store   *txlog.Store
	cache   *cache.Cache
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	reg, err := idl.Load(cfg.IDLPath, cfg.ProgramIDOverride)
	if err != nil {
		return nil, err
	}
	mkts, err := markets.NewRegistry(cfg.MarketsPath)
	if err != nil {
		return nil, err
	}
	pool, err := rpcpool.New(rpcpool.Config{
		Endpoints:           cfg.RPCEndpoints,
		Timeout:             cfg.HTTPTimeout,
		AttemptsPerEndpoint: cfg.AttemptsPerEndpoint,
		MaxRotations:        cfg.MaxRotations,
		BackoffBase:         cfg.RetryBackoff,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}

	var signer *wallet.Signer
	if cfg.WalletPrivateKey != "" {
		if signer, err = wallet.NewSigner(cfg.WalletPrivateKey); err != nil {
			return nil, fmt.Errorf("parse wallet key: %w", err)
		}
	}

	var store *txlog.Store
	if cfg.ClickHouseAddr != "" {
		store, err = txlog.NewStore(ctx, txlog.Options{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			logger.WithError(err).Warn("transaction log unavailable, continuing without it")
			store = nil
		}
	}

	var rcache *cache.Cache
	if cfg.RedisAddr != "" {
		rcache = cache.New(cfg.RedisAddr)
		if err := rcache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, continuing without cache")
			rcache = nil
		}
	}

	deriver := pda.NewDeriver(reg, logger)
	builder := txbuilder.New(reg, pool, logger)
	builder.PriorityFee = cfg.PriorityFeeMicroLamports
	builder.ComputeUnitLimit = cfg.ComputeUnitLimit

	eng := engine.New(engine.Options{
		Registry:     reg,
		Markets:      mkts,
		Resolver:     resolver.New(reg, mkts, deriver, logger),
		Ensurer:      ensure.New(pool, logger),
		Builder:      builder,
		Pool:         pool,
		Signer:       signer,
		Txlog:        store,
		Cache:        rcache,
		Logger:       logger,
		FillTimeout:  cfg.FillTimeout,
		PollInterval: cfg.PollInterval,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		reg:     reg,
		markets: mkts,
		deriver: deriver,
		pool:    pool,
		engine:  eng,
		signer:  signer,
		store:   store,
		cache:   rcache,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "open":
		return a.trade(ctx, args, resolver.OpIncrease, false, false)
	case "close":
		return a.trade(ctx, args, resolver.OpDecrease, true, false)
	case "withdraw":
		return a.trade(ctx, args, resolver.OpDecrease, false, false)
	case "trigger":
		return a.trade(ctx, args, resolver.OpDecrease, false, true)
	case "dryrun":
		return a.dryrun(ctx, args)
	case "derive":
		return a.derive(args)
	case "seeds":
		return a.seeds(args)
	case "match":
		return a.match(args)
	case "watch":
		return a.watch(ctx, args)
	case "markets":
		return a.listMarkets()
	default:
		return usageError(usageText)
	}
}

// tradeFlags parses the shared trade flag set into an intent.
func (a *app) tradeFlags(name string, args []string, needTrigger bool) (*resolver.Intent, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	market := fs.String("market", "SOL", "market symbol")
	side := fs.String("side", "long", "long | short")
	size := fs.String("size", "0", "position size delta in USD")
	collateral := fs.String("collateral", "0", "collateral delta in USD")
	price := fs.String("price", "", "oracle price in USD")
	slippage := fs.String("slippage", "0.01", "guardrail slippage fraction")
	trigger := fs.String("trigger-price", "", "explicit guardrail price in USD")
	counter := fs.Uint64("counter", 0, "request counter (0 = now)")
	owner := fs.String("owner", "", "position owner (defaults to the wallet)")
	if err := fs.Parse(args); err != nil {
		return nil, usageError(err.Error())
	}

	in := &resolver.Intent{
		Market:  *market,
		Side:    resolver.Side(*side),
		Counter: *counter,
	}
	var err error
	if in.SizeUsd, err = decimal.NewFromString(*size); err != nil {
		return nil, usageError("invalid -size: " + err.Error())
	}
	if in.CollateralUsd, err = decimal.NewFromString(*collateral); err != nil {
		return nil, usageError("invalid -collateral: " + err.Error())
	}
	if *trigger != "" {
		t, err := decimal.NewFromString(*trigger)
		if err != nil {
			return nil, usageError("invalid -trigger-price: " + err.Error())
		}
		micro := t.Shift(6).Truncate(0)
		if !micro.IsPositive() || !micro.BigInt().IsUint64() {
			return nil, usageError("trigger price out of range")
		}
		v := micro.BigInt().Uint64()
		in.GuardrailPrice = &v
	} else {
		if needTrigger {
			return nil, usageError("missing -trigger-price")
		}
		if *price == "" {
			return nil, usageError("missing -price (or -trigger-price)")
		}
		if in.OraclePrice, err = decimal.NewFromString(*price); err != nil {
			return nil, usageError("invalid -price: " + err.Error())
		}
		if in.Slippage, err = decimal.NewFromString(*slippage); err != nil {
			return nil, usageError("invalid -slippage: " + err.Error())
		}
	}

	if *owner != "" {
		if in.Owner, err = solana.PublicKeyFromBase58(*owner); err != nil {
			return nil, usageError("invalid -owner: " + err.Error())
		}
	} else if a.signer != nil {
		in.Owner = a.signer.PublicKey()
	}
	return in, nil
}

func (a *app) trade(ctx context.Context, args []string, op resolver.Operation, fullClose, needTrigger bool) error {
	in, err := a.tradeFlags(string(op), args, needTrigger)
	if err != nil {
		return err
	}
	in.Operation = op
	if fullClose {
		// Zero deltas request the entire position.
		in.SizeUsd = decimal.Zero
		in.CollateralUsd = decimal.Zero
	}

	out, err := a.engine.Execute(ctx, in)
	if err != nil {
		// A rejected simulation still carries the parsed diagnostic.
		if out != nil {
			printSimulationFailure(os.Stdout, out)
		}
		return err
	}
	fmt.Printf("signature=%s guardrail=%s filled=%v\n",
		out.Signature, out.Resolved.Guardrail, out.Filled)
	return nil
}

// printSimulationFailure shows the parsed diagnostic first, then the raw
// program logs it was extracted from.
func printSimulationFailure(w io.Writer, out *engine.Outcome) {
	if d := out.Diagnostic; d != nil {
		fmt.Fprintf(w, "diagnostic: account=%s code=%s number=%d message=%q\n",
			d.Account, d.ErrorCode, d.ErrorNumber, d.Message)
		if d.Left != "" || d.Right != "" {
			fmt.Fprintf(w, "  expected=%s got=%s\n", d.Left, d.Right)
		}
	}
	if out.Simulation == nil {
		return
	}
	for _, line := range out.Simulation.Logs {
		fmt.Fprintln(w, "  log:", line)
	}
}

func (a *app) dryrun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dryrun", flag.ContinueOnError)
	operation := fs.String("op", "increase", "increase | decrease")
	rest, tradeArgs := []string{}, []string{}
	// The -op flag is dryrun-only; everything else is the shared trade set.
	for i := 0; i < len(args); i++ {
		if args[i] == "-op" && i+1 < len(args) {
			rest = append(rest, args[i], args[i+1])
			i++
			continue
		}
		tradeArgs = append(tradeArgs, args[i])
	}
	if err := fs.Parse(rest); err != nil {
		return usageError(err.Error())
	}

	in, err := a.tradeFlags("dryrun", tradeArgs, false)
	if err != nil {
		return err
	}
	in.Operation = resolver.Operation(*operation)

	out, err := a.engine.DryRun(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("success=%v guardrail=%s units=%d\n",
		out.Simulation.Success, out.Resolved.Guardrail, out.Simulation.UnitsConsumed)
	for _, c := range out.Resolved.Corrections {
		fmt.Println("corrected:", c)
	}
	for name, pk := range out.Resolved.Accounts {
		fmt.Printf("  %-24s %s\n", name, pk)
	}
	if !out.Simulation.Success {
		printSimulationFailure(os.Stdout, out)
	}
	return nil
}

func (a *app) derive(args []string) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	role := fs.String("role", "", "account role to derive (e.g. position)")
	market := fs.String("market", "SOL", "market symbol")
	owner := fs.String("owner", "", "position owner")
	counter := fs.Uint64("counter", 0, "request counter")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *role == "" || *owner == "" {
		return usageError("derive needs -role and -owner")
	}

	m, err := a.markets.Resolve(*market)
	if err != nil {
		return err
	}
	ownerPk, err := solana.PublicKeyFromBase58(*owner)
	if err != nil {
		return usageError("invalid -owner: " + err.Error())
	}

	addr, bump, err := a.deriver.Derive(a.reg.ProgramID, *role, pda.SeedContext{
		Accounts: map[string]solana.PublicKey{
			"owner":             ownerPk,
			"pool":              m.Pool,
			"custody":           m.BaseCustody,
			"collateralCustody": m.QuoteCustody,
		},
		Args:    map[string]interface{}{"counter": *counter},
		Counter: *counter,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s %s bump=%d\n", *role, addr, bump)
	return nil
}

func (a *app) seeds(args []string) error {
	fs := flag.NewFlagSet("seeds", flag.ContinueOnError)
	role := fs.String("role", "", "account role to inspect")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *role == "" {
		return usageError("seeds needs -role")
	}

	spec := a.reg.SeedSpec(*role)
	if spec == nil {
		fmt.Printf("%s: no declared seeds, heuristic recipe applies\n", *role)
		return nil
	}
	for i, s := range spec {
		switch s.Kind {
		case idl.SeedConst:
			fmt.Printf("  [%d] const %q\n", i, string(s.Bytes))
		case idl.SeedAccount:
			fmt.Printf("  [%d] account %s\n", i, s.Path)
		case idl.SeedArg:
			fmt.Printf("  [%d] arg %s\n", i, s.Path)
		}
	}
	return nil
}

func (a *app) match(args []string) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	target := fs.String("target", "", "address to reverse")
	labels := fs.String("labels", "position,position_request", "comma-separated label candidates")
	operands := fs.String("operands", "", "comma-separated name=pubkey pairs")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *target == "" {
		return usageError("match needs -target")
	}
	targetPk, err := solana.PublicKeyFromBase58(*target)
	if err != nil {
		return usageError("invalid -target: " + err.Error())
	}

	ops := make(map[string]solana.PublicKey)
	for _, pair := range strings.Split(*operands, ",") {
		if pair == "" {
			continue
		}
		name, val, ok := strings.Cut(pair, "=")
		if !ok {
			return usageError("operands must be name=pubkey pairs")
		}
		pk, err := solana.PublicKeyFromBase58(val)
		if err != nil {
			return usageError("invalid operand " + name + ": " + err.Error())
		}
		ops[name] = pk
	}

	res, err := pda.Match(a.reg.ProgramID, targetPk, strings.Split(*labels, ","), ops)
	if err != nil {
		return err
	}
	fmt.Printf("label=%s operands=[%s] bump=%d\n", res.Label, strings.Join(res.Operands, " "), res.Bump)
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", a.cfg.PollInterval, "poll interval")
	once := fs.Bool("once", false, "poll a single round and exit")
	anchor := fs.String("probe-anchor", "", "owner key for heuristic decoding of unknown layouts")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() == 0 {
		return usageError("watch needs at least one address argument")
	}

	addrs := make([]solana.PublicKey, 0, fs.NArg())
	for _, arg := range fs.Args() {
		pk, err := solana.PublicKeyFromBase58(arg)
		if err != nil {
			return usageError("invalid address " + arg + ": " + err.Error())
		}
		addrs = append(addrs, pk)
	}

	var anchorPk solana.PublicKey
	if *anchor != "" {
		pk, err := solana.PublicKeyFromBase58(*anchor)
		if err != nil {
			return usageError("invalid -probe-anchor: " + err.Error())
		}
		anchorPk = pk
	}

	w := watcher.New(a.pool, addrs, *interval, a.logger)
	catalog := decoder.NewCatalog()
	report := func(ch watcher.Change) {
		if ch.Missing {
			fmt.Printf("%s gone\n", ch.Address)
			return
		}
		fmt.Printf("%s changed (%d bytes)\n", ch.Address, len(ch.Data))
		if rec, err := catalog.DecodeAny(ch.Data); err == nil && rec != nil {
			fmt.Printf("  %s: %+v\n", rec.Schema, rec.Value)
			return
		}
		// No schema matched; fall back to the best-effort probe.
		if anchorPk.IsZero() {
			return
		}
		if pr, err := decoder.ProbeDecode(ch.Data, anchorPk); err == nil && pr != nil {
			fmt.Printf("  probe: anchor@%d ticks=[%d,%d] magnitude=%s\n",
				pr.AnchorOffset, pr.LowerTick, pr.UpperTick, pr.Magnitude)
		}
	}
	if *once {
		changes, err := w.PollOnce(ctx)
		if err != nil {
			return err
		}
		for _, ch := range changes {
			report(ch)
		}
		return nil
	}
	err := w.Run(ctx, report)
	if err == context.Canceled {
		return nil
	}
	return err
}

func (a *app) listMarkets() error {
	for _, symbol := range a.markets.Symbols() {
		m, err := a.markets.Resolve(symbol)
		if err != nil {
			continue
		}
		fmt.Printf("%-6s pool=%s custody=%s collateral=%s\n",
			m.Symbol, m.Pool, m.BaseCustody, m.QuoteCustody)
	}
	return nil
}
