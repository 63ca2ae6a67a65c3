package server

import (
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/cache"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/engine"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/markets"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/pda"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/resolver"
)

// Handlers bundles the collaborators the API exposes.
type Handlers struct {
	Engine   *engine.Engine
	Registry *idl.Registry
	Markets  *markets.Registry
	Deriver  *pda.Deriver
	Cache    *cache.Cache
	Logger   *logrus.Logger
}

// Health reports liveness and the configured program.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Program: h.Registry.ProgramID.String(),
	})
}

// MarketsList returns every configured market.
func (h *Handlers) MarketsList(c echo.Context) error {
	symbols := h.Markets.Symbols()
	out := make([]MarketResponse, 0, len(symbols))
	for _, s := range symbols {
		m, err := h.Markets.Resolve(s)
		if err != nil {
			continue
		}
		out = append(out, MarketResponse{
			Symbol:       m.Symbol,
			Pool:         m.Pool.String(),
			BaseCustody:  m.BaseCustody.String(),
			QuoteCustody: m.QuoteCustody.String(),
			InputMint:    m.InputMint.String(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// PDA derives an address for a role in a market's context. Query params:
// role, market, owner, counter (optional).
func (h *Handlers) PDA(c echo.Context) error {
	role := c.QueryParam("role")
	if role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role is required")
	}
	market, err := h.Markets.Resolve(c.QueryParam("market"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	accounts := map[string]solana.PublicKey{
		"pool":              market.Pool,
		"custody":           market.BaseCustody,
		"collateralCustody": market.QuoteCustody,
	}
	if ownerStr := c.QueryParam("owner"); ownerStr != "" {
		owner, err := solana.PublicKeyFromBase58(ownerStr)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid owner")
		}
		accounts["owner"] = owner
	}

	var counter uint64
	if cs := c.QueryParam("counter"); cs != "" {
		counter, err = strconv.ParseUint(cs, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid counter")
		}
	}

	addr, bump, err := h.Deriver.Derive(h.Registry.ProgramID, role, pda.SeedContext{
		Accounts: accounts,
		Args:     map[string]interface{}{"counter": counter},
		Counter:  counter,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, PDAResponse{Role: role, Address: addr.String(), Bump: bump})
}

// DryRun simulates an intent without signing or submitting.
func (h *Handlers) DryRun(c echo.Context) error {
	var req DryRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	intent, err := intentFromRequest(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.Engine.DryRun(c.Request().Context(), intent)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	resp := DryRunResponse{
		Success:     out.Simulation.Success,
		Guardrail:   out.Resolved.Guardrail.String(),
		Accounts:    make(map[string]string, len(out.Resolved.Accounts)),
		Corrections: out.Resolved.Corrections,
	}
	resp.UnitsConsumed = out.Simulation.UnitsConsumed
	for name, pk := range out.Resolved.Accounts {
		resp.Accounts[name] = pk.String()
	}
	if out.Diagnostic != nil {
		resp.Diagnostic = &DiagnosticBody{
			Account:     out.Diagnostic.Account,
			ErrorCode:   out.Diagnostic.ErrorCode,
			ErrorNumber: out.Diagnostic.ErrorNumber,
			Message:     out.Diagnostic.Message,
			Left:        out.Diagnostic.Left,
			Right:       out.Diagnostic.Right,
		}
		resp.Logs = out.Simulation.Logs
	}
	return c.JSON(http.StatusOK, resp)
}

// RecentActivity returns the newest cached request records.
func (h *Handlers) RecentActivity(c echo.Context) error {
	limit := int64(20)
	if ls := c.QueryParam("limit"); ls != "" {
		if v, err := strconv.ParseInt(ls, 10, 64); err == nil {
			limit = v
		}
	}
	items, err := h.Cache.RecentActivity(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if items == nil {
		items = []cache.Activity{}
	}
	return c.JSON(http.StatusOK, items)
}

func intentFromRequest(req *DryRunRequest) (*resolver.Intent, error) {
	owner, err := solana.PublicKeyFromBase58(req.Owner)
	if err != nil {
		return nil, err
	}

	intent := &resolver.Intent{
		Market:    req.Market,
		Side:      resolver.Side(req.Side),
		Operation: resolver.Operation(req.Operation),
		Owner:     owner,
		Counter:   req.Counter,
	}
	if intent.Operation == "" {
		intent.Operation = resolver.OpIncrease
	}
	if intent.SizeUsd, err = parseDecimal(req.SizeUsd); err != nil {
		return nil, err
	}
	if intent.CollateralUsd, err = parseDecimal(req.CollateralUsd); err != nil {
		return nil, err
	}
	if req.Guardrail != nil {
		intent.GuardrailPrice = req.Guardrail
	} else {
		if intent.OraclePrice, err = parseDecimal(req.OraclePrice); err != nil {
			return nil, err
		}
		if intent.Slippage, err = parseDecimal(req.Slippage); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
