package server

// ErrorResponse is the uniform JSON error body. Detail is populated only in
// dev mode.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Program string `json:"program"`
}

// MarketResponse is one market's public configuration.
type MarketResponse struct {
	Symbol       string `json:"symbol"`
	Pool         string `json:"pool"`
	BaseCustody  string `json:"base_custody"`
	QuoteCustody string `json:"quote_custody"`
	InputMint    string `json:"input_mint"`
}

// PDAResponse is a derived address inspection result.
type PDAResponse struct {
	Role    string `json:"role"`
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// DryRunRequest is the simulate-only trade request body.
type DryRunRequest struct {
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Operation     string  `json:"operation"`
	Owner         string  `json:"owner"`
	SizeUsd       string  `json:"size_usd"`
	CollateralUsd string  `json:"collateral_usd"`
	OraclePrice   string  `json:"oracle_price"`
	Slippage      string  `json:"slippage"`
	Counter       uint64  `json:"counter,omitempty"`
	Guardrail     *uint64 `json:"guardrail_micro_usd,omitempty"`
}

// DryRunResponse reports the simulation outcome.
type DryRunResponse struct {
	Success       bool              `json:"success"`
	Guardrail     string            `json:"guardrail_usd"`
	UnitsConsumed uint64            `json:"units_consumed"`
	Accounts      map[string]string `json:"accounts"`
	Corrections   []string          `json:"corrections,omitempty"`
	Diagnostic    *DiagnosticBody   `json:"diagnostic,omitempty"`
	Logs          []string          `json:"logs,omitempty"`
}

// DiagnosticBody is the parsed failure detail.
type DiagnosticBody struct {
	Account     string `json:"account,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorNumber int    `json:"error_number,omitempty"`
	Message     string `json:"message,omitempty"`
	Left        string `json:"left,omitempty"`
	Right       string `json:"right,omitempty"`
}
