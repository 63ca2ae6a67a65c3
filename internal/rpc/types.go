package rpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// AccountInfo is the decoded form of a getAccountInfo value.
type AccountInfo struct {
	Owner    solana.PublicKey
	Data     []byte
	Lamports uint64
}

type rawAccount struct {
	Owner    string   `json:"owner"`
	Data     []string `json:"data"`
	Lamports uint64   `json:"lamports"`
}

func (r *rawAccount) decode() (*AccountInfo, error) {
	owner, err := solana.PublicKeyFromBase58(r.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner %q: %w", r.Owner, err)
	}
	info := &AccountInfo{Owner: owner, Lamports: r.Lamports}
	if len(r.Data) > 0 && r.Data[0] != "" {
		data, err := base64.StdEncoding.DecodeString(r.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

type accountInfoResult struct {
	Value *rawAccount `json:"value"`
}

type multipleAccountsResult struct {
	Value []*rawAccount `json:"value"`
}

type blockhashResult struct {
	Value struct {
		Blockhash string `json:"blockhash"`
	} `json:"value"`
}

type simulateResult struct {
	Value struct {
		Err           interface{} `json:"err"`
		Logs          []string    `json:"logs"`
		UnitsConsumed *uint64     `json:"unitsConsumed"`
	} `json:"value"`
}

// SimulationResult is the outcome of a transaction simulation. A failed
// simulation is a result, not a transport error.
type SimulationResult struct {
	Success       bool
	UnitsConsumed uint64
	Logs          []string
	Err           string
}

// SignatureStatus is one entry of a getSignatureStatuses response.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

type signatureStatusesResult struct {
	Value []*SignatureStatus `json:"value"`
}

type tokenBalanceResult struct {
	Value struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"value"`
}
