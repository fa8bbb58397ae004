package maker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harrylevesque/makerdash/internal/wallet"
)

// RequestKind names a request a maker understands.
type RequestKind string

const (
	ReqPing          RequestKind = "Ping"
	ReqUtxo          RequestKind = "Utxo"
	ReqSwapUtxo      RequestKind = "SwapUtxo"
	ReqContractUtxo  RequestKind = "ContractUtxo"
	ReqFidelityUtxo  RequestKind = "FidelityUtxo"
	ReqBalances      RequestKind = "Balances"
	ReqNewAddress    RequestKind = "NewAddress"
	ReqSendToAddress RequestKind = "SendToAddress"
	ReqGetTorAddress RequestKind = "GetTorAddress"
	ReqGetDataDir    RequestKind = "GetDataDir"
	ReqStop          RequestKind = "Stop"
	ReqListFidelity  RequestKind = "ListFidelity"
	ReqSyncWallet    RequestKind = "SyncWallet"
)

// Request is a message sent to a maker. Address, Amount and FeeRate are only
// read for SendToAddress.
type Request struct {
	Kind    RequestKind `json:"kind"`
	Address string      `json:"address,omitempty"`
	Amount  int64       `json:"amount,omitempty"`
	FeeRate float64     `json:"feerate,omitempty"`
}

// SendToAddress builds a SendToAddress request.
func SendToAddress(address string, amount int64, feeRate float64) Request {
	return Request{Kind: ReqSendToAddress, Address: address, Amount: amount, FeeRate: feeRate}
}

// ResponseKind names a maker reply.
type ResponseKind string

const (
	RespPong          ResponseKind = "Pong"
	RespUtxo          ResponseKind = "UtxoResp"
	RespSwapUtxo      ResponseKind = "SwapUtxoResp"
	RespContractUtxo  ResponseKind = "ContractUtxoResp"
	RespFidelityUtxo  ResponseKind = "FidelityUtxoResp"
	RespTotalBalance  ResponseKind = "TotalBalanceResp"
	RespNewAddress    ResponseKind = "NewAddressResp"
	RespSendToAddress ResponseKind = "SendToAddressResp"
	RespGetTorAddress ResponseKind = "GetTorAddressResp"
	RespGetDataDir    ResponseKind = "GetDataDirResp"
	RespShutdown      ResponseKind = "Shutdown"
	RespFidelitySpend ResponseKind = "FidelitySpend"
	RespServerError   ResponseKind = "ServerError"
	RespListBonds     ResponseKind = "ListBonds"
)

// Response is a maker reply. UTXOs is set for the utxo responses, Balances for
// TotalBalanceResp, and Text carries the single string payload of the others
// (address, txid, path, bond listing or error message).
type Response struct {
	Kind     ResponseKind    `json:"kind"`
	UTXOs    []wallet.UTXO   `json:"utxos,omitempty"`
	Balances wallet.Balances `json:"balances"`
	Text     string          `json:"text,omitempty"`
}

func serverError(format string, args ...any) Response {
	return Response{Kind: RespServerError, Text: fmt.Sprintf(format, args...)}
}

// String renders the response the way operators see it on the command line.
func (r Response) String() string {
	switch r.Kind {
	case RespPong:
		return "Pong"
	case RespShutdown:
		return "Shutdown Initiated"
	case RespTotalBalance:
		out, err := json.MarshalIndent(r.Balances, "", "  ")
		if err != nil {
			return err.Error()
		}
		return string(out)
	case RespUtxo, RespSwapUtxo, RespContractUtxo, RespFidelityUtxo:
		utxos := r.UTXOs
		if utxos == nil {
			utxos = []wallet.UTXO{}
		}
		out, err := json.MarshalIndent(utxos, "", "  ")
		if err != nil {
			return err.Error()
		}
		return string(out)
	default:
		return r.Text
	}
}

// ErrServerError matches every *ServerError with errors.Is.
var ErrServerError = errors.New("maker server error")

// ServerError is a failure reported by the maker itself.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string        { return e.Message }
func (e *ServerError) Is(target error) bool { return target == ErrServerError }

// Err returns the ServerError carried by r, or nil.
func (r Response) Err() error {
	if r.Kind == RespServerError {
		return &ServerError{Message: r.Text}
	}
	return nil
}
