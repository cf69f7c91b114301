package web3

import (
	xerrors "Sonic-University/internal/errors"
)

// Error codes shared by the wallet, gateway and transaction layers. These
// are the user-facing categories; raw causes stay in logs only.
const (
	CodeWalletUnavailable xerrors.Code = "WALLET_UNAVAILABLE"
	CodeNotConnected      xerrors.Code = "NOT_CONNECTED"
	CodeWrongNetwork      xerrors.Code = "WRONG_NETWORK"
	CodeUserRejected      xerrors.Code = "USER_REJECTED"
	CodeInsufficientFunds xerrors.Code = "INSUFFICIENT_FUNDS"
	CodeContractReverted  xerrors.Code = "CONTRACT_REVERTED"
	// CodeContractUnavailable is structural: the registry holds no deployment
	// for the requested role on the active chain.
	CodeContractUnavailable xerrors.Code = "CONTRACT_UNAVAILABLE"
)

func init() {
	xerrors.Register(CodeWalletUnavailable, xerrors.Attributes{
		Message:   "no wallet available",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeNotConnected, xerrors.Attributes{
		Message:   "wallet not connected",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeWrongNetwork, xerrors.Attributes{
		Message:   "connected to the wrong network",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUserRejected, xerrors.Attributes{
		Message:   "request rejected in wallet",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:   "insufficient funds for gas",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeContractReverted, xerrors.Attributes{
		Message:   "contract call reverted",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeContractUnavailable, xerrors.Attributes{
		Message:   "contract not deployed on this chain",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}
