package txflow

import (
	stdErrors "errors"
	"strings"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Classify 把节点或钱包返回的原始错误归入统一错误码。已经带错误码
// 的错误原样返回;其余按错误文本匹配,匹配不到的归入 UNKNOWN 并保留
// 原始信息,不吞掉任何细节。
func Classify(err error) *xerrors.Error {
	if err == nil {
		return nil
	}
	if coded, ok := xerrors.From(err); ok {
		return coded
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "user rejected") || strings.Contains(lower, "user denied"):
		return xerrors.Wrap(web3.CodeUserRejected, err, "")
	case strings.Contains(lower, "insufficient funds"):
		return xerrors.Wrap(web3.CodeInsufficientFunds, err, "")
	case strings.Contains(lower, "execution reverted"):
		if reason := revertReason(err); reason != "" {
			return xerrors.Wrap(web3.CodeContractReverted, err, reason)
		}
		return xerrors.Wrap(web3.CodeContractReverted, err, "")
	default:
		return xerrors.Wrap(xerrors.CodeUnknown, err, err.Error())
	}
}

// revertReason 尽量还原 revert 的原始文案。优先解 RPC 错误附带的
// ABI 编码数据;拿不到时退回解析错误文本里的 "execution reverted:"
// 后缀。
func revertReason(err error) string {
	type dataError interface {
		ErrorData() interface{}
	}
	var de dataError
	if stdErrors.As(err, &de) {
		if hex, ok := de.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hex); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted:"):])
	}
	return ""
}
