package txflow

import (
	"context"
	"math/big"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"
	"Sonic-University/internal/web3/gateway"
	"Sonic-University/internal/web3/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend 是执行一次交易所需的完整链后端能力。
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Controller 负责单笔交易的链上推进:打包、预估 gas、提交、等待回执。
// 一次 Execute 至多发出一笔交易,任何失败都直接返回,绝不自动重发。
type Controller struct {
	gateway *gateway.Gateway
	session *wallet.Session
}

// NewController 构造交易控制器。
func NewController(gw *gateway.Gateway, session *wallet.Session) *Controller {
	return &Controller{gateway: gw, session: session}
}

// Execute 执行一次交易尝试。onSubmitted 在交易进入内存池后、确认之前
// 回调,调用方靠它在等待确认期间就拿到交易哈希。
func (c *Controller) Execute(ctx context.Context, attempt *Attempt, onSubmitted func(txHash string)) (Confirmation, error) {
	signer, err := c.session.Signer()
	if err != nil {
		return Confirmation{}, err
	}
	provider := c.session.Provider()
	handle, err := c.gateway.Writer(c.session.ChainID(), web3.RoleTracker, provider, signer)
	if err != nil {
		return Confirmation{}, err
	}
	backend, ok := provider.(Backend)
	if !ok {
		return Confirmation{}, xerrors.New(web3.CodeWalletUnavailable, "链后端不支持查询交易回执")
	}

	method, args, err := callArgs(attempt)
	if err != nil {
		return Confirmation{}, err
	}
	data, err := handle.Pack(method, args...)
	if err != nil {
		return Confirmation{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码合约调用失败")
	}

	to := handle.Address()
	estimate, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From: signer.From,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return Confirmation{}, Classify(err)
	}

	// 预估值上浮 20%,给执行路径变化留余量。
	opts := *signer
	opts.Context = ctx
	opts.GasLimit = estimate * 120 / 100

	tx, err := handle.Transact(&opts, method, args...)
	if err != nil {
		return Confirmation{}, Classify(err)
	}
	if onSubmitted != nil {
		onSubmitted(tx.Hash().Hex())
	}

	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return Confirmation{}, Classify(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Confirmation{}, xerrors.New(web3.CodeContractReverted, "交易上链后回执状态为失败",
			xerrors.WithMetadata("tx_hash", tx.Hash().Hex()))
	}
	return Confirmation{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// callArgs 把尝试翻译成合约方法与参数。
func callArgs(attempt *Attempt) (string, []any, error) {
	courseID := new(big.Int).SetUint64(attempt.CourseID)
	switch attempt.Operation {
	case OpClaimReward:
		return "claim_reward", []any{courseID}, nil
	case OpAddCourse:
		reward, ok := new(big.Int).SetString(attempt.RewardRaw, 10)
		if !ok || reward.Sign() < 0 {
			return "", nil, xerrors.New(xerrors.CodeInvalidArgument, "奖励金额不是合法的无符号整数")
		}
		return "add_course", []any{courseID, reward}, nil
	case OpMarkCompletion:
		if !common.IsHexAddress(attempt.Student) {
			return "", nil, xerrors.New(xerrors.CodeInvalidArgument, "学员地址不合法")
		}
		return "mark_completion", []any{common.HexToAddress(attempt.Student), courseID}, nil
	case OpDeleteCourse:
		return "delete_course", []any{courseID}, nil
	default:
		return "", nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的合约操作")
	}
}
