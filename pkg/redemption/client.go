// Package redemption submits the CTF contract's redeemPositions call
// on-chain, converting settled winning outcome tokens to collateral.
// Grounded directly on the teacher's cmd/redeem_positions.go: same ABI
// packing, nonce/gas-price/sign/send/wait-mined sequence and receipt
// status check, generalized from a one-shot CLI invocation into the
// settlement.RedemptionClient interface the settlement manager calls on
// its retry ladder.
package redemption

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/settlement"
)

const redeemPositionsABI = `[{
	"inputs": [
		{"name": "collateralToken", "type": "address"},
		{"name": "parentCollectionId", "type": "bytes32"},
		{"name": "conditionId", "type": "bytes32"},
		{"name": "indexSets", "type": "uint256[]"}
	],
	"name": "redeemPositions",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// Config holds the on-chain connection and signing parameters.
type Config struct {
	RPCURL             string
	PrivateKeyHex      string
	CTFContractAddress string
	CollateralAddress  string // USDC on Polygon
	ChainID            int64
	GasLimit           uint64
	Logger             *zap.Logger
}

// Client submits redeemPositions calls against the CTF contract.
type Client struct {
	eth        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	ctfAddr    common.Address
	collateral common.Address
	chainID    *big.Int
	gasLimit   uint64
	parsedABI  abi.ABI
	logger     *zap.Logger
}

var _ settlement.RedemptionClient = (*Client)(nil)

// New dials the RPC endpoint and parses the caller's private key.
func New(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		eth.Close()
		return nil, errors.New("error casting public key to ECDSA")
	}

	parsedABI, err := abi.JSON(strings.NewReader(redeemPositionsABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 200000
	}

	return &Client{
		eth:        eth,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
		ctfAddr:    common.HexToAddress(cfg.CTFContractAddress),
		collateral: common.HexToAddress(cfg.CollateralAddress),
		chainID:    big.NewInt(cfg.ChainID),
		gasLimit:   gasLimit,
		parsedABI:  parsedABI,
		logger:     cfg.Logger,
	}, nil
}

// RedeemPositions builds, signs, sends, and awaits the mining of a
// redeemPositions transaction for the given condition and index sets.
// Errors from nonce/gas/send are classified transient by the caller (the
// settlement manager's backoff ladder retries any non-nil error
// identically, per spec.md's "client's responsibility to classify, core
// retries both uniformly until max_claim_attempts" contract).
func (c *Client) RedeemPositions(ctx context.Context, conditionID string, indexSets []int) (settlement.RedemptionResult, error) {
	conditionIDBytes := common.HexToHash(conditionID)
	parentCollectionID := common.Hash{}

	bigIndexSets := make([]*big.Int, len(indexSets))
	for i, v := range indexSets {
		bigIndexSets[i] = big.NewInt(int64(v))
	}

	data, err := c.parsedABI.Pack("redeemPositions", c.collateral, parentCollectionID, conditionIDBytes, bigIndexSets)
	if err != nil {
		return settlement.RedemptionResult{}, fmt.Errorf("pack call data: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return settlement.RedemptionResult{}, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return settlement.RedemptionResult{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := gethtypes.NewTransaction(nonce, c.ctfAddr, big.NewInt(0), c.gasLimit, gasPrice, data)

	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return settlement.RedemptionResult{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return settlement.RedemptionResult{}, fmt.Errorf("send tx: %w", err)
	}

	c.logger.Info("redemption-tx-sent",
		zap.String("condition-id", conditionID),
		zap.String("tx-hash", signedTx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, c.eth, signedTx)
	if err != nil {
		return settlement.RedemptionResult{}, fmt.Errorf("wait for tx: %w", err)
	}

	result := settlement.RedemptionResult{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == gethtypes.ReceiptStatusSuccessful,
	}
	if !result.Success {
		result.Err = errors.New("transaction reverted")
	}

	c.logger.Info("redemption-confirmed",
		zap.String("tx-hash", result.TxHash),
		zap.Uint64("gas-used", result.GasUsed),
		zap.Bool("success", result.Success))

	return result, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
