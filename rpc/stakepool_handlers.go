package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"stakepool/crypto"
	"stakepool/native/stakepool"
)

type receiveParams struct {
	SourceAsset string              `json:"sourceAsset"`
	Sender      string              `json:"sender"`
	Amount      string              `json:"amount"`
	Msg         stakepool.ReceiveMsg `json:"msg"`
}

type registerRewardAssetParams struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	Endpoint string `json:"endpoint"`
}

type updateRewardAssetEndpointParams struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	Endpoint string `json:"endpoint"`
}

type withdrawParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type claimParams struct {
	Caller string `json:"caller"`
}

type pendingRewardsParams struct {
	User string `json:"user"`
}

type instructionResult struct {
	Kind      string `json:"kind"`
	Asset     string `json:"asset"`
	Endpoint  string `json:"endpoint"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type streamResult struct {
	TotalAmount string `json:"totalAmount"`
	ReleaseRate string `json:"releaseRate"`
	StartTime   uint64 `json:"startTime"`
	EndTime     uint64 `json:"endTime"`
}

type rewardLedgerResult struct {
	Asset           string         `json:"asset"`
	Endpoint        string         `json:"endpoint"`
	Accumulator     string         `json:"accumulator"`
	LastAccrualTime uint64         `json:"lastAccrualTime"`
	Streams         []streamResult `json:"streams"`
}

type poolStateResult struct {
	StakeAsset    string               `json:"stakeAsset"`
	StakeEndpoint string               `json:"stakeEndpoint"`
	TotalStaked   string               `json:"totalStaked"`
	Manager       string               `json:"manager"`
	RewardLedgers []rewardLedgerResult `json:"rewardLedgers"`
}

type pendingRewardResult struct {
	Asset   string `json:"asset"`
	Pending string `json:"pending"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func parseAddress(field, value string) (crypto.Address, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, &RPCError{
			Code:    codeInvalidParams,
			Message: fmt.Sprintf("invalid %s address", field),
			Data:    err.Error(),
		}
	}
	return addr, nil
}

func parseAmount(amount string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "amount is required"}
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid amount"}
	}
	if value.Sign() <= 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "amount must be positive"}
	}
	return value, nil
}

func instructionResults(instructions []stakepool.Instruction) []instructionResult {
	results := make([]instructionResult, 0, len(instructions))
	for _, instr := range instructions {
		res := instructionResult{
			Kind:     string(instr.Kind),
			Asset:    instr.Asset.String(),
			Endpoint: instr.Endpoint,
		}
		if instr.Kind == stakepool.InstructionTransfer {
			res.Recipient = instr.Recipient.String()
			if instr.Amount != nil {
				res.Amount = instr.Amount.String()
			}
		}
		results = append(results, res)
	}
	return results
}

func (s *Server) handleReceive(req *RPCRequest) (interface{}, *RPCError) {
	var params receiveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	source, rpcErr := parseAddress("sourceAsset", params.SourceAsset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sender, rpcErr := parseAddress("sender", params.Sender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Receive(source, sender, amount, params.Msg); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleRegisterRewardAsset(req *RPCRequest) (interface{}, *RPCError) {
	var params registerRewardAssetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress("asset", params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	instructions, err := s.engine.RegisterRewardAsset(caller, asset, params.Endpoint)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{"instructions": instructionResults(instructions)}, nil
}

func (s *Server) handleUpdateRewardAssetEndpoint(req *RPCRequest) (interface{}, *RPCError) {
	var params updateRewardAssetEndpointParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress("asset", params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.UpdateRewardAssetEndpoint(caller, asset, params.Endpoint); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params withdrawParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	instructions, err := s.engine.Withdraw(caller, amount)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{"instructions": instructionResults(instructions)}, nil
}

func (s *Server) handleClaim(req *RPCRequest) (interface{}, *RPCError) {
	var params claimParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	instructions, err := s.engine.Claim(caller)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{"instructions": instructionResults(instructions)}, nil
}

func (s *Server) handleGetPoolState(req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) > 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "no parameters expected"}
	}
	state, err := s.engine.PoolSnapshot()
	if err != nil {
		return nil, engineError(err)
	}
	result := poolStateResult{
		StakeAsset:    state.StakeAsset.String(),
		StakeEndpoint: state.StakeEndpoint,
		TotalStaked:   state.TotalStaked.String(),
		Manager:       state.Manager.String(),
		RewardLedgers: make([]rewardLedgerResult, 0, len(state.RewardLedgers)),
	}
	for _, ledger := range state.RewardLedgers {
		lr := rewardLedgerResult{
			Asset:           ledger.Asset.String(),
			Endpoint:        ledger.Endpoint,
			Accumulator:     ledger.Accumulator.String(),
			LastAccrualTime: ledger.LastAccrualTime,
			Streams:         make([]streamResult, 0, len(ledger.Streams)),
		}
		for _, stream := range ledger.Streams {
			lr.Streams = append(lr.Streams, streamResult{
				TotalAmount: stream.TotalAmount.String(),
				ReleaseRate: stream.ReleaseRate.String(),
				StartTime:   stream.StartTime,
				EndTime:     stream.EndTime,
			})
		}
		result.RewardLedgers = append(result.RewardLedgers, lr)
	}
	return result, nil
}

func (s *Server) handleGetPendingRewards(req *RPCRequest) (interface{}, *RPCError) {
	var params pendingRewardsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	user, rpcErr := parseAddress("user", params.User)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rewards, err := s.engine.PendingRewards(user)
	if err != nil {
		return nil, engineError(err)
	}
	results := make([]pendingRewardResult, 0, len(rewards))
	for _, reward := range rewards {
		results = append(results, pendingRewardResult{
			Asset:   reward.Asset.String(),
			Pending: reward.Pending.String(),
		})
	}
	return map[string]interface{}{"rewards": results}, nil
}
