// Package evm implements chain.LogSource against an EVM JSON-RPC node.
package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/cryptomart/indexer/internal/core/domain"
)

// Client is the RPC surface the source needs.
type Client interface {
	CallWithRetry(ctx context.Context, method string, params []any) (any, error)
}

// Source fetches and decodes marketplace contract logs.
type Source struct {
	client    Client
	contract  string
	signature string
	topic0    string
}

// NewSource creates a log source bound to one contract and one event
// signature, e.g. "PurchaseCompleted(uint256,address,uint256)".
func NewSource(client Client, contractAddress, eventSignature string) *Source {
	return &Source{
		client:    client,
		contract:  strings.ToLower(contractAddress),
		signature: eventSignature,
		topic0:    eventTopic(eventSignature),
	}
}

// eventTopic computes topic0 for an event signature (keccak256 of the
// canonical signature string).
func eventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// LatestHeight returns the current chain head.
func (s *Source) LatestHeight(ctx context.Context) (uint64, error) {
	result, err := s.client.CallWithRetry(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	blockHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response")
	}
	return parseHexUint(blockHex)
}

// FetchLogs returns the contract's logs for [fromBlock, toBlock] inclusive.
func (s *Source) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]domain.RawLog, error) {
	filter := map[string]any{
		"address":   s.contract,
		"topics":    []any{s.topic0},
		"fromBlock": fmt.Sprintf("0x%x", fromBlock),
		"toBlock":   fmt.Sprintf("0x%x", toBlock),
	}

	result, err := s.client.CallWithRetry(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	rawLogs, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid logs response")
	}

	logs := make([]domain.RawLog, 0, len(rawLogs))
	for _, entry := range rawLogs {
		raw, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		logs = append(logs, parseLog(raw))
	}
	return logs, nil
}

func parseLog(raw map[string]any) domain.RawLog {
	log := domain.RawLog{
		Address: strings.ToLower(getString(raw["address"])),
		Data:    getString(raw["data"]),
		TxHash:  getString(raw["transactionHash"]),
	}

	if topics, ok := raw["topics"].([]any); ok {
		for _, t := range topics {
			log.Topics = append(log.Topics, getString(t))
		}
	}

	// blockNumber and logIndex are null for pending logs
	if n, err := parseHexUint(getString(raw["blockNumber"])); err == nil && raw["blockNumber"] != nil {
		log.BlockNumber = &n
	}
	if idx, err := parseHexUint(getString(raw["logIndex"])); err == nil && raw["logIndex"] != nil {
		logIndex := uint32(idx)
		log.LogIndex = &logIndex
	}
	if removed, ok := raw["removed"].(bool); ok {
		log.Removed = removed
	}
	return log
}

// Decode turns a PurchaseCompleted log into a typed event.
// PurchaseCompleted(uint256 indexed listingId, address indexed buyer, uint256 amount)
func (s *Source) Decode(log domain.RawLog) (domain.DecodedEvent, error) {
	if len(log.Topics) == 0 || !strings.EqualFold(log.Topics[0], s.topic0) {
		return domain.DecodedEvent{}, fmt.Errorf("%w: unexpected topic0", domain.ErrDecode)
	}
	if len(log.Topics) != 3 {
		return domain.DecodedEvent{}, fmt.Errorf(
			"%w: expected 3 topics, got %d", domain.ErrDecode, len(log.Topics))
	}

	listingID, err := parseHexUint(log.Topics[1])
	if err != nil {
		return domain.DecodedEvent{}, fmt.Errorf("%w: listing id: %v", domain.ErrDecode, err)
	}

	buyer, err := topicToAddress(log.Topics[2])
	if err != nil {
		return domain.DecodedEvent{}, fmt.Errorf("%w: buyer: %v", domain.ErrDecode, err)
	}

	amount, err := hexToDecimal(log.Data)
	if err != nil {
		return domain.DecodedEvent{}, fmt.Errorf("%w: amount: %v", domain.ErrDecode, err)
	}

	return domain.DecodedEvent{
		Kind: domain.EventPurchaseCompleted,
		PurchaseCompleted: &domain.PurchaseCompletedEvent{
			ListingOnchainID: listingID,
			BuyerAddress:     buyer,
			Amount:           amount,
		},
	}, nil
}

func getString(v any) string {
	s, _ := v.(string)
	return s
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex string")
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex string %q", s)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("hex value %q overflows uint64", s)
	}
	return n.Uint64(), nil
}

// topicToAddress extracts the 20-byte address from a 32-byte indexed topic.
func topicToAddress(topic string) (string, error) {
	t := strings.TrimPrefix(topic, "0x")
	if len(t) != 64 {
		return "", fmt.Errorf("topic length %d, want 64", len(t))
	}
	return "0x" + strings.ToLower(t[24:]), nil
}

// hexToDecimal converts a 0x-prefixed quantity to a decimal string.
func hexToDecimal(s string) (string, error) {
	t := strings.TrimPrefix(s, "0x")
	if t == "" {
		return "0", nil
	}
	n, ok := new(big.Int).SetString(t, 16)
	if !ok {
		return "", fmt.Errorf("invalid hex quantity %q", s)
	}
	return n.String(), nil
}
