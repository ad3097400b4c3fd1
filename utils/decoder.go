package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ERC20ABI holds the events every token ledger emits.
const ERC20ABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"from","type":"address"},{"indexed":true,"internalType":"address","name":"to","type":"address"},{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"owner","type":"address"},{"indexed":true,"internalType":"address","name":"spender","type":"address"},{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

// DecodedEvent is a log resolved against a known event.
type DecodedEvent struct {
	Name    string
	Address common.Address
	Fields  map[string]interface{}
}

func (e DecodedEvent) String() string {
	parts := make([]string, 0, len(e.Fields))
	for _, arg := range sortedKeys(e.Fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", arg, e.Fields[arg]))
	}
	return fmt.Sprintf("%s@%s(%s)", e.Name, e.Address.Hex(), strings.Join(parts, ", "))
}

// EventDecoder handles decoding of receipt logs
type EventDecoder struct {
	events map[common.Hash]abi.Event
	logger *zap.Logger
}

// NewEventDecoder indexes the events of every given ABI plus the ERC20
// events. When two ABIs declare the same event signature the first one wins.
func NewEventDecoder(logger *zap.Logger, abis ...abi.ABI) (*EventDecoder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	erc20, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	d := &EventDecoder{
		events: make(map[common.Hash]abi.Event),
		logger: logger,
	}
	for _, parsed := range append(abis, erc20) {
		for _, event := range parsed.Events {
			if _, ok := d.events[event.ID]; !ok {
				d.events[event.ID] = event
			}
		}
	}
	return d, nil
}

// Decode resolves a single log.
func (d *EventDecoder) Decode(log *types.Log) (*DecodedEvent, error) {
	if log == nil || len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	event, ok := d.events[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", log.Topics[0].Hex())
	}

	fields := make(map[string]interface{})
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to decode %s topics: %w", event.Name, err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("failed to decode %s data: %w", event.Name, err)
	}

	return &DecodedEvent{
		Name:    event.Name,
		Address: log.Address,
		Fields:  fields,
	}, nil
}

// DecodeAll resolves every log it knows and skips the rest.
func (d *EventDecoder) DecodeAll(logs []*types.Log) []DecodedEvent {
	decoded := make([]DecodedEvent, 0, len(logs))
	for _, log := range logs {
		event, err := d.Decode(log)
		if err != nil {
			d.logger.Debug("Skipping log", zap.Error(err))
			continue
		}
		decoded = append(decoded, *event)
	}
	return decoded
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
