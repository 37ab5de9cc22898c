package coin

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"clipscope/internal/model"
)

var errMissingField = errors.New("missing field")

// Decoder turns creation event logs into model.CreationEvent values.
type Decoder struct {
	event   abi.Event
	indexed abi.Arguments
	logger  *zap.Logger
}

// NewDecoder builds a decoder for event. The event must carry address
// arguments "coin" and "creator" and non-indexed string arguments "name",
// "symbol" and "uri".
func NewDecoder(event abi.Event, logger *zap.Logger) (*Decoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	required := []struct {
		name string
		ty   byte
	}{
		{ArgCoin, abi.AddressTy},
		{ArgCreator, abi.AddressTy},
		{ArgName, abi.StringTy},
		{ArgSymbol, abi.StringTy},
		{ArgURI, abi.StringTy},
	}
	for _, req := range required {
		arg, ok := findArgument(event.Inputs, req.name)
		if !ok {
			return nil, fmt.Errorf("event %s has no %q argument", event.Name, req.name)
		}
		if arg.Type.T != req.ty {
			return nil, fmt.Errorf("event %s argument %q has type %s", event.Name, req.name, arg.Type.String())
		}
		if req.ty == abi.StringTy && arg.Indexed {
			return nil, fmt.Errorf("event %s argument %q is indexed, its value is not recoverable", event.Name, req.name)
		}
	}

	return &Decoder{
		event:   event,
		indexed: indexedArguments(event.Inputs),
		logger:  logger,
	}, nil
}

// Topic0 returns the event ID logs are filtered by.
func (d *Decoder) Topic0() common.Hash {
	return d.event.ID
}

// Decode converts a raw log into a CreationEvent. Logs that do not match the
// event shape or lack any required field yield false.
func (d *Decoder) Decode(log types.Log) (model.CreationEvent, bool) {
	event, err := d.decode(log)
	if err != nil {
		d.logger.Debug("skip malformed event",
			zap.Uint64("block_number", log.BlockNumber),
			zap.String("tx_hash", log.TxHash.Hex()),
			zap.Uint("log_index", log.Index),
			zap.Error(err),
		)
		return model.CreationEvent{}, false
	}
	return event, true
}

func (d *Decoder) decode(log types.Log) (model.CreationEvent, error) {
	if len(log.Topics) == 0 {
		return model.CreationEvent{}, fmt.Errorf("missing topics")
	}
	if log.Topics[0] != d.event.ID {
		return model.CreationEvent{}, fmt.Errorf("unexpected topic0: %s", log.Topics[0].Hex())
	}
	if len(log.Topics) != len(d.indexed)+1 {
		return model.CreationEvent{}, fmt.Errorf("expected %d topics, got %d", len(d.indexed)+1, len(log.Topics))
	}

	values := make(map[string]interface{}, len(d.event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, d.indexed, log.Topics[1:]); err != nil {
		return model.CreationEvent{}, fmt.Errorf("parse topics: %w", err)
	}
	if len(d.event.Inputs.NonIndexed()) > 0 {
		if err := d.event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
			return model.CreationEvent{}, fmt.Errorf("unpack %s: %w", d.event.Name, err)
		}
	}

	coinAddr, err := addressArg(values, ArgCoin)
	if err != nil {
		return model.CreationEvent{}, err
	}
	creator, err := addressArg(values, ArgCreator)
	if err != nil {
		return model.CreationEvent{}, err
	}
	name, err := stringArg(values, ArgName)
	if err != nil {
		return model.CreationEvent{}, err
	}
	symbol, err := stringArg(values, ArgSymbol)
	if err != nil {
		return model.CreationEvent{}, err
	}
	uri, err := stringArg(values, ArgURI)
	if err != nil {
		return model.CreationEvent{}, err
	}

	return model.CreationEvent{
		CoinAddress:    coinAddr.Hex(),
		CreatorAddress: creator.Hex(),
		Name:           name,
		Symbol:         symbol,
		MetadataURI:    uri,
	}, nil
}

func addressArg(values map[string]interface{}, name string) (common.Address, error) {
	addr, err := asAddress(values[name])
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: %w", name, errMissingField)
	}
	return addr, nil
}

func stringArg(values map[string]interface{}, name string) (string, error) {
	s, ok := values[name].(string)
	if !ok {
		return "", fmt.Errorf("%s: unsupported string type %T", name, values[name])
	}
	if s == "" {
		return "", fmt.Errorf("%s: %w", name, errMissingField)
	}
	return s, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v == nil {
			return common.Address{}, errMissingField
		}
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func findArgument(args abi.Arguments, name string) (abi.Argument, bool) {
	for _, arg := range args {
		if arg.Name == name {
			return arg, true
		}
	}
	return abi.Argument{}, false
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
