package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/metrics"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// EventQuery selects decoded events of one type emitted by a contract.
type EventQuery struct {
	Contract  *Contract
	Event     string
	FromBlock *big.Int // nil means genesis
	ToBlock   *big.Int // nil means latest
}

// Event is a decoded log.
type Event struct {
	Name        string
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
	Args        map[string]any
}

// BigArg returns a uint/int argument as *big.Int.
func (e Event) BigArg(name string) (*big.Int, bool) {
	v, ok := e.Args[name].(*big.Int)
	return v, ok
}

// AddressArg returns an address argument.
func (e Event) AddressArg(name string) (common.Address, bool) {
	v, ok := e.Args[name].(common.Address)
	return v, ok
}

// QueryEvents fetches and decodes matching logs in the block range.
// Logs removed by a reorg are skipped.
func (a *Adapter) QueryEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	if q.Contract == nil {
		return nil, fmt.Errorf("%w: event query has no contract", ErrInvalidCall)
	}
	ev, ok := q.Contract.ABI.Events[q.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no event %q", ErrInvalidCall, q.Contract.Name, q.Event)
	}

	r, err := a.readBackend(ctx)
	if err != nil {
		return nil, err
	}

	filter := ethereum.FilterQuery{
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
		Addresses: []common.Address{q.Contract.Address},
		Topics:    [][]common.Hash{{ev.ID}},
	}

	logs, err := chain.RetryWithConfig(ctx, a.readRetry("getLogs "+q.Event), func() ([]types.Log, error) {
		if waitErr := a.limiter.Wait(ctx, a.rpcURL); waitErr != nil {
			return nil, waitErr
		}
		start := time.Now()
		res, fErr := r.FilterLogs(ctx, filter)
		metrics.Global.RecordRPCCall(time.Since(start), fErr)
		if fErr != nil {
			return nil, classifyProviderError(fErr)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	indexed := indexedArgs(ev.Inputs)
	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}

		args := make(map[string]any, len(ev.Inputs))
		if err = ev.Inputs.UnpackIntoMap(args, lg.Data); err != nil {
			return nil, decodeErr(q, lg.TxHash, err)
		}
		if err = abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return nil, decodeErr(q, lg.TxHash, err)
		}

		events = append(events, Event{
			Name:        q.Event,
			Address:     lg.Address,
			TxHash:      lg.TxHash,
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.Index,
			Args:        args,
		})
	}
	return events, nil
}

func indexedArgs(inputs abi.Arguments) abi.Arguments {
	var out abi.Arguments
	for _, arg := range inputs {
		if arg.Indexed {
			out = append(out, arg)
		}
	}
	return out
}

func decodeErr(q EventQuery, tx common.Hash, err error) error {
	return paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrUnexpectedProvider, err), map[string]string{
		"event":   q.Event,
		"tx_hash": tx.Hex(),
	})
}
