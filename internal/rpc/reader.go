package rpc

import (
	"cmp"
	"context"
	"fmt"

	"minter-core/pkg/logger"
	"minter-core/pkg/monitor"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConsensusReader fans every call out to all configured providers.
// It owns no withdrawal state and never retries a provider within a call.
type ConsensusReader struct {
	providers []Provider
	log       *zap.Logger
}

func NewConsensusReader(providers []Provider, log *zap.Logger) *ConsensusReader {
	if log == nil {
		log = logger.Named("rpc")
	}
	return &ConsensusReader{providers: providers, log: log}
}

func (r *ConsensusReader) Providers() []Provider { return r.providers }

// ProviderResult is the outcome of one provider for one call.
type ProviderResult[T any] struct {
	Provider string
	Value    T
	Err      error
}

// MultiCallResults holds one result per provider, in provider order.
type MultiCallResults[T any] struct {
	Results []ProviderResult[T]
}

// CallAll issues method to every provider concurrently and waits for all of them.
// Responses are decoded into a fresh T per provider.
func CallAll[T any](ctx context.Context, r *ConsensusReader, method string, args ...any) MultiCallResults[T] {
	results := make([]ProviderResult[T], len(r.providers))

	var g errgroup.Group
	for i, p := range r.providers {
		g.Go(func() error {
			var out T
			err := p.Call(ctx, &out, method, args...)
			if err != nil {
				err = &ProviderError{Provider: p.Name(), Err: err}
				monitor.ObserveProviderError(p.Name(), method)
				r.log.Debug("provider call failed",
					zap.String("provider", p.Name()),
					zap.String("method", method),
					zap.Error(err))
			}
			results[i] = ProviderResult[T]{Provider: p.Name(), Value: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return MultiCallResults[T]{Results: results}
}

// MapResults converts every successful value; a conversion error becomes that provider's error.
func MapResults[T, U any](in MultiCallResults[T], f func(T) (U, error)) MultiCallResults[U] {
	out := MultiCallResults[U]{Results: make([]ProviderResult[U], len(in.Results))}
	for i, res := range in.Results {
		out.Results[i] = ProviderResult[U]{Provider: res.Provider, Err: res.Err}
		if res.Err != nil {
			continue
		}
		v, err := f(res.Value)
		if err != nil {
			out.Results[i].Err = &ProviderError{Provider: res.Provider, Err: err}
			continue
		}
		out.Results[i].Value = v
	}
	return out
}

func (m MultiCallResults[T]) split() ([]ProviderResult[T], []*ProviderError) {
	var ok []ProviderResult[T]
	var failed []*ProviderError
	for _, res := range m.Results {
		if res.Err != nil {
			pe, isProviderErr := res.Err.(*ProviderError)
			if !isProviderErr {
				pe = &ProviderError{Provider: res.Provider, Err: res.Err}
			}
			failed = append(failed, pe)
			continue
		}
		ok = append(ok, res)
	}
	return ok, failed
}

// ReduceWithEquality returns the value all successful providers agree on.
// Any disagreement fails with InconsistentResults, regardless of how many agree.
func ReduceWithEquality[T comparable](m MultiCallResults[T]) (T, error) {
	var zero T
	ok, failed := m.split()
	if len(ok) == 0 {
		return zero, &MultiCallError{Kind: AllProvidersFailed, Errors: failed}
	}

	first := ok[0].Value
	for _, res := range ok[1:] {
		if res.Value != first {
			values := make(map[string]string, len(ok))
			for _, r := range ok {
				values[r.Provider] = fmt.Sprintf("%v", r.Value)
			}
			return zero, &MultiCallError{Kind: InconsistentResults, Values: values}
		}
	}
	return first, nil
}

// ReduceWithMinByKey returns the successful value with the smallest key.
func ReduceWithMinByKey[T any, K cmp.Ordered](m MultiCallResults[T], key func(T) K) (T, error) {
	var zero T
	ok, failed := m.split()
	if len(ok) == 0 {
		return zero, &MultiCallError{Kind: AllProvidersFailed, Errors: failed}
	}

	best := ok[0].Value
	bestKey := key(best)
	for _, res := range ok[1:] {
		if k := key(res.Value); k < bestKey {
			best, bestKey = res.Value, k
		}
	}
	return best, nil
}
