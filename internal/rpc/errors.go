package rpc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInconsistentResults = errors.New("providers returned inconsistent results")
	ErrAllProvidersFailed  = errors.New("all providers failed")
)

// JsonRpcError is the error envelope of a JSON-RPC reply.
type JsonRpcError struct {
	Code    int
	Message string
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// ProviderError is the failure of a single provider for a single call.
// It is never fatal on its own; reductions absorb it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type MultiCallErrorKind int

const (
	InconsistentResults MultiCallErrorKind = iota
	AllProvidersFailed
)

// MultiCallError is returned when a consensus reduction cannot produce a value.
type MultiCallError struct {
	Kind MultiCallErrorKind
	// Errors holds one entry per failed provider.
	Errors []*ProviderError
	// Values holds the disagreeing values, keyed by provider, for InconsistentResults.
	Values map[string]string
}

func (e *MultiCallError) Error() string {
	switch e.Kind {
	case InconsistentResults:
		parts := make([]string, 0, len(e.Values))
		for provider, v := range e.Values {
			parts = append(parts, provider+"="+v)
		}
		return fmt.Sprintf("%v: %s", ErrInconsistentResults, strings.Join(parts, ", "))
	default:
		parts := make([]string, 0, len(e.Errors))
		for _, pe := range e.Errors {
			parts = append(parts, pe.Error())
		}
		return fmt.Sprintf("%v: [%s]", ErrAllProvidersFailed, strings.Join(parts, "; "))
	}
}

func (e *MultiCallError) Is(target error) bool {
	switch e.Kind {
	case InconsistentResults:
		return target == ErrInconsistentResults
	case AllProvidersFailed:
		return target == ErrAllProvidersFailed
	}
	return false
}
