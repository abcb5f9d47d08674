// Package txn provides the transaction boundary used by the order-placement
// core. Repositories pick up the active transaction from the context.
package txn

import "context"

// Scope runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
type Scope interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExecuteWithResult runs fn within scope and returns its result.
func ExecuteWithResult[T any](ctx context.Context, scope Scope, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := scope.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// Direct runs fn without a transaction. Used with in-memory stores, where
// every repository call is individually atomic.
type Direct struct{}

func (Direct) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ Scope = Direct{}
