package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-shop-orders/internal/txn"
)

type mockScope struct {
	executeFn func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.executeFn(ctx, fn)
}

func TestExecuteWithResult_Success(t *testing.T) {
	result, err := txn.ExecuteWithResult(context.Background(), txn.Direct{}, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected 'ok', got %q", result)
	}
}

func TestExecuteWithResult_FnError(t *testing.T) {
	errFn := errors.New("fn error")
	_, err := txn.ExecuteWithResult(context.Background(), txn.Direct{}, func(ctx context.Context) (int, error) {
		return 0, errFn
	})
	if !errors.Is(err, errFn) {
		t.Errorf("expected errFn, got %v", err)
	}
}

func TestExecuteWithResult_ScopeError(t *testing.T) {
	errTx := errors.New("commit failed")
	scope := &mockScope{
		executeFn: func(ctx context.Context, fn func(ctx context.Context) error) error {
			_ = fn(ctx)
			return errTx
		},
	}

	_, err := txn.ExecuteWithResult(context.Background(), scope, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if !errors.Is(err, errTx) {
		t.Errorf("expected errTx, got %v", err)
	}
}
