// Package service holds the authentication, tenant authorization and
// entitlement logic. Services are plain structs wired by the app package;
// storage is reached only through store.Store.
package service

import (
	"context"
	"time"

	"github.com/finsightai/finsight/internal/auth/store"
)

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// inTx runs fn inside st's transaction when st already is one, otherwise
// inside a new transaction.
func inTx(ctx context.Context, st store.Store, fn func(tx store.Tx) error) error {
	if tx, ok := st.(store.Tx); ok {
		return fn(tx)
	}
	return st.WithTx(ctx, fn)
}
