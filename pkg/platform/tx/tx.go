// Package tx carries a *sql.Tx through context so the dossier and account
// stores can share one transaction when a caller composes them into a single
// unit of work, without threading the transaction through every signature.
package tx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// WithTx returns a context carrying the transaction. A nil transaction leaves
// the context unchanged so callers can pass through unconditionally.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// From reports the transaction carried by the context, if any. Stores consult
// it in their querier selection and fall back to the pooled handle otherwise.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
