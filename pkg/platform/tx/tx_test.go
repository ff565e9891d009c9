package tx_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"formalitys/pkg/platform/tx"
)

func TestRoundTrip(t *testing.T) {
	dbTx := &sql.Tx{}
	ctx := tx.WithTx(context.Background(), dbTx)

	got, ok := tx.From(ctx)
	require.True(t, ok)
	require.Same(t, dbTx, got)
}

func TestNilTxLeavesContextBare(t *testing.T) {
	ctx := tx.WithTx(context.Background(), nil)

	_, ok := tx.From(ctx)
	require.False(t, ok)
}
