package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/produce-ledger/testing"
)

func TestInTestMode(t *testing.T) {
	require.True(t, InTestMode())

	t.Setenv("LEDGER_TEST_MODE", "0")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv("LEDGER_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())
}
