package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectWallet(t *testing.T) {
	wallet := &MockWallet{Accts: []Account{{Address: "jkl1first"}, {Address: "jkl1second"}}}

	address, err := ConnectWallet(context.Background(), wallet, "jackal-1")
	require.NoError(t, err)
	assert.Equal(t, "jkl1first", address)
	assert.Equal(t, []string{"jackal-1"}, wallet.enabled)
}

func TestConnectWalletFailures(t *testing.T) {
	_, err := ConnectWallet(context.Background(), &MockWallet{}, "jackal-1")
	assert.ErrorIs(t, err, ErrNoWalletAccounts)

	_, err = ConnectWallet(context.Background(), &MockWallet{EnableErr: errors.New("user rejected")}, "jackal-1")
	assert.ErrorContains(t, err, "user rejected")

	_, err = ConnectWallet(context.Background(), nil, "jackal-1")
	assert.Error(t, err)
}
