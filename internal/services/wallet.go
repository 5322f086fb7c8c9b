package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"go.uber.org/zap"
)

// ErrNoWalletAccounts is returned when the wallet exposes no account for the chain
var ErrNoWalletAccounts = errors.New("wallet returned no accounts")

// ConnectWallet enables the chain in the wallet and returns its first account address
func ConnectWallet(ctx context.Context, provider WalletProvider, chainID string) (string, error) {
	if provider == nil {
		return "", errors.New("no wallet provider configured")
	}

	if err := provider.Enable(ctx, chainID); err != nil {
		return "", fmt.Errorf("enable chain %s: %w", chainID, err)
	}

	accounts, err := provider.Accounts(ctx)
	if err != nil {
		return "", fmt.Errorf("list wallet accounts: %w", err)
	}
	if len(accounts) == 0 || accounts[0].Address == "" {
		return "", ErrNoWalletAccounts
	}

	logger.GetLogger().WithContext(ctx).Info("Wallet connected",
		zap.String("chain_id", chainID),
		zap.String("address", accounts[0].Address),
	)
	return accounts[0].Address, nil
}
