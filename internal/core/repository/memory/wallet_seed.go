package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/google/uuid"
)

// LoadWallets reads a JSON array of wallets for NewWalletStore.
func LoadWallets(path string) ([]models.Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet seed: %w", err)
	}

	var wallets []models.Wallet
	if err := json.Unmarshal(data, &wallets); err != nil {
		return nil, fmt.Errorf("parse wallet seed %s: %w", path, err)
	}

	seen := make(map[uuid.UUID]struct{}, len(wallets))
	for i, w := range wallets {
		switch {
		case w.ID == uuid.Nil || w.UserID == uuid.Nil:
			return nil, fmt.Errorf("wallet seed entry %d: id and user_id are required", i)
		case !w.Currency.Valid():
			return nil, fmt.Errorf("wallet seed entry %d: unsupported currency %q", i, w.Currency)
		case w.Balance.IsNegative():
			return nil, fmt.Errorf("wallet seed entry %d: negative balance", i)
		case w.Balance.Exponent() < -models.BalanceScale:
			return nil, fmt.Errorf("wallet seed entry %d: balance has more than %d decimal places", i, models.BalanceScale)
		}
		if _, dup := seen[w.ID]; dup {
			return nil, fmt.Errorf("wallet seed entry %d: duplicate id %s", i, w.ID)
		}
		seen[w.ID] = struct{}{}
	}
	return wallets, nil
}
