package types

import "math/big"

// Account is the balance-bearing record stored per 20-byte address. The custody
// account uses the same shape as any party account.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureBalances normalises nil balance pointers so arithmetic never dereferences
// a missing field after decoding an older record.
func (a *Account) EnsureBalances() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}
