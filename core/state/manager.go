package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Handik4/GenLayer-Escrow/core/types"
	"github.com/Handik4/GenLayer-Escrow/native/escrow"
	"github.com/Handik4/GenLayer-Escrow/storage"
)

// Manager provides the ledger's view of persistent state: party accounts, the
// ordered deal table, and the issued-deal counter. Records are RLP encoded and
// stored under keccak-hashed prefixed keys.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix     = []byte("account:")
	dealPrefix        = []byte("deal:")
	dealsIssuedKey    = ethcrypto.Keccak256([]byte("deals/issued"))
	genesisAppliedKey = ethcrypto.Keccak256([]byte("genesis/applied"))

	// custodyAddress is the pooled custody account every deal locks value
	// into. It has no corresponding private key.
	custodyAddress = deriveCustodyAddress()
)

func deriveCustodyAddress() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("deals/custody-vault"))
	copy(addr[:], digest[12:])
	return addr
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func dealKey(id uint64) []byte {
	buf := make([]byte, len(dealPrefix)+8)
	copy(buf, dealPrefix)
	binary.BigEndian.PutUint64(buf[len(dealPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

// storedAccount is the RLP shape persisted per account.
type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account for addr, returning a zero-balance account for
// addresses that have never been written.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return (&types.Account{Nonce: stored.Nonce, Balance: stored.Balance}).EnsureBalances(), nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	account = account.EnsureBalances()
	encoded, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: account.Balance})
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	return m.db.Put(accountKey(addr), encoded)
}

// DealPut sanitises and persists an agreement under its identifier.
func (m *Manager) DealPut(id uint64, deal *escrow.Agreement) error {
	sanitized, err := escrow.SanitizeAgreement(deal)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return fmt.Errorf("encode deal %d: %w", id, err)
	}
	return m.db.Put(dealKey(id), encoded)
}

// DealGet loads the agreement stored under id, if present.
func (m *Manager) DealGet(id uint64) (*escrow.Agreement, bool, error) {
	data, err := m.db.Get(dealKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	deal := new(escrow.Agreement)
	if err := rlp.DecodeBytes(data, deal); err != nil {
		return nil, false, fmt.Errorf("decode deal %d: %w", id, err)
	}
	return deal, true, nil
}

// DealsIssued returns the total number of deals ever created. Identifiers are
// dense, so every id below the counter indexes a stored agreement.
func (m *Manager) DealsIssued() (uint64, error) {
	data, err := m.db.Get(dealsIssuedKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, fmt.Errorf("decode deal counter: %w", err)
	}
	return count, nil
}

// SetDealsIssued persists the issued-deal counter.
func (m *Manager) SetDealsIssued(count uint64) error {
	encoded, err := rlp.EncodeToBytes(count)
	if err != nil {
		return fmt.Errorf("encode deal counter: %w", err)
	}
	return m.db.Put(dealsIssuedKey, encoded)
}

// CustodyAddress returns the pooled custody account address.
func (m *Manager) CustodyAddress() [20]byte { return custodyAddress }

// Deals returns up to limit agreements with identifiers >= fromID in
// identifier order, together with their ids. A non-positive limit returns all
// remaining deals.
func (m *Manager) Deals(fromID uint64, limit int) ([]uint64, []*escrow.Agreement, error) {
	issued, err := m.DealsIssued()
	if err != nil {
		return nil, nil, err
	}
	var (
		ids   []uint64
		deals []*escrow.Agreement
	)
	for id := fromID; id < issued; id++ {
		deal, ok, err := m.DealGet(id)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("deal table gap at id %d", id)
		}
		ids = append(ids, id)
		deals = append(deals, deal)
		if limit > 0 && len(deals) >= limit {
			break
		}
	}
	return ids, deals, nil
}

// GenesisApplied reports whether the genesis allocation has been applied.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.db.Has(genesisAppliedKey)
}

// ApplyGenesisAlloc credits the supplied balances once per database lifetime.
// Subsequent calls are no-ops.
func (m *Manager) ApplyGenesisAlloc(alloc map[[20]byte]uint64) error {
	applied, err := m.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for addr, balance := range alloc {
		account, err := m.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, new(big.Int).SetUint64(balance))
		if err := m.PutAccount(addr[:], account); err != nil {
			return err
		}
	}
	return m.db.Put(genesisAppliedKey, []byte{1})
}
