package chain

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

// DerivationPathFormat is the path truffle and ganache use for their accounts.
const DerivationPathFormat = "m/44'/60'/0'/0/%d"

type account struct {
	key *ecdsa.PrivateKey
	// serializes nonce assignment for the account
	mu sync.Mutex
}

// Keyring holds the oracle accounts derived from a mnemonic.
type Keyring struct {
	addresses []common.Address
	accounts  map[common.Address]*account
}

// NewKeyring derives count accounts starting at HD index first.
func NewKeyring(mnemonic string, first, count int) (*Keyring, error) {
	if first < 0 || count <= 0 {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfig, "invalid account range first=%d count=%d", first, count)
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfig, "mnemonic: %v", err)
	}

	kr := &Keyring{
		addresses: make([]common.Address, 0, count),
		accounts:  make(map[common.Address]*account, count),
	}
	for i := first; i < first+count; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf(DerivationPathFormat, i))
		if err != nil {
			return nil, err
		}
		acc, err := wallet.Derive(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to derive account %d: %w", i, err)
		}
		key, err := wallet.PrivateKey(acc)
		if err != nil {
			return nil, fmt.Errorf("failed to load key for account %d: %w", i, err)
		}

		kr.addresses = append(kr.addresses, acc.Address)
		kr.accounts[acc.Address] = &account{key: key}
	}

	return kr, nil
}

// Addresses returns the derived addresses in HD index order.
func (kr *Keyring) Addresses() []common.Address {
	out := make([]common.Address, len(kr.addresses))
	copy(out, kr.addresses)
	return out
}

func (kr *Keyring) Len() int {
	return len(kr.addresses)
}

func (kr *Keyring) Has(addr common.Address) bool {
	_, ok := kr.accounts[addr]
	return ok
}

func (kr *Keyring) account(addr common.Address) (*account, error) {
	acc, ok := kr.accounts[addr]
	if !ok {
		return nil, errorsmod.Wrap(types.ErrUnknownAccount, addr.Hex())
	}
	return acc, nil
}
