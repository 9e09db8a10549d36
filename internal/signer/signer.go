package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"minter-core/pkg/bip32"
	"minter-core/pkg/bip39"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrChainIDMismatch = errors.New("transaction chain id does not match signer")

// Signer signs minter transactions. Calls are independent and may fail individually.
type Signer interface {
	Address() common.Address
	Sign(ctx context.Context, tx types.Transaction) (types.SignedTransaction, error)
}

// LocalSigner holds the minter key in process memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID uint64
	signer  ethtypes.Signer
}

func NewLocalSigner(key *ecdsa.PrivateKey, chainID uint64) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		signer:  ethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
	}
}

// FromMnemonic derives the minter key along path (default m/44'/60'/0'/0/0).
func FromMnemonic(mnemonic, path string, chainID uint64) (*LocalSigner, error) {
	seed, err := bip39.NewMnemonicService().SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	wallet, err := bip32.NewMasterKeyFromSeed(seed, nil)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = bip32.DefaultEthPath
	}
	child, err := wallet.DerivePath(path)
	if err != nil {
		return nil, err
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}
	return NewLocalSigner(priv.ToECDSA(), chainID), nil
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) Sign(ctx context.Context, tx types.Transaction) (types.SignedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return types.SignedTransaction{}, err
	}
	if tx.ChainID != s.chainID {
		return types.SignedTransaction{}, fmt.Errorf("%w: %d != %d", ErrChainIDMismatch, tx.ChainID, s.chainID)
	}
	signed, err := ethtypes.SignTx(tx.ToEthereum(), s.signer, s.key)
	if err != nil {
		return types.SignedTransaction{}, fmt.Errorf("sign nonce %d: %w", tx.Nonce, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return types.SignedTransaction{}, fmt.Errorf("encode nonce %d: %w", tx.Nonce, err)
	}
	return types.SignedTransaction{Transaction: tx, RawTx: raw, Hash: signed.Hash()}, nil
}
