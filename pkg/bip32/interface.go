package bip32

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
)

// ExtendedKey 包装了 BIP-32 扩展密钥 (secp256k1)
type ExtendedKey interface {
	// String 返回 Base58 编码的密钥字符串 (xprv... / xpub...)
	String() string

	ECPubKey() (*btcec.PublicKey, error)
	ECPrivKey() (*btcec.PrivateKey, error)
	Derive(index uint32) (ExtendedKey, error)
	IsPrivate() bool
	// EthAddress 返回该密钥控制的以太坊地址
	EthAddress() (common.Address, error)
	Neuter() (ExtendedKey, error)
}

// HDWallet 定义了分层确定性钱包的基本行为 (从主密钥派生)
type HDWallet interface {
	MasterKey() ExtendedKey
	// DerivePath 按路径派生，例如 "m/44'/60'/0'/0/0"
	DerivePath(path string) (ExtendedKey, error)
}

var (
	ErrInvalidSeed = errors.New("invalid seed")
	ErrInvalidPath = errors.New("invalid derivation path")
)
