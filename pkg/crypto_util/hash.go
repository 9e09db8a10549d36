package crypto_util

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// HashFunc 计算所有输入拼接后的 32 字节摘要
type HashFunc func(parts ...[]byte) []byte

// Keccak256 是以太坊使用的哈希算法。
func Keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func Blake3(parts ...[]byte) []byte {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HashByName 按配置中的名称 (store.digest) 选择哈希函数
func HashByName(name string) (HashFunc, error) {
	switch name {
	case "blake3", "":
		return Blake3, nil
	case "keccak256":
		return Keccak256, nil
	}
	return nil, fmt.Errorf("unknown digest %q", name)
}

// CalculateKeccak256 计算输入的 Keccak256 哈希值 (Hex 编码)。
func CalculateKeccak256(data []byte) string {
	return hex.EncodeToString(Keccak256(data))
}

// CalculateBlake3 计算输入的 Blake3-256 哈希值 (Hex 编码)。
// Blake3 是一种现代、高性能的加密哈希函数。
func CalculateBlake3(data []byte) string {
	return hex.EncodeToString(Blake3(data))
}
