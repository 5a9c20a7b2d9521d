package core

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// 规范化的 CBOR 编码选项
// 磁盘记录和对等通信帧都走这套编码：Map Key 强制排序，
// 保证同一个结构体在任何进程里都编码出相同的字节。
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,

	// 2. 时间格式化为 Unix 整数，禁止自动生成 Tag 0/1
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 3. 禁止不定长编码，数组和 Map 必须在头部声明长度
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

// 解码选项带安全限制 (对等帧来自网络，防恶意构造)
var decOptions = cbor.DecOptions{
	// 防 DoS：限制容器元素数量和嵌套深度
	MaxArrayElements: 10000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  32,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// EncodeCanonical 用规范化选项序列化对象
func EncodeCanonical(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode failed: %w", err)
	}
	return data, nil
}

// DecodeCanonical 反序列化 (供 blobstore/peer/replica 使用)
func DecodeCanonical(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
