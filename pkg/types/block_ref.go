package types

import (
	"fmt"
	"strconv"
)

// BlockRefKind 区块引用类型
type BlockRefKind uint8

const (
	// BlockLatest 不带参数，使用节点当前最佳状态
	BlockLatest BlockRefKind = iota
	// BlockHash 按区块哈希引用
	BlockHash
	// BlockNumber 按区块高度引用
	BlockNumber
)

// String 返回类型名称
func (k BlockRefKind) String() string {
	switch k {
	case BlockLatest:
		return "latest"
	case BlockHash:
		return "hash"
	case BlockNumber:
		return "number"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// BlockRef 请求参数：最新 / 区块哈希 / 区块高度
//
// 零值即 Latest，调用方不需要参数时直接传 BlockRef{}。
type BlockRef struct {
	kind   BlockRefKind
	hash   string
	number uint32
}

// Latest 返回"最新状态"引用
func Latest() BlockRef {
	return BlockRef{kind: BlockLatest}
}

// AtHash 按区块哈希引用（0x 前缀十六进制，编码时校验）
func AtHash(hash string) BlockRef {
	return BlockRef{kind: BlockHash, hash: hash}
}

// AtNumber 按区块高度引用
func AtNumber(n uint32) BlockRef {
	return BlockRef{kind: BlockNumber, number: n}
}

// Kind 引用类型
func (r BlockRef) Kind() BlockRefKind { return r.kind }

// Hash 区块哈希（仅 BlockHash 有效）
func (r BlockRef) Hash() string { return r.hash }

// Number 区块高度（仅 BlockNumber 有效）
func (r BlockRef) Number() uint32 { return r.number }

// IsLatest 是否为最新状态
func (r BlockRef) IsLatest() bool { return r.kind == BlockLatest }

// String 便于日志输出
func (r BlockRef) String() string {
	switch r.kind {
	case BlockLatest:
		return "latest"
	case BlockHash:
		return r.hash
	case BlockNumber:
		return fmt.Sprintf("#%d", r.number)
	default:
		return r.kind.String()
	}
}
