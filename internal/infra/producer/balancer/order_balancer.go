package balancer

import (
	"hash/fnv"

	"github.com/segmentio/kafka-go"
)

type IBaseBalancer interface {
	Balance(msg kafka.Message, partitions ...int) (partition int)
}

// OrderKeyBalancer 依訂單編號分區
// 同一張訂單的事件必須落在同一個分區，消費端才能保序處理
type OrderKeyBalancer struct {
	numPartitions int
}

func NewOrderKeyBalancer(numPartitions int) IBaseBalancer {
	return &OrderKeyBalancer{
		numPartitions: numPartitions,
	}
}

// Balance 取 key 的 FNV-1a hash 決定分區
// key 為空視為同一個分區 0
func (b *OrderKeyBalancer) Balance(msg kafka.Message, partitions ...int) (partition int) {
	h := fnv.New32a()
	h.Write(msg.Key)
	hash := int(h.Sum32() & 0x7fffffff)

	if len(partitions) != 0 {
		return partitions[hash%len(partitions)]
	}

	if b.numPartitions <= 0 {
		return 0
	}
	return hash % b.numPartitions
}

var _ IBaseBalancer = (*OrderKeyBalancer)(nil)
