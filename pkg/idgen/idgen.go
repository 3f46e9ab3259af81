package idgen

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init 设置节点号，多实例部署时每个实例需不同
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

func get() *snowflake.Node {
	once.Do(func() {
		if node == nil {
			node, _ = snowflake.NewNode(1)
		}
	})
	return node
}

// NextID 生成数值 ID
func NextID() int64 {
	return get().Generate().Int64()
}

// NextNo 生成带前缀的业务编号
func NextNo(prefix string) string {
	return prefix + get().Generate().String()
}
