package hauler_scheduler

import (
	"strconv"
	"sync"
)

// snapshotCache 单次 tick 内的配置快照，同一作用域只从存储读取一次
type snapshotCache[T any] struct {
	mu sync.Mutex
	mp map[string]T
}

func newSnapshotCache[T any]() *snapshotCache[T] {
	return &snapshotCache[T]{mp: map[string]T{}}
}

// load 命中缓存直接返回，否则调用 fn 读取；读取失败不缓存
func (c *snapshotCache[T]) load(key string, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.mp[key]; ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.mp[key] = v
	return v, nil
}

func scopeKey(tenantID *int64) string {
	if tenantID == nil {
		return "global"
	}
	return "tenant:" + strconv.FormatInt(*tenantID, 10)
}
