// Package cmap provides a sharded concurrent map keyed by string.
//
// Each shard owns a RWMutex, so operations on different keys rarely
// contend. Iteration locks one shard at a time and therefore does not
// observe a consistent snapshot of the whole map.
//
// Usage:
//
//	m := cmap.New[*service.Controller]()
//	ctrl, loaded := m.GetOrSet(id, func() *service.Controller { ... })
package cmap
