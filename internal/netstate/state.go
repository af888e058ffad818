// Package netstate 维护进程级的联网状态。启动时探测一次，之后只读；
// 缓存访问器在离线状态下会无条件返回已有缓存。
package netstate

import "sync/atomic"

// ConnectivityState 是联网标志的显式持有者，零值表示离线。
type ConnectivityState struct {
	connected atomic.Bool
}

// NewConnectivityState 以给定初值构造状态。
func NewConnectivityState(connected bool) *ConnectivityState {
	s := &ConnectivityState{}
	s.connected.Store(connected)
	return s
}

// IsConnected 返回当前是否认为可以访问外网。nil 接收者视为离线。
func (s *ConnectivityState) IsConnected() bool {
	if s == nil {
		return false
	}
	return s.connected.Load()
}

func (s *ConnectivityState) SetConnected() {
	s.connected.Store(true)
}

func (s *ConnectivityState) SetDisconnected() {
	s.connected.Store(false)
}

// Set 按布尔值更新状态。
func (s *ConnectivityState) Set(connected bool) {
	s.connected.Store(connected)
}
