// Package hook 负责拦截器逻辑
// 在包进入事件分发之前或写出之前修改、丢弃数据包
package hook

import "github.com/Versifine/mcclient/internal/protocol"

// Hook 定义拦截器接口
type Hook interface {
	// OnPacket 在包解码后 (inbound) 或编码前 (outbound) 被调用
	// 返回修改后的包，或返回 nil 表示丢弃该包
	OnPacket(packet *protocol.Packet, inbound bool) *protocol.Packet
}

// DefaultHook 默认拦截器实现，不做任何修改
type DefaultHook struct{}

// OnPacket 默认实现，直接返回原包
func (h *DefaultHook) OnPacket(packet *protocol.Packet, inbound bool) *protocol.Packet {
	return packet
}

// Func adapts a function to Hook.
type Func func(packet *protocol.Packet, inbound bool) *protocol.Packet

func (f Func) OnPacket(packet *protocol.Packet, inbound bool) *protocol.Packet {
	return f(packet, inbound)
}

// Chain runs hooks in order and stops at the first one that drops the packet.
type Chain []Hook

func (c Chain) OnPacket(packet *protocol.Packet, inbound bool) *protocol.Packet {
	for _, h := range c {
		if packet = h.OnPacket(packet, inbound); packet == nil {
			return nil
		}
	}
	return packet
}

// DropNames discards packets with one of the given names in both directions.
func DropNames(names ...string) Hook {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return Func(func(packet *protocol.Packet, _ bool) *protocol.Packet {
		if _, ok := set[packet.Name]; ok {
			return nil
		}
		return packet
	})
}
