package sw

import (
	"fmt"
	"sync"
	"time"
)

// State 是 controller 的生命周期状态。
type State string

const (
	StateUnregistered State = "unregistered"
	StateInstalling   State = "installing"
	StateInstalled    State = "installed"
	StateActivating   State = "activating"
	StateActive       State = "active"
	StateRedundant    State = "redundant"
)

// allowedTransitions 列出每个状态可以进入的下一状态；任何状态都可以变为 redundant。
var allowedTransitions = map[State][]State{
	StateUnregistered: {StateInstalling},
	StateInstalling:   {StateInstalled},
	StateInstalled:    {StateActivating},
	StateActivating:   {StateActive},
	StateActive:       {},
	StateRedundant:    {},
}

// CanTransition 判断 from -> to 是否合法。
func CanTransition(from, to State) bool {
	if to == StateRedundant {
		return from != StateRedundant
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// lifecycle 保存状态及每次变更的时间，供诊断接口展示。
type lifecycle struct {
	mu      sync.RWMutex
	state   State
	changed map[State]time.Time
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		state:   StateUnregistered,
		changed: map[State]time.Time{StateUnregistered: time.Now().UTC()},
	}
}

func (l *lifecycle) current() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *lifecycle) transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !CanTransition(l.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
	}
	l.state = to
	l.changed[to] = time.Now().UTC()
	return nil
}

func (l *lifecycle) since(s State) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed[s]
}
