package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownStrategy 未注册的策略名
var ErrUnknownStrategy = errors.New("unknown extraction strategy")

var (
	registryMu sync.RWMutex
	registry   = map[string]Strategy{}
)

// Register 注册提取策略，名称不区分大小写，重复注册时后者覆盖前者
func Register(s Strategy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(s.Name())] = s
}

// Get 按名称获取提取策略
func Get(name string) (Strategy, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if s, ok := registry[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownStrategy, name, strings.Join(namesLocked(), ", "))
}

// Names 已注册的策略名（排序后）
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
