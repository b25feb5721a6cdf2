package ssh

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolFull 同时打开的会话数已达上限
var ErrPoolFull = errors.New("ssh pool is full")

// PoolConfig 连接池配置
type PoolConfig struct {
	// MaxActive 同时在线的连接上限，<=0 表示不限制
	MaxActive int
	SSHConfig *Config
}

// PoolStats 连接池统计
type PoolStats struct {
	Active int `json:"active"`
	Peak   int `json:"peak"`
	Opened int `json:"opened"`
	Failed int `json:"failed"`
}

// Pool SSH连接池
//
// 每台设备只采集一次，不复用空闲连接；Pool 负责限制同时在线的连接数，
// 并记录峰值，用于核对调度器的并发上限。
type Pool struct {
	config    *Config
	maxActive int

	mutex sync.Mutex
	stats PoolStats
	live  map[*Client]struct{}
}

// NewPool 创建SSH连接池
func NewPool(config *PoolConfig) *Pool {
	return &Pool{
		config:    config.SSHConfig,
		maxActive: config.MaxActive,
		live:      make(map[*Client]struct{}),
	}
}

// GetConnection 建立一条新连接并计入活跃数
func (p *Pool) GetConnection(ctx context.Context, info *ConnectionInfo) (*Client, error) {
	p.mutex.Lock()
	if p.maxActive > 0 && p.stats.Active >= p.maxActive {
		active := p.stats.Active
		p.mutex.Unlock()
		return nil, fmt.Errorf("%w: active connections: %d", ErrPoolFull, active)
	}
	// 先占位，避免握手期间被其他协程超发
	p.stats.Active++
	if p.stats.Active > p.stats.Peak {
		p.stats.Peak = p.stats.Active
	}
	p.mutex.Unlock()

	client := NewClient(p.config)
	if err := client.Connect(ctx, info); err != nil {
		p.mutex.Lock()
		p.stats.Active--
		p.stats.Failed++
		p.mutex.Unlock()
		return nil, err
	}

	p.mutex.Lock()
	p.stats.Opened++
	p.live[client] = struct{}{}
	p.mutex.Unlock()
	return client, nil
}

// ReleaseConnection 关闭连接并释放占位
func (p *Pool) ReleaseConnection(client *Client) error {
	p.mutex.Lock()
	if _, ok := p.live[client]; !ok {
		p.mutex.Unlock()
		return nil
	}
	delete(p.live, client)
	p.stats.Active--
	p.mutex.Unlock()

	return client.Close()
}

// Close 关闭所有仍在线的连接
func (p *Pool) Close() error {
	p.mutex.Lock()
	clients := make([]*Client, 0, len(p.live))
	for c := range p.live {
		clients = append(clients, c)
	}
	p.live = make(map[*Client]struct{})
	p.stats.Active = 0
	p.mutex.Unlock()

	var lastErr error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// GetStats 获取连接池统计信息
func (p *Pool) GetStats() PoolStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stats
}
