package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH配置
type Config struct {
	// DialTimeout TCP 建连超时
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// AuthTimeout 握手与认证阶段超时
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
	// CommandTimeout 单条命令执行超时，0 表示仅受上下文约束
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	DeviceType string `json:"device_type,omitempty"`
}

// Address 返回 host:port，端口缺省为 22
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port < 1 || port > 65535 {
		port = 22
	}
	return net.JoinHostPort(i.Host, fmt.Sprintf("%d", port))
}

// CommandResult 命令执行结果
type CommandResult struct {
	Command  string        `json:"command"`
	Output   string        `json:"output"`
	Error    string        `json:"error"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// ErrorKind 连接失败分类
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindUnreachable ErrorKind = "unreachable"
	KindAuth        ErrorKind = "authentication"
	KindHandshake   ErrorKind = "handshake"
)

// ConnectError 建立会话失败（超时、认证拒绝、不可达）
type ConnectError struct {
	Host string
	Kind ErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Host, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrNotConnected 连接尚未建立或已关闭
var ErrNotConnected = errors.New("SSH connection not established")

// Client SSH客户端
type Client struct {
	config     *Config
	mutex      sync.RWMutex
	connection *ssh.Client
	info       *ConnectionInfo
	stopKeep   chan struct{}
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	return &Client{config: config}
}

// clientConfig 构建 ssh.ClientConfig，保留旧版 Catalyst 常见的 KEX/Cipher/MAC 算法
func (c *Client) clientConfig(info *ConnectionInfo) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.DialTimeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"rsa-sha2-512",
			"rsa-sha2-256",
			"ssh-rsa",
		},
	}

	// 同时尝试 password 与 keyboard-interactive，IOS 设备两者都可能出现
	password := info.Password
	cfg.Auth = []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}),
	}
	return cfg
}

// Connect 连接SSH服务器，失败时返回 *ConnectError
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	address := info.Address()
	c.info = info

	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &ConnectError{Host: info.Host, Kind: classifyDialError(err), Err: err}
	}

	// NewClientConn 本身没有超时，握手期间用连接截止时间兜底
	if c.config.AuthTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.config.AuthTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, c.clientConfig(info))
	if err != nil {
		conn.Close()
		return &ConnectError{Host: info.Host, Kind: classifyHandshakeError(err), Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)
	if c.config.KeepAlive > 0 {
		c.stopKeep = make(chan struct{})
		go c.keepAlive(c.connection, c.stopKeep)
	}
	return nil
}

func classifyDialError(err error) ErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnreachable
}

func classifyHandshakeError(err error) ErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "i/o timeout"):
		return KindTimeout
	case strings.Contains(msg, "unable to authenticate"):
		return KindAuth
	}
	return KindHandshake
}

// newSessionWithRetry 创建会话（带短退避），部分设备登录后立即开通道会被拒绝
func (c *Client) newSessionWithRetry(ctx context.Context) (*ssh.Session, error) {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if !strings.Contains(strings.ToLower(err.Error()), "administratively prohibited") {
			break
		}
	}
	return nil, lastErr
}

// ExecuteCommand 在独立 exec 通道中执行单条命令
func (c *Client) ExecuteCommand(ctx context.Context, command string) (*CommandResult, error) {
	startTime := time.Now()
	result := &CommandResult{Command: command}

	session, err := c.newSessionWithRetry(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create session: %v", err)
		result.ExitCode = -1
		return result, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	type execOut struct {
		out []byte
		err error
	}
	done := make(chan execOut, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- execOut{out: out, err: err}
	}()

	select {
	case r := <-done:
		result.Duration = time.Since(startTime)
		result.Output = string(r.out)
		if r.err != nil {
			result.Error = r.err.Error()
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				result.ExitCode = exitErr.ExitStatus()
			} else {
				result.ExitCode = -1
			}
			return result, r.err
		}
		return result, nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		result.Duration = time.Since(startTime)
		result.Error = "command timeout"
		result.ExitCode = -1
		return result, fmt.Errorf("command %q: %w", command, ctx.Err())
	}
}

// Close 关闭SSH连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopKeep != nil {
		close(c.stopKeep)
		c.stopKeep = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		return err
	}
	return nil
}

func (c *Client) keepAlive(conn *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := conn.SendRequest("keepalive@openssh.com", false, nil); err != nil {
				return
			}
		}
	}
}
