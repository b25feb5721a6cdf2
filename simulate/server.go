package simulate

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/switchinfo/pkg/logger"
)

// Stats 模拟器连接统计
type Stats struct {
	Accepted int
	Active   int
	Peak     int
	Rejected int
}

// Server 基于 x/crypto/ssh 的交换机 CLI 模拟器，只实现 exec 通道
type Server struct {
	cfg      *Config
	devices  map[string]*Device
	listener net.Listener
	hostKey  ssh.Signer

	mu    sync.Mutex
	stats Stats
	wg    sync.WaitGroup
}

// Start 监听 cfg.Listen 并开始接受连接；Listen 为 127.0.0.1:0 时使用随机端口
func Start(cfg *Config) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create host key signer: %w", err)
	}

	devices := make(map[string]*Device, len(cfg.Devices))
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		devices[d.Username] = d
	}

	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, devices: devices, listener: ln, hostKey: signer}
	s.wg.Add(1)
	go s.acceptLoop()
	logger.WithField("addr", ln.Addr().String()).Debug("Simulate: listener started")
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Port 实际监听端口
func (s *Server) Port() int { return s.listener.Addr().(*net.TCPAddr).Port }

// Stats 返回连接统计快照
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stop 关闭监听并等待在途连接结束
func (s *Server) Stop() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.WithField("error", err).Warn("Simulate: accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		if s.cfg.MaxConn > 0 && s.stats.Active >= s.cfg.MaxConn {
			s.stats.Rejected++
			s.mu.Unlock()
			_ = conn.Close()
			continue
		}
		s.stats.Accepted++
		s.stats.Active++
		if s.stats.Active > s.stats.Peak {
			s.stats.Peak = s.stats.Active
		}
		s.mu.Unlock()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
			s.mu.Lock()
			s.stats.Active--
			s.mu.Unlock()
		}(conn)
	}
}

func (s *Server) checkPassword(user, password string) bool {
	d, ok := s.devices[user]
	return ok && d.Password == password
}

func (s *Server) handleConn(nc net.Conn) {
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if s.checkPassword(meta.User(), string(password)) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 1 && s.checkPassword(meta.User(), answers[0]) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
	}
	srvCfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		logger.WithField("error", err).Debug("Simulate: SSH handshake failed")
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	device := s.devices[conn.User()]
	var sessions sync.WaitGroup
	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			continue
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(channel, requests, device)
		}()
	}
	sessions.Wait()
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request, device *Device) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			if device.Delay > 0 {
				time.Sleep(device.Delay)
			}
			out, ok := device.lookup(payload.Command)
			if !ok {
				out = "% Invalid input detected at '^' marker.\n"
			}
			logger.WithFields(logrus.Fields{"device": device.Username, "cmd": payload.Command, "matched": ok}).Debug("Simulate: exec")
			_, _ = channel.Write([]byte(ensureCRLF(out)))
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		case "pty-req", "env":
			_ = req.Reply(true, nil)
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}
