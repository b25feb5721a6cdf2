package service

import (
	"context"

	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/pkg/ssh"
)

// ExecAdapter 基于 ssh.Pool 的 SessionOpener，每台设备一次登录、顺序执行全部命令
type ExecAdapter struct {
	pool *ssh.Pool
}

func NewExecAdapter(pool *ssh.Pool) *ExecAdapter {
	return &ExecAdapter{pool: pool}
}

// Open 登录设备，失败时返回 *ssh.ConnectError（或 ssh.ErrPoolFull）
func (a *ExecAdapter) Open(ctx context.Context, target inventory.Target, deviceType string) (Session, error) {
	conn := &ssh.ConnectionInfo{
		Host:       target.Address,
		Port:       target.Port,
		Username:   target.Username,
		Password:   target.Secret,
		DeviceType: deviceType,
	}
	client, err := a.pool.GetConnection(ctx, conn)
	if err != nil {
		return nil, err
	}
	return &execSession{pool: a.pool, client: client}, nil
}

type execSession struct {
	pool   *ssh.Pool
	client *ssh.Client
}

func (s *execSession) Execute(ctx context.Context, command string) (string, error) {
	res, err := s.client.ExecuteCommand(ctx, command)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

func (s *execSession) Close() error {
	return s.pool.ReleaseConnection(s.client)
}
