package simulate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config simulate.yaml 配置结构
type Config struct {
	Listen  string   `mapstructure:"listen"`
	MaxConn int      `mapstructure:"max_conn"`
	Devices []Device `mapstructure:"devices"`
}

// Device 模拟设备：以登录用户名区分设备
type Device struct {
	Username string          `mapstructure:"username"`
	Password string          `mapstructure:"password"`
	Delay    time.Duration   `mapstructure:"delay"`
	Commands []CommandOutput `mapstructure:"commands"`
}

// CommandOutput 命令回显，Output 为空时读取 File
type CommandOutput struct {
	Command string `mapstructure:"command"`
	Output  string `mapstructure:"output"`
	File    string `mapstructure:"file"`
}

// LoadConfig 读取模拟器配置，相对路径的 file 以配置文件所在目录为基准
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("listen", "127.0.0.1:22001")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Devices {
		for j := range cfg.Devices[i].Commands {
			co := &cfg.Devices[i].Commands[j]
			if co.Output != "" || co.File == "" {
				continue
			}
			p := co.File
			if !filepath.IsAbs(p) {
				p = filepath.Join(base, p)
			}
			bs, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("device %s command %q: %w", cfg.Devices[i].Username, co.Command, err)
			}
			co.Output = string(bs)
		}
	}
	return &cfg, nil
}

// lookup 返回命令回显，命令比较忽略大小写与首尾空白
func (d *Device) lookup(cmd string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(cmd))
	for _, co := range d.Commands {
		if strings.ToLower(strings.TrimSpace(co.Command)) == key {
			return co.Output, true
		}
	}
	return "", false
}
