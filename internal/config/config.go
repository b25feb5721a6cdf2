package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sshcollectorpro/switchinfo/pkg/logger"
	"github.com/sshcollectorpro/switchinfo/pkg/ssh"
)

// EnvPrefix 环境变量前缀，如 SWITCHINFO_COLLECTOR_STRATEGY
const EnvPrefix = "SWITCHINFO"

// Config 应用配置结构
type Config struct {
	Collector   CollectorConfig   `mapstructure:"collector"`
	SSH         SSHConfig         `mapstructure:"ssh"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Log         logger.Config     `mapstructure:"log"`
}

// CollectorConfig 采集器配置
type CollectorConfig struct {
	// Strategy 提取策略：pattern | offset
	Strategy   string `mapstructure:"strategy"`
	DeviceType string `mapstructure:"device_type"`
	// OutputPath 结果 CSV 路径，每次运行开始时截断
	OutputPath string `mapstructure:"output_path"`
}

// SSHConfig SSH配置
type SSHConfig struct {
	Port              int           `mapstructure:"port"`
	Timeout           TimeoutConfig `mapstructure:"timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// TimeoutConfig 拨号与握手超时为秒数，命令超时为时长字符串
type TimeoutConfig struct {
	DialTimeout    int           `mapstructure:"dial_timeout"`
	AuthTimeout    int           `mapstructure:"auth_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// CredentialsConfig 目标清单密码解密配置，SecretKey 为空表示密码为明文
type CredentialsConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置（运行审计）
type SQLiteConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 结果文件存储配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置（运行结束后上传 CSV）
type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	Prefix    string `mapstructure:"prefix"`
}

// ClientConfig 转换为 pkg/ssh 客户端配置
func (c SSHConfig) ClientConfig() *ssh.Config {
	return &ssh.Config{
		DialTimeout:    time.Duration(c.Timeout.DialTimeout) * time.Second,
		AuthTimeout:    time.Duration(c.Timeout.AuthTimeout) * time.Second,
		CommandTimeout: c.Timeout.CommandTimeout,
		KeepAlive:      c.KeepAliveInterval,
	}
}

var globalConfig *Config

// Load 加载配置文件
//
// configPath 为空时在 ./configs 等目录查找 config.yaml，找不到则只使用默认值；
// 显式指定的文件不存在或格式错误时返回错误。当前目录下的 .env 会先被载入环境变量。
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 环境变量替换
	config = replaceEnvVars(config)

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("collector.strategy", "pattern")
	v.SetDefault("collector.device_type", "cisco_ios")
	v.SetDefault("collector.output_path", "device_info.csv")

	v.SetDefault("ssh.port", 22)
	// 拨号与握手阶段拆分（秒）
	v.SetDefault("ssh.timeout.dial_timeout", 5)
	v.SetDefault("ssh.timeout.auth_timeout", 10)
	v.SetDefault("ssh.timeout.command_timeout", 60*time.Second)
	v.SetDefault("ssh.keep_alive_interval", 0)

	v.SetDefault("credentials.secret_key", "")

	v.SetDefault("database.sqlite.enabled", false)
	v.SetDefault("database.sqlite.path", "./data/switchinfo.db")
	v.SetDefault("database.sqlite.max_idle_conns", 2)
	v.SetDefault("database.sqlite.max_open_conns", 1)

	v.SetDefault("storage.minio.enabled", false)
	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "switchinfo")
	v.SetDefault("storage.minio.prefix", "device-info")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/switchinfo.log")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// replaceEnvVars 替换 ${VAR} 形式的敏感配置
func replaceEnvVars(config Config) Config {
	config.Credentials.SecretKey = expandEnv(config.Credentials.SecretKey)
	config.Storage.Minio.AccessKey = expandEnv(config.Storage.Minio.AccessKey)
	config.Storage.Minio.SecretKey = expandEnv(config.Storage.Minio.SecretKey)
	return config
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return s
}
