package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/firdasafridi/gocrypt"
	"github.com/go-playground/validator/v10"

	"github.com/sshcollectorpro/switchinfo/pkg/logger"
)

// 目标清单列名
const (
	ColumnAddress  = "ipaddr"
	ColumnUsername = "username"
	ColumnPassword = "password"
	ColumnPort     = "port"
)

// ExampleFormat 清单格式示例，用于用法说明与表头错误提示
const ExampleFormat = "ipaddr,username,password\n10.10.10.10,admin,cisco\n10.10.10.11,admin,cisco"

// Target 待采集的交换机，加载后只读
type Target struct {
	Address  string `json:"address" validate:"required,ip|hostname_rfc1123"`
	Port     int    `json:"port" validate:"gte=1,lte=65535"`
	Username string `json:"username" validate:"required"`
	Secret   string `json:"-" gocrypt:"aes"`
	// Invalid 行内容无效的原因（*RowError）；非空时不建立会话，直接记为该目标连接失败
	Invalid error `json:"-" validate:"-"`
}

// HeaderError 清单表头缺少必需列
type HeaderError struct {
	Path    string
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid header in %s: missing column(s) %s; expected format:\n%s",
		e.Path, strings.Join(e.Missing, ", "), ExampleFormat)
}

// RowError 某一行内容无效
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// Options 加载选项
type Options struct {
	// DefaultPort 未提供 port 列时使用，<=0 时取 22
	DefaultPort int
	// SecretKey 非空时 password 列为 gocrypt AES 密文（64 位十六进制密钥）
	SecretKey string
}

var validate = validator.New()

// LoadTargets 读取目标清单文件
func LoadTargets(path string, opts Options) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	targets, err := ParseTargets(f, opts)
	if err != nil {
		var he *HeaderError
		if errors.As(err, &he) {
			he.Path = path
		}
		return nil, err
	}
	return targets, nil
}

// ParseTargets 从 CSV 读取目标；多余列忽略，空行跳过，只有表头时返回空列表。
// 表头与 CSV 语法错误立即返回；单行内容无效时目标照常返回并带上 Invalid
func ParseTargets(r io.Reader, opts Options) ([]Target, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &HeaderError{Missing: []string{ColumnAddress, ColumnUsername, ColumnPassword}}
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range []string{ColumnAddress, ColumnUsername, ColumnPassword} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}

	defaultPort := opts.DefaultPort
	if defaultPort <= 0 {
		defaultPort = 22
	}

	var crypt *gocrypt.Option
	if opts.SecretKey != "" {
		aesOpt, err := gocrypt.NewAESOpt(opts.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials secret key: %w", err)
		}
		crypt = &gocrypt.Option{AESOpt: aesOpt}
	}

	field := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var targets []Target
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &RowError{Line: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("failed to read target list: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if isBlank(rec) {
			continue
		}

		t := Target{
			Address:  field(rec, ColumnAddress),
			Port:     defaultPort,
			Username: field(rec, ColumnUsername),
			Secret:   field(rec, ColumnPassword),
		}
		t.Invalid = checkRow(&t, field(rec, ColumnPort), crypt)
		if t.Invalid != nil {
			t.Invalid = &RowError{Line: line, Err: t.Invalid}
			logger.WithField("line", line).Warnf("Invalid entry for switch %q in target list: %v", t.Address, t.Invalid)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// checkRow 解析端口、校验字段并解密密码；错误只影响本行目标
func checkRow(t *Target, port string, crypt *gocrypt.Option) error {
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
		t.Port = n
	}
	if err := validate.Struct(t); err != nil {
		return err
	}
	if crypt != nil {
		if err := gocrypt.New(crypt).Decrypt(t); err != nil {
			return fmt.Errorf("failed to decrypt password: %w", err)
		}
	}
	return nil
}

// EncryptSecret 用 gocrypt AES 加密明文密码，生成可写入清单的密文
func EncryptSecret(plain, secretKey string) (string, error) {
	aesOpt, err := gocrypt.NewAESOpt(secretKey)
	if err != nil {
		return "", err
	}
	t := Target{Secret: plain}
	if err := gocrypt.New(&gocrypt.Option{AESOpt: aesOpt}).Encrypt(&t); err != nil {
		return "", err
	}
	return t.Secret, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
