package util

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// legacyEncodings 设备 banner、description 中常见的非 UTF-8 编码，按尝试顺序排列
var legacyEncodings = []encoding.Encoding{
	simplifiedchinese.GB18030,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// EnsureUTF8Bytes 将设备回显转换为 UTF-8；已是合法 UTF-8 时原样返回，全部解码失败时直接按字节转换
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	for _, enc := range legacyEncodings {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

// EnsureUTF8 字符串版本的 EnsureUTF8Bytes
func EnsureUTF8(s string) string {
	return EnsureUTF8Bytes([]byte(s))
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}

// pagerPattern 分页提示，如 " --More-- " 以及随后的退格清除序列
var pagerPattern = regexp.MustCompile(`\s*-{2,}\s*[Mm]ore\s*-{2,}\s*[\x08 ]*`)

// NormalizeOutput 规范化命令回显：转 UTF-8、统一换行、去掉分页提示与退格字符
func NormalizeOutput(raw string) string {
	s := EnsureUTF8(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = pagerPattern.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\x08", "")
	return s
}
