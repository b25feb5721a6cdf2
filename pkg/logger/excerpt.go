package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Excerpt 截取回显的首尾各 maxLines 个非空行，行数不足时只返回一段
func Excerpt(output string, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 5
	}
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n") {
		if s := strings.TrimSpace(l); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	if len(lines) <= 2*maxLines {
		return "[" + strings.Join(lines, " ⟩ ") + "]"
	}
	return "head: [" + strings.Join(lines[:maxLines], " ⟩ ") + "], tail: [" +
		strings.Join(lines[len(lines)-maxLines:], " ⟩ ") + "]"
}

// DebugOutput debug 级别下记录设备回显摘要，用于排查提取失败
func DebugOutput(device, command, output string) {
	l := GetLogger()
	if !l.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	ex := Excerpt(output, 5)
	if ex == "" {
		ex = "<empty>"
	}
	l.WithFields(logrus.Fields{"device": device, "cmd": command}).Debugf("Command echo: %s", ex)
}
