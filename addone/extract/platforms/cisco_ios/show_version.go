package cisco_ios

import (
	"regexp"

	"github.com/sshcollectorpro/switchinfo/addone/extract"
)

var (
	// serialHead 序列号：3 个大写字母后跟 8 个字母数字
	serialHead = regexp.MustCompile(`^[A-Z]{3}[A-Za-z0-9]{8}`)
	// serialDigits 候选序列号所在位置到行尾需至少含连续 3 位数字
	serialDigits = regexp.MustCompile(`\d{3}`)

	// pidPattern/techPattern 惰性匹配到第一个空白为止，结果取首个非空分组
	pidPattern  = regexp.MustCompile(`(C9[356]00.+?)\s|([A-Z]{2}.[A-Z][0-9]{4}.+?)\s`)
	techPattern = regexp.MustCompile(`(network-.+?)\s|ipservicesk9|ipbasek9|lanbasek9`)
)

// VersionStrategy 基于 show version 回显的正则提取
type VersionStrategy struct{}

func (s *VersionStrategy) Name() string { return "pattern" }

func (s *VersionStrategy) Commands() []string { return []string{"show version"} }

func (s *VersionStrategy) Header() []string {
	return []string{"Product ID", "Serial Number", "License Entitlement"}
}

func (s *VersionStrategy) Row(rec extract.DeviceRecord) []string {
	return []string{rec.ProductID, rec.SerialNumber, rec.LicenseEntitlement}
}

// Extract 在回显中按首次出现取产品型号、序列号与授权级别，缺任一字段即失败
func (s *VersionStrategy) Extract(outputs []string) (extract.DeviceRecord, error) {
	var rec extract.DeviceRecord
	if len(outputs) < 1 {
		return rec, &extract.MissingFieldError{Field: "show version"}
	}
	text := outputs[0]

	rec.SerialNumber = findSerial(text)
	if rec.SerialNumber == "" {
		return rec, &extract.MissingFieldError{Field: "serial number"}
	}
	rec.ProductID = firstGroup(pidPattern, text)
	if rec.ProductID == "" {
		return rec, &extract.MissingFieldError{Field: "product id"}
	}
	rec.LicenseEntitlement = firstGroup(techPattern, text)
	if rec.LicenseEntitlement == "" {
		return rec, &extract.MissingFieldError{Field: "license entitlement"}
	}
	return rec, nil
}

// firstGroup 返回最左匹配中第一个非空捕获组，无捕获组的分支返回整段匹配
func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return m[0]
}

// findSerial 返回最左侧的序列号候选；RE2 不支持前瞻，逐个起点检查
func findSerial(text string) string {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c < 'A' || c > 'Z' {
			continue
		}
		m := serialHead.FindString(text[i:])
		if m == "" {
			continue
		}
		rest := text[i:]
		for j := 0; j < len(rest); j++ {
			if rest[j] == '\n' || rest[j] == '\r' {
				rest = rest[:j]
				break
			}
		}
		if serialDigits.MatchString(rest) {
			return m
		}
	}
	return ""
}

func init() { extract.Register(&VersionStrategy{}) }
