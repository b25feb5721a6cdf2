package cisco_ios

import (
	"strings"

	"github.com/sshcollectorpro/switchinfo/addone/extract"
)

// inventorySerialToken show inventory 首条记录中 SN 所在的词序号（从 1 开始）
const inventorySerialToken = 14

// InventoryStrategy 基于 show inventory 与 license 回显的定位提取，不含产品型号
type InventoryStrategy struct{}

func (s *InventoryStrategy) Name() string { return "offset" }

func (s *InventoryStrategy) Commands() []string {
	return []string{"show inventory", "show license right-to-use summary"}
}

func (s *InventoryStrategy) Header() []string {
	return []string{"Serial Number", "License Entitlement"}
}

func (s *InventoryStrategy) Row(rec extract.DeviceRecord) []string {
	return []string{rec.SerialNumber, rec.LicenseEntitlement}
}

// Extract 序列号取 show inventory 的第 14 个词，授权取 license 回显的最后一个词
func (s *InventoryStrategy) Extract(outputs []string) (extract.DeviceRecord, error) {
	var rec extract.DeviceRecord
	if len(outputs) < 2 {
		return rec, &extract.MissingFieldError{Field: "show license right-to-use summary"}
	}

	inv := strings.Fields(outputs[0])
	if len(inv) < inventorySerialToken {
		return rec, &extract.OutOfRangeError{Field: "serial number", Output: 1, Index: inventorySerialToken, Tokens: len(inv)}
	}
	rec.SerialNumber = inv[inventorySerialToken-1]

	lic := strings.Fields(outputs[1])
	if len(lic) == 0 {
		return rec, &extract.OutOfRangeError{Field: "license entitlement", Output: 2, Index: -1}
	}
	rec.LicenseEntitlement = lic[len(lic)-1]
	return rec, nil
}

func init() { extract.Register(&InventoryStrategy{}) }
