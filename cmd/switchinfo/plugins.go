package main

// 引入提取策略插件，触发 init() 完成注册
import (
	_ "github.com/sshcollectorpro/switchinfo/addone/extract/platforms/cisco_ios"
)
