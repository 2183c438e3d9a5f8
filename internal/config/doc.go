// Package config 负责加载 agentd 的运行配置：配置文件、AGENTD_ 前缀的环境变量
// 以及各组件的默认值统一经由 viper 合并为强类型的 Config。
package config
