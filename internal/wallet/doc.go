// Package wallet 负责保存智能体钱包凭据。凭据是工具包导出的不透明 JSON，
// 可以放在进程环境变量（兼容旧部署）、进程内存或按会话区分的 Redis 键中。
package wallet
