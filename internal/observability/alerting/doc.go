// Package alerting 在智能体运行失败时向日志或 Webhook 渠道发送告警。
package alerting
