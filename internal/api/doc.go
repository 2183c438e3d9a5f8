// Package api 暴露 agentd 的 HTTP 接口：以 SSE 推送智能体执行过程的 /api/chat、
// 运行记录查询、健康检查与 Prometheus 指标。
package api
