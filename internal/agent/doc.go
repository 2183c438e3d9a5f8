// Package agent 负责组装链上智能体：Factory 读取钱包凭据、构建工具包与会话记忆，
// ReactExecutor 则在大模型与工具之间循环，按步骤惰性地产出执行记录。
package agent
