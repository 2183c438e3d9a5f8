// Package runlog 记录每次流式推理的汇总信息，支持本地 JSON 行文件与 MySQL 两种存储。
package runlog
