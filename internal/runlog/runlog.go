package runlog

import (
	"context"
	"time"
)

// Status 表示一次运行的最终状态。
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// DefaultCapacity 是内存中保留的最近运行数量。
const DefaultCapacity = 512

// Run 汇总一次 /api/chat 请求的执行情况。
type Run struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Instruction string    `json:"instruction"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Frames      int       `json:"frames"`
	AgentSteps  int       `json:"agent_steps"`
	ToolSteps   int       `json:"tool_steps"`
	LastMessage string    `json:"last_message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Recorder 抽象运行记录的持久化接口。
type Recorder interface {
	Record(ctx context.Context, run Run) error
	ListLatest(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
