package runlog

import (
	"context"
	"database/sql"
	"time"

	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/storage/mysql"
)

// MySQLRecorder 将运行记录写入 agent_runs 表。
type MySQLRecorder struct {
	db *sql.DB
}

// OpenMySQLRecorder 建立连接并执行内嵌迁移。
func OpenMySQLRecorder(ctx context.Context, cfg mysql.Config) (*MySQLRecorder, error) {
	db, err := mysql.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "")
	}
	recorder, err := NewMySQLRecorder(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return recorder, nil
}

// NewMySQLRecorder 基于已有连接创建记录器，并执行内嵌迁移。
func NewMySQLRecorder(ctx context.Context, db *sql.DB) (*MySQLRecorder, error) {
	if err := mysql.Migrate(ctx, db); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return &MySQLRecorder{db: db}, nil
}

// Record 实现 Recorder 接口。
func (r *MySQLRecorder) Record(ctx context.Context, run Run) error {
	const stmt = `INSERT INTO agent_runs
        (id, thread_id, instruction, status, error_message, frames, agent_steps, tool_steps, last_message, started_at, finished_at, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, stmt,
		run.ID, run.ThreadID, run.Instruction, string(run.Status), run.Error,
		run.Frames, run.AgentSteps, run.ToolSteps, run.LastMessage,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.DurationMS)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入运行记录失败")
	}
	return nil
}

// ListLatest 实现 Recorder 接口。
func (r *MySQLRecorder) ListLatest(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, thread_id, instruction, status, error_message, frames, agent_steps, tool_steps, last_message, started_at, finished_at, duration_ms
        FROM agent_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行记录失败")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                   Run
			status                string
			errMsg, lastMessage   sql.NullString
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&run.ID, &run.ThreadID, &run.Instruction, &status, &errMsg,
			&run.Frames, &run.AgentSteps, &run.ToolSteps, &lastMessage,
			&startedAt, &finishedAt, &run.DurationMS); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析运行记录失败")
		}
		run.Status = Status(status)
		run.Error = errMsg.String
		run.LastMessage = lastMessage.String
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		run.FinishedAt = time.UnixMilli(finishedAt).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历运行记录失败")
	}
	return runs, nil
}

// Close 关闭数据库连接。
func (r *MySQLRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
