package runlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	xerrors "OnchainAgent/internal/errors"
)

// FileRecorder 以追加写的方式把运行记录写入 JSON 行文件，并在内存中保留最近的记录。
type FileRecorder struct {
	mu       sync.RWMutex
	dataFile string
	capacity int
	runs     []Run
}

// NewFileRecorder 在 dataDir 下创建 runs.log，并恢复已有记录。
func NewFileRecorder(dataDir string, capacity int) (*FileRecorder, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	recorder := &FileRecorder{dataFile: filepath.Join(dataDir, "runs.log"), capacity: capacity}
	if err := recorder.loadFromDisk(); err != nil {
		return nil, err
	}
	return recorder, nil
}

// Record 实现 Recorder 接口。
func (r *FileRecorder) Record(_ context.Context, run Run) error {
	encoded, err := json.Marshal(run)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化运行记录失败")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开运行日志失败")
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入运行日志失败")
	}
	r.push(run)
	return nil
}

// ListLatest 返回最近的运行记录，按时间倒序排列。
func (r *FileRecorder) ListLatest(_ context.Context, limit int) ([]Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.runs) {
		limit = len(r.runs)
	}
	results := make([]Run, limit)
	copy(results, r.runs[:limit])
	return results, nil
}

// Close 实现 Recorder 接口。
func (r *FileRecorder) Close() error { return nil }

func (r *FileRecorder) push(run Run) {
	r.runs = append([]Run{run}, r.runs...)
	if len(r.runs) > r.capacity {
		r.runs = r.runs[:r.capacity]
	}
}

func (r *FileRecorder) loadFromDisk() error {
	file, err := os.OpenFile(r.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取运行日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var run Run
		if err := json.Unmarshal(scanner.Bytes(), &run); err != nil {
			continue
		}
		r.push(run)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析运行日志 %s 失败", r.dataFile))
	}
	return nil
}
