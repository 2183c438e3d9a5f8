package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"OnchainAgent/internal/runlog"

	"github.com/gin-gonic/gin"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = runlog.DefaultCapacity
)

type chatRequest struct {
	Instruction string `json:"instruction"`
}

// handleChat 以 text/event-stream 推送一次推理的全部事件。
func (s *Server) handleChat(c *gin.Context) {
	if s.streamer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "智能体未初始化"})
		return
	}

	// 指令优先取请求体，其次取查询参数；均为空时由 relay 使用默认指令。
	instruction := c.Query("instruction")
	if c.Request.Method == http.MethodPost {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败"})
			return
		}
		if strings.TrimSpace(req.Instruction) != "" {
			instruction = req.Instruction
		}
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	// 写入失败说明客户端已断开，停止拉取即可终止本次推理。
	for ev := range s.streamer.Run(c.Request.Context(), instruction) {
		if _, err := io.WriteString(c.Writer, ev.Frame()); err != nil {
			s.log.Debug("客户端已断开", slog.Any("error", err))
			return
		}
		c.Writer.Flush()
	}
}

// handleRuns 返回最近的运行记录。
func (s *Server) handleRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置运行记录存储"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是正整数"})
			return
		}
		limit = min(parsed, maxRunsLimit)
	}

	runs, err := s.runs.ListLatest(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("查询运行记录失败", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	c.JSON(http.StatusOK, runs)
}
