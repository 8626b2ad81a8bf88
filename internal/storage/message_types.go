package storage

import "time"

// WarmTaskMessage 缓存预热任务消息，多个副本通过队列共享预热工作
type WarmTaskMessage struct {
	TaskID         string    `json:"task_id"`
	SessionID      string    `json:"session_id"`
	CVText         string    `json:"cv_text"`
	FileBytes      []byte    `json:"file_bytes"` // JSON 中为 base64
	JobDescription string    `json:"job_description"`
	JobPosition    string    `json:"job_position"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
