package domain

import (
	"encoding/json"
	"time"
)

// StateVersion 当前调度状态文档的版本号
const StateVersion = 1

// TenantSchedulerState 记录某个租户每个任务上一次尝试的时间
type TenantSchedulerState struct {
	Version     int                  `json:"version"`
	LastAttempt map[string]time.Time `json:"last_attempt"`

	dirty bool
}

func NewTenantSchedulerState() *TenantSchedulerState {
	return &TenantSchedulerState{
		Version:     StateVersion,
		LastAttempt: map[string]time.Time{},
	}
}

// DecodeTenantSchedulerState 解析已存储的文档，无法解析或版本未知时返回空状态，所有任务视为到期
func DecodeTenantSchedulerState(raw []byte) *TenantSchedulerState {
	st := NewTenantSchedulerState()
	if len(raw) == 0 {
		return st
	}
	var doc TenantSchedulerState
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Version != StateVersion {
		return st
	}
	for k, v := range doc.LastAttempt {
		if !v.IsZero() {
			st.LastAttempt[k] = v
		}
	}
	return st
}

func (s *TenantSchedulerState) Get(task string) (time.Time, bool) {
	t, ok := s.LastAttempt[task]
	return t, ok
}

// Touch 记录一次尝试，并标记状态需要写回
func (s *TenantSchedulerState) Touch(task string, at time.Time) {
	s.LastAttempt[task] = at.UTC()
	s.dirty = true
}

func (s *TenantSchedulerState) Dirty() bool {
	return s.dirty
}

func (s *TenantSchedulerState) Encode() ([]byte, error) {
	return json.Marshal(s)
}
