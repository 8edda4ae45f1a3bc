package models

import (
	"maps"
	"time"
)

type TriggerType string

const (
	TriggerTypeCron     TriggerType = "cron"
	TriggerTypeInterval TriggerType = "interval"
	TriggerTypeDate     TriggerType = "date"
)

func (t TriggerType) Valid() bool {
	return t == TriggerTypeCron || t == TriggerTypeInterval || t == TriggerTypeDate
}

// ScheduledTask binds a workflow to a recurring or one-shot trigger. The
// trigger config stays plain JSON; the scheduler builds the runtime trigger.
type ScheduledTask struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	Name          string         `json:"name"`
	TriggerType   TriggerType    `json:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config"`
	Variables     map[string]any `json:"variables"`
	Enabled       bool           `json:"enabled"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastRun       *time.Time     `json:"last_run"`
	NextRun       *time.Time     `json:"next_run"`
	RunCount      int            `json:"run_count"`
}

func (t *ScheduledTask) Clone() *ScheduledTask {
	clone := *t
	clone.TriggerConfig = maps.Clone(t.TriggerConfig)
	clone.Variables = maps.Clone(t.Variables)

	if t.LastRun != nil {
		lastRun := *t.LastRun
		clone.LastRun = &lastRun
	}

	if t.NextRun != nil {
		nextRun := *t.NextRun
		clone.NextRun = &nextRun
	}

	return &clone
}
