package types

import (
	"time"
)

type CronManager interface {
	LifecycleManager
	Add(jobName, spec string, job func()) error
	Remove(jobName string) error
	List() []JobInfo
}

type JobInfo struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	NextRun   time.Time `json:"next_run"`
	PrevRun   time.Time `json:"prev_run"`
	RunCount  uint64    `json:"run_count"`
	FailCount uint64    `json:"fail_count"`
}
