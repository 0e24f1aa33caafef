package systems

import (
	"time"
)

// System is one stage of the per-tick pipeline.
type System interface {
	Name() string
	Priority() Priority
	Update(deltaTime float64) error
}

// Priority defines execution order; higher priorities run first.
type Priority uint16

// System priorities
const (
	PriorityLowest  Priority = 100
	PriorityLow     Priority = 500
	PriorityNormal  Priority = 600
	PriorityHigh    Priority = 1000
	PriorityHighest Priority = 1300
)

// Metrics provides runtime metrics for a system
type Metrics struct {
	ExecutionCount       uint64
	TotalExecutionTime   time.Duration
	AverageExecutionTime time.Duration
	MaxExecutionTime     time.Duration
	LastExecutionTime    time.Duration
	ErrorCount           uint64
	LastError            error
}

func (m *Metrics) record(d time.Duration, err error) {
	m.ExecutionCount++
	m.TotalExecutionTime += d
	m.AverageExecutionTime = m.TotalExecutionTime / time.Duration(m.ExecutionCount)
	m.LastExecutionTime = d
	if d > m.MaxExecutionTime {
		m.MaxExecutionTime = d
	}
	if err != nil {
		m.ErrorCount++
		m.LastError = err
	}
}

// Func adapts a function to System.
type Func struct {
	SystemName     string
	SystemPriority Priority
	Fn             func(deltaTime float64) error
}

func (f Func) Name() string                   { return f.SystemName }
func (f Func) Priority() Priority             { return f.SystemPriority }
func (f Func) Update(deltaTime float64) error { return f.Fn(deltaTime) }
