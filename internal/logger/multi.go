package logger

import (
	"time"

	"github.com/harrison/agentflow/internal/models"
)

// Sink is what a MultiLogger fans out to: both observer interfaces.
type Sink interface {
	LogEvent(ev models.Event)
	LogGroupStart(group models.Group)
	LogNodeResult(result models.ExecutionResult)
	LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults)
}

// MultiLogger forwards every call to each sink in order. Nil sinks are skipped.
type MultiLogger struct {
	sinks []Sink
}

// NewMultiLogger creates a MultiLogger over the given sinks.
func NewMultiLogger(sinks ...Sink) *MultiLogger {
	m := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// LogEvent implements the controller observer.
func (m *MultiLogger) LogEvent(ev models.Event) {
	for _, s := range m.sinks {
		s.LogEvent(ev)
	}
}

func (m *MultiLogger) LogGroupStart(group models.Group) {
	for _, s := range m.sinks {
		s.LogGroupStart(group)
	}
}

func (m *MultiLogger) LogNodeResult(result models.ExecutionResult) {
	for _, s := range m.sinks {
		s.LogNodeResult(result)
	}
}

func (m *MultiLogger) LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults) {
	for _, s := range m.sinks {
		s.LogGroupComplete(group, duration, results)
	}
}
