package logger

import (
	"github.com/fatih/color"

	"github.com/harrison/agentflow/internal/models"
)

// colorScheme defines consistent colors for run output.
// Green: success, Red: failure, Yellow: warnings and non-answer framings,
// Cyan: labels.
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	muted   *color.Color
}

var (
	scheme = colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		muted:   color.New(color.FgHiBlack),
	}
	bold = color.New(color.Bold)
)

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return scheme.muted
	case "DEBUG":
		return scheme.label
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return scheme.warn
	case "ERROR":
		return scheme.fail
	}
	return color.New(color.Reset)
}

func judgementColor(j models.Judgement) *color.Color {
	switch j {
	case models.JudgementPassed:
		return scheme.success
	case models.JudgementNotVerified:
		return scheme.warn
	}
	return scheme.fail
}

func resultColor(r models.ExecutionResult) *color.Color {
	if r.Succeeded() {
		return scheme.success
	}
	if r.Failure != nil && (r.Failure.Kind == models.FailureCancelled || r.Failure.Kind == models.FailureRejected) {
		return scheme.warn
	}
	return scheme.fail
}
