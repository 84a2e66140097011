// Package logger provides logging implementations for agentflow runs.
//
// Loggers implement both the controller observer (LogEvent) and the scheduler
// observer (LogGroupStart, LogNodeResult, LogGroupComplete), so a single value
// can follow a run from Assessment to the final answer. Implementations are
// thread-safe: node results arrive from scheduler worker goroutines.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/harrison/agentflow/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	planned     map[string]int // task id -> node count of the accepted plan
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive); anything
// else means info.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		planned:     make(map[string]int),
	}
}

// SetColor forces color output on or off.
func (cl *ConsoleLogger) SetColor(enabled bool) {
	cl.mutex.Lock()
	cl.colorOutput = enabled
	cl.mutex.Unlock()
}

// isTerminal reports whether w is os.Stdout or os.Stderr and color is not
// disabled (color.NoColor honors NO_COLOR and non-TTY output).
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	lvl := level
	if cl.colorOutput {
		lvl = levelColor(level).Sprint(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), lvl, message)
}

// line writes an unlevelled progress line at the given filter level.
func (cl *ConsoleLogger) line(filter string, message string) {
	if cl.writer == nil || !cl.shouldLog(filter) {
		return
	}
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp(), message)
}

func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	cl.mutex.Lock()
	enabled := cl.colorOutput
	cl.mutex.Unlock()
	if !enabled {
		return s
	}
	return c.Sprint(s)
}

// LogEvent logs a controller event.
func (cl *ConsoleLogger) LogEvent(ev models.Event) {
	switch ev.Kind {
	case models.EventPhaseEntered:
		cl.line("info", fmt.Sprintf("%s %s", cl.paint(scheme.label, "Phase"), cl.paint(bold, string(ev.Phase))))
	case models.EventArtifact:
		cl.LogDebug(describeArtifact(ev))
	case models.EventPhaseCompleted:
		if p, ok := ev.Artifact.(*models.Plan); ok {
			cl.mutex.Lock()
			cl.planned[ev.TaskID] = len(p.Nodes)
			cl.mutex.Unlock()
		}
		if v, ok := ev.Artifact.(*models.EvaluationVerdict); ok {
			cl.line("info", fmt.Sprintf("Verdict: %s %s", cl.paint(judgementColor(v.Judgement), string(v.Judgement)), v.Explanation))
			return
		}
		cl.LogDebug(describeArtifact(ev))
	case models.EventGroupCompleted:
		cl.logProgress(ev)
	case models.EventWarning:
		cl.LogWarn(ev.Message)
	case models.EventSuspended:
		s, _ := ev.Artifact.(*models.Suspension)
		if s == nil {
			cl.LogInfo("Run suspended")
			return
		}
		cl.line("info", fmt.Sprintf("%s (%s): %s", cl.paint(scheme.warn, "Waiting for input"), s.Kind, s.Prompt()))
		cl.line("info", fmt.Sprintf("Resume with: agentflow resume %s", s.Token))
	case models.EventFinal:
		if a, ok := ev.Artifact.(*models.FinalAnswer); ok {
			cl.LogSummary(*a)
		}
		cl.mutex.Lock()
		delete(cl.planned, ev.TaskID)
		cl.mutex.Unlock()
	}
}

func (cl *ConsoleLogger) logProgress(ev models.Event) {
	results, ok := ev.Artifact.(*models.AggregatedResults)
	if !ok {
		return
	}
	cl.mutex.Lock()
	total := cl.planned[ev.TaskID]
	enableColor := cl.colorOutput
	cl.mutex.Unlock()
	if total == 0 {
		return
	}

	pb := NewProgressBar(total, 10, enableColor)
	pb.Update(results.Len())
	cl.line("info", fmt.Sprintf("Progress: %s nodes", pb.Render()))
}

// LogGroupStart logs the start of an order group at INFO level.
// Format: "[HH:MM:SS] Starting Group <n>: <count> nodes"
func (cl *ConsoleLogger) LogGroupStart(group models.Group) {
	cl.line("info", fmt.Sprintf("Starting %s: %s", cl.paint(bold, group.Name()), plural(len(group.Nodes), "node")))
}

// LogNodeResult logs one node outcome at DEBUG level.
// Format: "[HH:MM:SS] Node #<id> <type>@<order>: <status>"
func (cl *ConsoleLogger) LogNodeResult(result models.ExecutionResult) {
	status := result.Status()
	msg := fmt.Sprintf("Node %s: %s", result.Node.Label(), cl.paint(resultColor(result), status))
	if result.Failure != nil {
		msg += fmt.Sprintf(" (%s: %s)", result.Failure.Kind, firstLine(result.Failure.Message))
	}
	cl.line("debug", msg)
}

// LogGroupComplete logs the completion of an order group at INFO level.
// Format: "[HH:MM:SS] Group <n> complete (<duration>)"
func (cl *ConsoleLogger) LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults) {
	cl.line("info", fmt.Sprintf("%s %s (%s)", cl.paint(bold, group.Name()), cl.paint(scheme.success, "complete"), formatDuration(duration)))
}

// LogSummary logs the final answer summary at INFO level.
func (cl *ConsoleLogger) LogSummary(answer models.FinalAnswer) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	framing := string(answer.Framing)
	if answer.Framing != models.FramingAnswer {
		framing = cl.paint(scheme.warn, framing)
	}
	judgement := answer.JudgementLabel()
	if answer.Verdict != nil {
		judgement = cl.paint(judgementColor(answer.Verdict.Judgement), judgement)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", ts, cl.paint(bold, "=== Run Summary ==="))
	fmt.Fprintf(&sb, "[%s] Task: %s\n", ts, answer.TaskID)
	fmt.Fprintf(&sb, "[%s] Framing: %s\n", ts, framing)
	fmt.Fprintf(&sb, "[%s] Verdict: %s\n", ts, judgement)
	fmt.Fprintf(&sb, "[%s] Duration: %s\n", ts, formatDuration(answer.Duration))
	for _, n := range answer.Notes {
		fmt.Fprintf(&sb, "[%s]   - %s\n", ts, firstLine(n))
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	io.WriteString(cl.writer, sb.String())
}

// describeArtifact renders a one-line description of an event artifact.
func describeArtifact(ev models.Event) string {
	switch a := ev.Artifact.(type) {
	case *models.Classification:
		return fmt.Sprintf("Classified as %s: %s", a.Tier, a.Rationale)
	case *models.FeasibilityVerdict:
		if !a.Possible {
			return fmt.Sprintf("Not feasible: %s", a.Rationale)
		}
		if a.NeedsInformation() {
			return fmt.Sprintf("Feasible, missing information: %s", a.MissingInformation)
		}
		return "Feasible with current context"
	case *models.Plan:
		return fmt.Sprintf("Plan accepted: %s in %s", plural(len(a.Nodes), "node"), plural(len(a.Groups()), "group"))
	case *models.AggregatedResults:
		s := a.Summarize(0)
		return fmt.Sprintf("Execution finished: %d succeeded, %d failed", s.Succeeded, s.Failed)
	case *models.FinalAnswer:
		return fmt.Sprintf("Answer synthesized (%s)", a.Framing)
	}
	if ev.Message != "" {
		return fmt.Sprintf("%s %s: %s", ev.Phase, ev.Kind, ev.Message)
	}
	return fmt.Sprintf("%s %s", ev.Phase, ev.Kind)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, remainder/time.Second)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, remainder/time.Second)
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
