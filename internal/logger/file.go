package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

// FileLogger logs runs to files under a log directory.
// It creates a timestamped run log, writes one answer log per finished task
// into tasks/, and keeps a latest.log symlink pointing at the newest run.
// It is thread-safe and implements both observer interfaces.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	tasksDir string
	logLevel string
	results  map[string]*models.AggregatedResults // task id -> latest execution snapshot
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing to .agentflow/logs/ at level info.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(filepath.Join(".agentflow", "logs"), "info")
}

// NewFileLoggerWithDir creates a FileLogger with a custom log directory.
func NewFileLoggerWithDir(logDir string) (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(logDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger with a custom log
// directory and log level.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	tasksDir := filepath.Join(logDir, "tasks")
	if err := os.MkdirAll(tasksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tasks directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	stamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", stamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		tasksDir: tasksDir,
		logLevel: normalizeLogLevel(logLevel),
		results:  make(map[string]*models.AggregatedResults),
	}

	fl.writeRunLog("=== agentflow Run Log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return fl, nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

func (fl *FileLogger) line(filter string, message string) {
	if !fl.shouldLog(filter) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] %s\n", timestamp(), message))
}

// LogEvent logs a controller event. Final events also write the task's
// answer log.
func (fl *FileLogger) LogEvent(ev models.Event) {
	switch ev.Kind {
	case models.EventPhaseEntered:
		fl.line("info", fmt.Sprintf("[%s] Phase %s", ev.TaskID, ev.Phase))
	case models.EventArtifact, models.EventPhaseCompleted:
		if r, ok := ev.Artifact.(*models.AggregatedResults); ok {
			fl.remember(ev.TaskID, r)
		}
		fl.LogDebug(fmt.Sprintf("[%s] %s", ev.TaskID, describeArtifact(ev)))
	case models.EventGroupCompleted:
		if r, ok := ev.Artifact.(*models.AggregatedResults); ok {
			fl.remember(ev.TaskID, r)
		}
		fl.line("debug", fmt.Sprintf("[%s] %s", ev.TaskID, ev.Message))
	case models.EventWarning:
		fl.LogWarn(fmt.Sprintf("[%s] %s", ev.TaskID, ev.Message))
	case models.EventSuspended:
		if s, ok := ev.Artifact.(*models.Suspension); ok {
			fl.line("info", fmt.Sprintf("[%s] Suspended for %s (token %s): %s", ev.TaskID, s.Kind, s.Token, s.Prompt()))
		}
	case models.EventFinal:
		a, ok := ev.Artifact.(*models.FinalAnswer)
		if !ok {
			return
		}
		fl.LogSummary(*a)
		if err := fl.LogAnswer(*a); err != nil {
			fl.LogError(err.Error())
		}
	}
}

func (fl *FileLogger) remember(taskID string, r *models.AggregatedResults) {
	fl.mu.Lock()
	fl.results[taskID] = r
	fl.mu.Unlock()
}

// LogGroupStart logs the start of an order group at INFO level.
func (fl *FileLogger) LogGroupStart(group models.Group) {
	fl.line("info", fmt.Sprintf("Starting %s: %s", group.Name(), plural(len(group.Nodes), "node")))
}

// LogNodeResult logs one node outcome. Failures are logged at WARN so they
// survive an info-level filter.
func (fl *FileLogger) LogNodeResult(result models.ExecutionResult) {
	msg := fmt.Sprintf("Node %s: %s (%s)", result.Node.Label(), result.Status(), formatDuration(result.Duration))
	if result.Failure != nil {
		fl.LogWarn(fmt.Sprintf("%s %s: %s", msg, result.Failure.Kind, firstLine(result.Failure.Message)))
		return
	}
	fl.line("debug", msg)
}

// LogGroupComplete logs the completion of an order group at INFO level.
func (fl *FileLogger) LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults) {
	fl.line("info", fmt.Sprintf("%s complete (%s)", group.Name(), formatDuration(duration)))
}

// LogSummary logs the final answer summary to the run log.
func (fl *FileLogger) LogSummary(answer models.FinalAnswer) {
	if !fl.shouldLog("info") {
		return
	}

	var sb strings.Builder
	sb.WriteString("\n=== Run Summary ===\n")
	fmt.Fprintf(&sb, "Task: %s\n", answer.TaskID)
	fmt.Fprintf(&sb, "Framing: %s\n", answer.Framing)
	fmt.Fprintf(&sb, "Verdict: %s\n", answer.JudgementLabel())
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(answer.Duration))
	if len(answer.Notes) > 0 {
		sb.WriteString("Notes:\n")
		for _, n := range answer.Notes {
			fmt.Fprintf(&sb, "  - %s\n", n)
		}
	}
	sb.WriteString("\n")
	fl.writeRunLog(sb.String())
}

// LogAnswer writes tasks/task-<id>.log with the answer text and every node
// result observed for the task.
func (fl *FileLogger) LogAnswer(answer models.FinalAnswer) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	results := fl.results[answer.TaskID]
	delete(fl.results, answer.TaskID)

	path := filepath.Join(fl.tasksDir, fmt.Sprintf("task-%s.log", answer.TaskID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create task log file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Task %s ===\n", answer.TaskID)
	fmt.Fprintf(&sb, "Framing: %s\n", answer.Framing)
	fmt.Fprintf(&sb, "Verdict: %s\n", answer.JudgementLabel())
	if answer.Verdict != nil && answer.Verdict.Explanation != "" {
		fmt.Fprintf(&sb, "Explanation: %s\n", answer.Verdict.Explanation)
	}
	fmt.Fprintf(&sb, "Duration: %.1fs\n\n", answer.Duration.Seconds())

	if results != nil && results.Len() > 0 {
		sb.WriteString("=== Node Results ===\n\n")
		sb.WriteString(results.Summary())
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Answer:\n%s\n\n", answer.Text)
	fmt.Fprintf(&sb, "Completed at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write task log: %w", err)
	}
	return nil
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
	}
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}
