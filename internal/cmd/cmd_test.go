package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/config"
)

const arithmeticFixture = `classification: {tier: trivial, rationale: arithmetic}
feasibility: {possible: true, rationale: easy}
plans:
  - nodes:
      - type: direct-qa
        order: 1
        purpose: compute the sum
        query: "2+2"
answers:
  "2+2": "4"
evaluation: {judgement: passed, explanation: consistent}
synthesis: "The answer is 4."
`

var resumeTokenRe = regexp.MustCompile(`agentflow resume (\S+) --answer`)

// setupHome isolates state and config lookup in temp directories.
func setupHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv(config.HomeEnv, home)
	t.Chdir(t.TempDir())
	return home
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunWithFixture(t *testing.T) {
	home := setupHome(t)
	fixture := writeFile(t, "fixture.yaml", arithmeticFixture)
	output := filepath.Join(t.TempDir(), "out", "answer.md")

	stdout, stderr, err := execute(t, "run", "--fixture", fixture, "--output", output, "What is 2+2?")
	require.NoError(t, err, stderr)

	assert.Equal(t, "The answer is 4.\n", stdout)
	assert.Contains(t, stderr, "Phase assessment")
	assert.Contains(t, stderr, "=== Run Summary ===")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.\n", string(data))

	_, err = os.Lstat(filepath.Join(home, "logs", "latest.log"))
	assert.NoError(t, err, "run log should be written under the home log dir")

	stdout, _, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "What is 2+2?")
	assert.Contains(t, stdout, "answer")
	assert.Contains(t, stdout, "passed")
}

func TestRunSuspendAndResume(t *testing.T) {
	setupHome(t)
	fixture := writeFile(t, "fixture.yaml", arithmeticFixture+"ask_once: \"Which number system?\"\n")

	stdout, stderr, err := execute(t, "run", "--fixture", fixture, "What is 2+2?")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "Which number system?")

	m := resumeTokenRe.FindStringSubmatch(stdout)
	require.Len(t, m, 2, "resume hint missing from %q", stdout)
	token := m[1]

	stdout, _, err = execute(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, stdout, token)
	assert.Contains(t, stdout, "information")

	_, _, err = execute(t, "resume", token, "--fixture", fixture, "--confirm", "yes")
	require.Error(t, err, "a confirmation does not answer an information request")

	stdout, stderr, err = execute(t, "resume", token, "--fixture", fixture, "--answer", "decimal")
	require.NoError(t, err, stderr)
	assert.Equal(t, "The answer is 4.\n", stdout)

	_, _, err = execute(t, "resume", token, "--fixture", fixture, "--answer", "decimal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parked run")

	stdout, _, err = execute(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No parked runs.")
}

func TestRunRequiresProvider(t *testing.T) {
	setupHome(t)

	_, _, err := execute(t, "run", "What is 2+2?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider configured")
}

func TestRunRejectsBothProviders(t *testing.T) {
	setupHome(t)

	_, _, err := execute(t, "run", "--fixture", "f.yaml", "--command", "bin/provider", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot use both")
}

func TestResumeAnswerFlags(t *testing.T) {
	setupHome(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"neither", []string{"resume", "tok"}, "one of --answer or --confirm"},
		{"both", []string{"resume", "tok", "--answer", "x", "--confirm", "yes"}, "cannot use both"},
		{"bad confirm", []string{"resume", "tok", "--confirm", "maybe"}, "must be yes or no"},
		{"empty answer", []string{"resume", "tok", "--answer", " "}, "must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	valid := writeFile(t, "plan.yaml", `task: compare error handling
nodes:
  - type: research
    order: 1
    purpose: gather sources
    queries: [go errors, rust result type]
  - type: direct-qa
    order: 2
    purpose: summarize
    dependencies: [1]
    query: summarize the differences
`)
	var out bytes.Buffer
	require.NoError(t, validatePlan(valid, &out))
	assert.Contains(t, out.String(), "Parsed 2 nodes in 2 groups")
	assert.Contains(t, out.String(), "Group 1")
	assert.Contains(t, out.String(), "Plan is valid")

	invalid := writeFile(t, "bad.yaml", `nodes:
  - type: direct-qa
    order: 1
    dependencies: [3]
    query: what
`)
	out.Reset()
	err := validatePlan(invalid, &out)
	require.ErrorIs(t, err, errInvalidPlan)
	assert.Contains(t, out.String(), "Validation failed")
	assert.Contains(t, out.String(), "dangling-dependency")
}

func TestValidateWarnsOnResearchHeavyGroup(t *testing.T) {
	path := writeFile(t, "plan.md", `# Plan: survey error handling

## research (order 1)
- Purpose: go
- Query: go errors

## research (order 1)
- Purpose: rust
- Query: rust result type

## research (order 1)
- Purpose: zig
- Query: zig error unions
`)
	var out bytes.Buffer
	require.NoError(t, validatePlan(path, &out))
	assert.Contains(t, out.String(), "Group 1 is research heavy")
	assert.Contains(t, out.String(), "Plan is valid")
}

func TestHistoryEmpty(t *testing.T) {
	setupHome(t)

	stdout, _, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs recorded yet.")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdefgh", 4))
}
