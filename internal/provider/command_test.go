package provider

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/models"
)

// writeScript creates an executable that answers per capability.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "provider.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

const scriptBody = `cat > /dev/null
case "$1" in
  classify) echo '{"tier":"critical","rationale":"hard"}' ;;
  plan) echo '{"nodes":[{"type":"research","order":1,"query":"x"}]}' ;;
  synthesize) echo 'plain text answer' ;;
  evaluate) echo "no tag here" ;;
  research) echo 'boom' >&2; exit 3 ;;
  slow) sleep 5 ;;
esac
`

func TestBuildCommandArgs(t *testing.T) {
	c := NewCommandProvider("agent", 0, "--model", "small")
	assert.Equal(t, []string{"--model", "small", "classify"}, c.BuildCommandArgs(CapClassify))
	assert.Equal(t, []string{"--model", "small"}, c.Args, "base args are not mutated")
}

func TestCommandProvider(t *testing.T) {
	c := NewCommandProvider(writeScript(t, scriptBody), 0)
	ctx := context.Background()

	cl, err := c.Classify(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, models.TierCritical, cl.Tier)

	plan, err := c.Plan(ctx, PlanRequest{Query: "the task"})
	require.NoError(t, err)
	assert.Equal(t, "the task", plan.Task)
	require.Len(t, plan.Nodes, 1)

	text, err := c.Synthesize(ctx, SynthesisRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", text)

	_, err = c.Evaluate(ctx, EvaluationRequest{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedVerdict)

	_, err = c.Research(ctx, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestCommandProvider_Timeout(t *testing.T) {
	c := NewCommandProvider(writeScript(t, scriptBody), 50*time.Millisecond)
	start := time.Now()
	_, err := c.Invoke(context.Background(), "slow", struct{}{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestParseTextOutput(t *testing.T) {
	assert.Equal(t, "hi", ParseTextOutput([]byte(`{"text":"hi"}`)))
	assert.Equal(t, "legacy", ParseTextOutput([]byte(`{"content":"legacy"}`)))
	assert.Equal(t, "raw", ParseTextOutput([]byte("raw\n")))
}
