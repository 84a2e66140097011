// Package display renders user-facing notices for the command line.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/validation"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Nodes      []string // Related plan nodes (optional)
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("⚠  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Nodes) > 0 {
		if len(w.Nodes) == 1 {
			b.WriteString("    Affected node:\n")
		} else {
			b.WriteString("    Affected nodes:\n")
		}
		for i, n := range w.Nodes {
			fmt.Fprintf(&b, "      %d. %s\n", i+1, n)
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	fmt.Fprint(out, color.YellowString("%s", b.String()))
}

// ForViolation builds the warning shown for a non-fatal validation finding.
func ForViolation(v validation.Violation, plan *models.Plan) Warning {
	w := Warning{Title: string(v.Rule), Message: v.Message}

	if v.Rule == validation.RuleResearchRateLimit {
		w.Title = fmt.Sprintf("Group %d is research heavy", v.Order)
		for _, n := range plan.Nodes {
			if n.Order == v.Order && n.Type == models.NodeResearch {
				w.Nodes = append(w.Nodes, n.Label())
			}
		}
		w.Suggestion = "Spread research nodes across order groups, or expect them to queue behind the research ceiling."
		return w
	}

	if n, ok := plan.Node(v.Node); ok {
		w.Nodes = []string{n.Label()}
	}
	return w
}
