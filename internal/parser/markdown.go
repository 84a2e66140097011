package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/agentflow/internal/models"
)

var (
	planHeadingRegex = regexp.MustCompile(`(?i)^plan:\s*(.+)$`)
	nodeHeadingRegex = regexp.MustCompile(`(?i)^([\w -]+?)\s*\(order\s+(-?\d+)\)$`)
	fieldRegex       = regexp.MustCompile(`^\*{0,2}([A-Za-z][A-Za-z -]*?)\*{0,2}:\*{0,2}\s*(.*)$`)
)

// MarkdownParser parses plans written as Markdown:
//
//	# Plan: Compare Go and Rust error handling
//
//	## research (order 1)
//	- Purpose: gather sources
//	- Query:
//	  - go errors
//	  - rust result type
//
//	## direct-qa (order 2)
//	- Purpose: summarize
//	- Depends on: 1
//	- Query: summarize the differences
//
// YAML frontmatter with a `task:` key may replace the level-1 heading.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

func (p *MarkdownParser) Parse(r io.Reader) (*models.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	plan := &models.Plan{}
	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		var meta struct {
			Task string `yaml:"task"`
		}
		if err := yaml.Unmarshal(frontmatter, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		plan.Task = meta.Task
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))
	if err := p.extractNodes(doc, content, plan); err != nil {
		return nil, err
	}
	normalizeTypes(plan)
	return plan, nil
}

func (p *MarkdownParser) extractNodes(doc ast.Node, source []byte, plan *models.Plan) error {
	var current *models.PlanNode
	flush := func() {
		if current != nil {
			plan.Nodes = append(plan.Nodes, *current)
			current = nil
		}
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			headingText := blockText(node, source)
			switch node.Level {
			case 1:
				if m := planHeadingRegex.FindStringSubmatch(headingText); m != nil && plan.Task == "" {
					plan.Task = strings.TrimSpace(m[1])
				}
			case 2:
				flush()
				m := nodeHeadingRegex.FindStringSubmatch(headingText)
				if m == nil {
					return ast.WalkSkipChildren, nil
				}
				order, err := strconv.Atoi(m[2])
				if err != nil {
					return ast.WalkStop, fmt.Errorf("heading %q: invalid order: %w", headingText, err)
				}
				current = &models.PlanNode{Type: models.NodeType(strings.TrimSpace(m[1])), Order: order}
			}
			return ast.WalkSkipChildren, nil

		case *ast.ListItem:
			if current == nil {
				return ast.WalkSkipChildren, nil
			}
			if err := applyField(current, node, source); err != nil {
				return ast.WalkStop, err
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			// Free text under a node heading becomes its purpose.
			if current != nil && current.Purpose == "" && node.Parent() == doc {
				current.Purpose = blockText(node, source)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return err
	}
	flush()
	return nil
}

// applyField reads one "- Key: value" list item. Nested list items extend the
// value one line each.
func applyField(node *models.PlanNode, item *ast.ListItem, source []byte) error {
	var head string
	var extra []string
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch child := c.(type) {
		case *ast.List:
			for li := child.FirstChild(); li != nil; li = li.NextSibling() {
				if li.FirstChild() != nil {
					extra = append(extra, blockText(li.FirstChild(), source))
				}
			}
		default:
			if head == "" {
				head = blockText(child, source)
			}
		}
	}

	m := fieldRegex.FindStringSubmatch(head)
	if m == nil {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(m[1]))
	value := strings.TrimSpace(m[2])
	values := extra
	if value != "" {
		values = append([]string{value}, extra...)
	}

	switch key {
	case "purpose":
		node.Purpose = strings.Join(values, " ")
	case "query", "queries":
		node.Query = strings.Join(values, "\n")
	case "depends on", "dependencies", "depends":
		deps, err := parseDependencies(strings.Join(values, ","))
		if err != nil {
			return fmt.Errorf("%s (order %d): %w", node.Type, node.Order, err)
		}
		node.Dependencies = deps
	}
	return nil
}

// parseDependencies accepts "1, 2", "order 1, order 2" or "none".
func parseDependencies(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") || s == "-" {
		return nil, nil
	}
	var deps []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(part), "order"))
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency %q", part)
		}
		deps = append(deps, n)
	}
	return deps, nil
}

// blockText returns the raw source lines of a block node.
func blockText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimSpace(buf.String())
}

// extractFrontmatter extracts YAML frontmatter from markdown content
// Returns the content without frontmatter and the frontmatter bytes
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	return content, nil
}
