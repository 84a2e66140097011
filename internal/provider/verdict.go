package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/harrison/agentflow/internal/models"
)

// ErrMalformedVerdict is returned when evaluation output carries no usable judgement.
var ErrMalformedVerdict = errors.New("malformed verdict")

var (
	judgementLineRegex   = regexp.MustCompile(`(?im)^\s*\**(?:judge?ment|verdict)\**\s*:\s*\**\s*([A-Za-z_ -]+?)\s*\**\s*$`)
	explanationLineRegex = regexp.MustCompile(`(?i)^\s*\**explanation\**\s*:\s*`)
)

// Free-text fallback. A keyword preceded by a negation ("no errors") does
// not count, and the text must name exactly one judgement.
var (
	judgementKeywords = []struct {
		judgement models.Judgement
		pattern   *regexp.Regexp
	}{
		{models.JudgementHallucination, regexp.MustCompile(`(?i)\bhallucinat(?:ion|ions|ed)\b`)},
		{models.JudgementNotAligned, regexp.MustCompile(`(?i)\bnot[\s_-]+aligned\b`)},
		{models.JudgementNotVerified, regexp.MustCompile(`(?i)\bnot[\s_-]+verified\b`)},
		{models.JudgementError, regexp.MustCompile(`(?i)\berrors?\b`)},
		{models.JudgementPassed, regexp.MustCompile(`(?i)\bpassed\b`)},
	}
	negationRegex = regexp.MustCompile(`(?i)\b(?:no|not|without|never|zero|free of)[\s_-]+$`)
)

// ParseVerdict reads evaluation output in one of three shapes: a JSON object
// {"judgement", "explanation"}, a "Judgement: <tag>" line followed by the
// explanation, or free text naming exactly one judgement.
func ParseVerdict(output []byte) (models.EvaluationVerdict, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return models.EvaluationVerdict{}, fmt.Errorf("%w: empty output", ErrMalformedVerdict)
	}

	if trimmed[0] == '{' {
		var v models.EvaluationVerdict
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return models.EvaluationVerdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
		}
		j, err := models.ParseJudgement(string(v.Judgement))
		if err != nil {
			return models.EvaluationVerdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
		}
		v.Judgement = j
		return v, nil
	}

	text := string(trimmed)
	if loc := judgementLineRegex.FindStringSubmatchIndex(text); loc != nil {
		j, err := models.ParseJudgement(text[loc[2]:loc[3]])
		if err != nil {
			return models.EvaluationVerdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
		}
		return models.EvaluationVerdict{Judgement: j, Explanation: explanationAfter(text[loc[1]:])}, nil
	}

	found := keywordJudgements(text)
	switch len(found) {
	case 0:
		return models.EvaluationVerdict{}, fmt.Errorf("%w: no judgement found", ErrMalformedVerdict)
	case 1:
		return models.EvaluationVerdict{Judgement: found[0], Explanation: text}, nil
	}
	return models.EvaluationVerdict{}, fmt.Errorf("%w: ambiguous judgements %v", ErrMalformedVerdict, found)
}

// keywordJudgements lists the distinct judgements named in text without a
// preceding negation.
func keywordJudgements(text string) []models.Judgement {
	var found []models.Judgement
	for _, kw := range judgementKeywords {
		for _, loc := range kw.pattern.FindAllStringIndex(text, -1) {
			if negationRegex.MatchString(text[:loc[0]]) {
				continue
			}
			found = append(found, kw.judgement)
			break
		}
	}
	return found
}

// explanationAfter collects the non-empty lines following the judgement line.
func explanationAfter(rest string) string {
	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		line = explanationLineRegex.ReplaceAllString(line, "")
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}
