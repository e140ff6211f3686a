package qa

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	maxQuestionLen = 220
	minQuestionLen = 15
	maxAnswerLen   = 600
	minAnswerLen   = 40
)

var (
	listMarkerRe   = regexp.MustCompile(`^[\s>*-]*((\d+[.)])|[-*])\s*`)
	quoteWrapperRe = regexp.MustCompile("^[\"“”'`]+|[\"“”'`]+$")
	answerSplitRe  = regexp.MustCompile(`(?i)A[:\-]`)
	questionPrefRe = regexp.MustCompile(`(?i)^Q[:\-]`)
	sentenceEndRe  = regexp.MustCompile(`[.!?]$`)
	blockSplitRe   = regexp.MustCompile(`\n{2,}`)
)

// bannedTerms drops generated pairs that drift into recruiting copy instead
// of technical content.
var bannedTerms = []string{
	"submit your resume",
	"about our company",
	"apply now",
}

// Normalize cleans raw generated text into at most expected well-formed
// question/answer pairs. minCount <= 0 defaults to min(3, expected). It
// first tries the JSON array between the first '[' and the last ']'; when
// that yields nothing structurally usable it falls back to splitting on
// blank-line boundaries with a Q/A marker heuristic. Fails when fewer than
// minCount pairs survive filtering.
func Normalize(raw string, expected, minCount int) ([]Pair, error) {
	if minCount <= 0 {
		minCount = 3
		if expected < minCount {
			minCount = expected
		}
	}

	candidates := parseStructured(raw)

	seen := make(map[string]struct{}, expected)
	results := make([]Pair, 0, expected)

	for _, cand := range candidates {
		question := tidyQuestion(cand.Question)
		answer := tidyAnswer(cand.Answer)
		if question == "" || answer == "" {
			continue
		}
		if containsBanned(question) || containsBanned(answer) {
			continue
		}

		key := question + "::" + answer
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, Pair{Question: question, Answer: answer})

		if len(results) == expected {
			break
		}
	}

	if len(results) < minCount {
		return nil, fmt.Errorf("qa: not enough valid pairs: expected=%d got=%d", expected, len(results))
	}
	return results, nil
}

func parseStructured(raw string) []Pair {
	if pairs := parseJSONPairs(raw); len(pairs) > 0 {
		return pairs
	}
	return parseBlockPairs(raw)
}

func parseJSONPairs(raw string) []Pair {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil
	}

	pairs := make([]Pair, 0, len(entries))
	for _, entry := range entries {
		if p, ok := decodeEntry(entry); ok {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// decodeEntry accepts {question,answer} objects (including terse key
// aliases), 2-element arrays, and plain strings with an inline A: marker.
func decodeEntry(entry json.RawMessage) (Pair, bool) {
	var obj map[string]any
	if err := json.Unmarshal(entry, &obj); err == nil {
		question := firstString(obj, "question", "q")
		if question == "" {
			return Pair{}, false
		}
		return Pair{Question: question, Answer: firstString(obj, "answer", "a")}, true
	}

	var arr []any
	if err := json.Unmarshal(entry, &arr); err == nil {
		if len(arr) < 2 {
			return Pair{}, false
		}
		q, qok := arr[0].(string)
		a, aok := arr[1].(string)
		if !qok || !aok {
			return Pair{}, false
		}
		return Pair{Question: q, Answer: a}, true
	}

	var s string
	if err := json.Unmarshal(entry, &s); err == nil {
		return splitInline(s), true
	}

	return Pair{}, false
}

func parseBlockPairs(raw string) []Pair {
	blocks := blockSplitRe.Split(raw, -1)
	pairs := make([]Pair, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		pairs = append(pairs, splitInline(block))
	}
	return pairs
}

// splitInline separates "Q: ...? A: ..." style free text into a pair.
func splitInline(value string) Pair {
	cleaned := strings.TrimSpace(value)
	loc := answerSplitRe.FindStringIndex(cleaned)
	if loc == nil {
		return Pair{Question: questionPrefRe.ReplaceAllString(cleaned, "")}
	}
	question := strings.TrimSpace(questionPrefRe.ReplaceAllString(cleaned[:loc[0]], ""))
	answer := strings.TrimSpace(cleaned[loc[1]:])
	return Pair{Question: question, Answer: answer}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok {
			return v
		}
	}
	return ""
}

func containsBanned(value string) bool {
	lower := strings.ToLower(value)
	for _, term := range bannedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func tidyQuestion(input string) string {
	value := strings.TrimSpace(input)
	value = quoteWrapperRe.ReplaceAllString(value, "")
	value = strings.TrimSpace(listMarkerRe.ReplaceAllString(value, ""))
	if value == "" {
		return ""
	}

	if !strings.HasSuffix(value, "?") {
		value += "?"
	}
	if runes := []rune(value); len(runes) > maxQuestionLen {
		value = strings.TrimSpace(string(runes[:maxQuestionLen-1])) + "?"
	}
	if len([]rune(value)) < minQuestionLen {
		return ""
	}
	return value
}

func tidyAnswer(input string) string {
	value := strings.TrimSpace(input)
	value = quoteWrapperRe.ReplaceAllString(value, "")
	if len(value) >= 2 && (strings.HasPrefix(value, "A:") || strings.HasPrefix(value, "a:")) {
		value = strings.TrimSpace(value[2:])
	}
	if value == "" {
		return ""
	}

	if !sentenceEndRe.MatchString(value) {
		value += "."
	}
	if runes := []rune(value); len(runes) > maxAnswerLen {
		value = strings.TrimSpace(string(runes[:maxAnswerLen-1])) + "."
	}
	if len([]rune(value)) < minAnswerLen {
		return ""
	}
	return value
}
