package policy

import (
	"errors"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy constrains generated customer replies.
type Policy struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Version          int      `yaml:"version"`
	ForbiddenPhrases []string `yaml:"forbidden_phrases"`
	MaxReplyLength   int      `yaml:"max_reply_length_chars"`
	Redactions       struct {
		Patterns    []string `yaml:"patterns"`
		Replacement string   `yaml:"replacement"`
	} `yaml:"redactions"`

	compiled []*regexp.Regexp
}

type Result struct {
	Allowed           bool
	ViolationLevel    string
	Reason            string
	RiskFlags         []string
	RedactionsApplied []string
}

func Load(path string) (Policy, error) {
	var p Policy
	if path == "" {
		return p, errors.New("missing policy path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, err
	}
	if err := p.Compile(); err != nil {
		return p, err
	}
	return p, nil
}

// Compile validates the redaction patterns. Evaluate compiles lazily when
// Compile was never called.
func (p *Policy) Compile() error {
	p.compiled = p.compiled[:0]
	for _, pattern := range p.Redactions.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return err
		}
		p.compiled = append(p.compiled, re)
	}
	return nil
}

func (p Policy) patterns() []*regexp.Regexp {
	if len(p.compiled) == len(p.Redactions.Patterns) {
		return p.compiled
	}
	var out []*regexp.Regexp
	for _, pattern := range p.Redactions.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// Evaluate checks a reply and returns it with redactions applied. A critical
// violation means the reply must not be sent as is.
func Evaluate(reply string, policy Policy) (string, Result) {
	res := Result{Allowed: true}
	text := reply

	lower := strings.ToLower(text)
	for _, phrase := range policy.ForbiddenPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			res.Allowed = false
			res.ViolationLevel = "critical"
			res.Reason = "reply contains forbidden phrase: " + phrase
			res.RiskFlags = append(res.RiskFlags, "forbidden_phrase")
			return text, res
		}
	}

	for _, re := range policy.patterns() {
		if re.MatchString(text) {
			res.RiskFlags = append(res.RiskFlags, "contains_sensitive_data")
			res.RedactionsApplied = append(res.RedactionsApplied, re.String())
			replacement := policy.Redactions.Replacement
			if replacement == "" {
				replacement = "[REDACTED]"
			}
			text = re.ReplaceAllString(text, replacement)
		}
	}

	if policy.MaxReplyLength > 0 && len([]rune(text)) > policy.MaxReplyLength {
		res.Allowed = false
		res.ViolationLevel = "critical"
		res.Reason = "reply exceeds max length"
		res.RiskFlags = append(res.RiskFlags, "too_long")
		return text, res
	}

	if len(res.RiskFlags) > 0 {
		res.ViolationLevel = "warning"
	}
	return text, res
}
