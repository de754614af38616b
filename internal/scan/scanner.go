// Package scan checks prompts against configured deny rules before they are
// forwarded to a model. Scanners are pure string matchers; the service runs
// every scanner and aggregates findings.
package scan

import (
	"fmt"
	"regexp"
	"strings"

	"llmshield/internal/models"
)

// Scanner inspects a prompt and reports findings. Implementations must be
// safe for concurrent use.
type Scanner interface {
	Name() string
	Scan(prompt string) []models.ScanFinding
}

// BanSubstrings flags prompts containing any of the configured substrings.
type BanSubstrings struct {
	substrings    []string
	caseSensitive bool
}

func NewBanSubstrings(substrings []string, caseSensitive bool) *BanSubstrings {
	s := &BanSubstrings{caseSensitive: caseSensitive}
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		if !caseSensitive {
			sub = strings.ToLower(sub)
		}
		s.substrings = append(s.substrings, sub)
	}
	return s
}

func (s *BanSubstrings) Name() string { return "ban_substrings" }

func (s *BanSubstrings) Scan(prompt string) []models.ScanFinding {
	haystack := prompt
	if !s.caseSensitive {
		haystack = strings.ToLower(prompt)
	}

	var findings []models.ScanFinding
	for _, sub := range s.substrings {
		if strings.Contains(haystack, sub) {
			findings = append(findings, models.ScanFinding{
				Scanner: s.Name(),
				Detail:  fmt.Sprintf("prompt contains banned substring %q", sub),
			})
		}
	}
	return findings
}

// BanPatterns flags prompts matching any of the configured regular
// expressions. Patterns are compiled once at construction; a malformed
// pattern is a configuration error.
type BanPatterns struct {
	patterns []*regexp.Regexp
}

func NewBanPatterns(exprs []string) (*BanPatterns, error) {
	s := &BanPatterns{}
	for _, expr := range exprs {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func (s *BanPatterns) Name() string { return "ban_patterns" }

func (s *BanPatterns) Scan(prompt string) []models.ScanFinding {
	var findings []models.ScanFinding
	for _, re := range s.patterns {
		if re.MatchString(prompt) {
			findings = append(findings, models.ScanFinding{
				Scanner: s.Name(),
				Detail:  fmt.Sprintf("prompt matches banned pattern %q", re.String()),
			})
		}
	}
	return findings
}
