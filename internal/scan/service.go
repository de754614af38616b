package scan

import (
	"fmt"

	"llmshield/internal/models"
)

// Service runs all configured scanners over a prompt.
type Service struct {
	scanners []Scanner
}

// NewService builds the scanner pipeline from configuration.
func NewService(cfg models.ScanConfig) (*Service, error) {
	s := &Service{}

	if len(cfg.BannedSubstrings) > 0 {
		s.scanners = append(s.scanners, NewBanSubstrings(cfg.BannedSubstrings, cfg.CaseSensitive))
	}
	if len(cfg.BannedPatterns) > 0 {
		patterns, err := NewBanPatterns(cfg.BannedPatterns)
		if err != nil {
			return nil, fmt.Errorf("failed to build pattern scanner: %w", err)
		}
		s.scanners = append(s.scanners, patterns)
	}
	return s, nil
}

// Scan runs every scanner and returns whether the prompt is clean along with
// all findings. Scanners always all run; a hit in one does not short-circuit
// the rest, so callers see the complete picture.
func (s *Service) Scan(prompt string) (bool, []models.ScanFinding) {
	var findings []models.ScanFinding
	for _, scanner := range s.scanners {
		findings = append(findings, scanner.Scan(prompt)...)
	}
	return len(findings) == 0, findings
}

// Scanners returns the names of the active scanners.
func (s *Service) Scanners() []string {
	names := make([]string, 0, len(s.scanners))
	for _, scanner := range s.scanners {
		names = append(names, scanner.Name())
	}
	return names
}
