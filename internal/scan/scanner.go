// Package scan detects secrets in build inputs before they are baked
// into image layers. A leaked credential inside an image layer survives
// every later deletion, so the scan runs before the copy phases.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// maxFileSize caps how much of a single file is scanned. Anything
// larger is almost certainly a data file, not a source or config file.
const maxFileSize = 1 << 20

// Scanner wraps a gitleaks detector for filesystem scanning.
type Scanner struct {
	detector *detect.Detector
}

// Finding is one detected secret.
type Finding struct {
	RuleID      string `json:"rule_id" yaml:"rule_id"`
	Description string `json:"description" yaml:"description"`
	File        string `json:"file" yaml:"file"`
	StartLine   int    `json:"start_line" yaml:"start_line"`
	// Secret is truncated to its first characters; the full value must
	// never appear in scan output.
	Secret string `json:"secret" yaml:"secret"`
}

// Result is a completed scan.
type Result struct {
	Findings     []Finding     `json:"findings" yaml:"findings"`
	FilesScanned int           `json:"files_scanned" yaml:"files_scanned"`
	Duration     time.Duration `json:"duration_ms" yaml:"duration_ms"`
}

// NewScanner creates a scanner with the gitleaks default ruleset.
func NewScanner() (*Scanner, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read gitleaks config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gitleaks config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate gitleaks config: %w", err)
	}

	return &Scanner{detector: detect.NewDetector(cfg)}, nil
}

// ScanPaths scans files and directory trees. Directories are walked
// recursively; unreadable or oversized files are skipped, not fatal.
func (s *Scanner) ScanPaths(ctx context.Context, paths ...string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scan target %s: %w", p, err)
		}

		if !info.IsDir() {
			if err := s.scanFile(ctx, p, p, result); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			return s.scanFile(ctx, path, p, result)
		})
		if err != nil {
			return nil, fmt.Errorf("scan target %s: %w", p, err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (s *Scanner) scanFile(ctx context.Context, path, root string, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() > maxFileSize {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	rel := path
	if r, err := filepath.Rel(filepath.Dir(root), path); err == nil {
		rel = r
	}

	result.FilesScanned++

	findings := s.detector.Detect(detect.Fragment{
		Raw:      string(data),
		FilePath: rel,
	})

	for _, f := range findings {
		result.Findings = append(result.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			File:        rel,
			StartLine:   f.StartLine + 1,
			Secret:      truncateSecret(f.Secret),
		})
	}

	return nil
}

// truncateSecret keeps just enough of the secret to locate it.
func truncateSecret(secret string) string {
	if len(secret) <= 6 {
		return "******"
	}
	return secret[:6] + "..."
}
