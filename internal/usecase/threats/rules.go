package threats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ArashiWander/argus/internal/entity"
)

// ruleFile is the on-disk format for seeded threat rules.
type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Name          string `yaml:"name"`
	RuleType      string `yaml:"rule_type"`
	EventType     string `yaml:"event_type"`
	Outcome       string `yaml:"outcome"`
	GroupBy       string `yaml:"group_by"`
	Threshold     int    `yaml:"threshold"`
	WindowMinutes int    `yaml:"window_minutes"`
	Severity      string `yaml:"severity"`
	Enabled       *bool  `yaml:"enabled"`
	Description   string `yaml:"description"`
}

// toRule converts a file spec to a rule. Enabled defaults to true when the
// file omits it.
func (r ruleSpec) toRule() *entity.ThreatRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &entity.ThreatRule{
		Name:          r.Name,
		RuleType:      r.RuleType,
		EventType:     r.EventType,
		Outcome:       r.Outcome,
		GroupBy:       r.GroupBy,
		Threshold:     r.Threshold,
		WindowMinutes: r.WindowMinutes,
		Severity:      r.Severity,
		Enabled:       enabled,
		Description:   r.Description,
	}
}

// LoadRulesDir reads every .yaml/.yml file in dir and registers the rules it
// contains. A broken file or an invalid rule is skipped with a warning; the
// rest of the directory still loads. Returns the number of rules registered.
func (s *Service) LoadRulesDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read rules dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable rules file", "file", path, "error", err)
			continue
		}

		var file ruleFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			s.logger.Warn("skipping malformed rules file", "file", path, "error", err)
			continue
		}

		for _, spec := range file.Rules {
			rule := spec.toRule()
			if _, err := s.CreateRule(rule); err != nil {
				s.logger.Warn("skipping invalid threat rule",
					"file", path,
					"rule", spec.Name,
					"error", err)
				continue
			}
			loaded++
		}
	}

	if loaded > 0 {
		s.logger.Info("threat rules loaded", "dir", dir, "count", loaded)
	}
	return loaded, nil
}
