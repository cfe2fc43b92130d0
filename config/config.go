// Package config loads core.AgentConfig from YAML with three-tier
// precedence: environment variables over file values over defaults.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/localfirst/agentcore/core"
)

// fileConfig mirrors core.AgentConfig's yaml tags; kept distinct so a
// partially-specified YAML document only overrides the fields it sets.
type fileConfig struct {
	MaxConcurrentTasks *int     `yaml:"max_concurrent_tasks"`
	MaxRetries         *int     `yaml:"max_retries"`
	CPULimitPercent    *float64 `yaml:"cpu_limit_percent"`
	MemoryLimitMB      *float64 `yaml:"memory_limit_mb"`
	AutoApprove        *bool    `yaml:"auto_approve"`
}

// Load builds an AgentConfig starting from DefaultAgentConfig, layering
// a YAML file (if path is non-empty and exists) over the defaults, then
// layering AGENTCORE_* environment variables over the result. A missing
// file at path is not an error; a present-but-unparseable file is.
func Load(path string) (*core.AgentConfig, error) {
	cfg := core.DefaultAgentConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, core.NewFrameworkError("config.Load", "config", err)
			}
		} else {
			var fc fileConfig
			if err := yaml.Unmarshal(raw, &fc); err != nil {
				return nil, core.NewFrameworkError("config.Load", "config", err).WithMessage("invalid agent config YAML: " + path)
			}
			applyFile(cfg, fc)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyFile(cfg *core.AgentConfig, fc fileConfig) {
	if fc.MaxConcurrentTasks != nil {
		cfg.MaxConcurrentTasks = *fc.MaxConcurrentTasks
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.CPULimitPercent != nil {
		cfg.CPULimitPercent = *fc.CPULimitPercent
	}
	if fc.MemoryLimitMB != nil {
		cfg.MemoryLimitMB = *fc.MemoryLimitMB
	}
	if fc.AutoApprove != nil {
		cfg.AutoApprove = *fc.AutoApprove
	}
}

func applyEnv(cfg *core.AgentConfig) {
	if v, ok := envInt("AGENTCORE_MAX_CONCURRENT_TASKS"); ok {
		cfg.MaxConcurrentTasks = v
	}
	if v, ok := envInt("AGENTCORE_MAX_RETRIES"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := envFloat("AGENTCORE_CPU_LIMIT_PERCENT"); ok {
		cfg.CPULimitPercent = v
	}
	if v, ok := envFloat("AGENTCORE_MEMORY_LIMIT_MB"); ok {
		cfg.MemoryLimitMB = v
	}
	if v, ok := os.LookupEnv("AGENTCORE_AUTO_APPROVE"); ok {
		cfg.AutoApprove = v == "true" || v == "1"
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
