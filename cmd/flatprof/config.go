package main

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/mrproliu/flatprof/rewrite"
)

// configEnv names the config file when flags cannot be parsed, as under -toolexec.
const configEnv = "FLATPROF_CONFIG"

type Config struct {
	Limit          time.Duration `yaml:"limit" env:"FLATPROF_LIMIT" env-description:"limit used by directives without one"`
	IgnoreBuiltins bool          `yaml:"ignore_builtins" env:"FLATPROF_IGNORE_BUILTINS" env-description:"do not time builtin calls unless a directive says so"`
	Blacklist      []string      `yaml:"blacklist" env:"FLATPROF_BLACKLIST" env-description:"callee patterns never timed"`
	Whitelist      []string      `yaml:"whitelist" env:"FLATPROF_WHITELIST" env-description:"callee patterns timed exclusively"`
	LogLevel       string        `yaml:"log_level" env:"FLATPROF_LOG_LEVEL" env-description:"zerolog level of the rewriter"`
	Details        string        `yaml:"details" env:"FLATPROF_DETAILS" env-description:"file receiving the rewritten functions as YAML"`
}

func defaultConfig() Config {
	return Config{
		IgnoreBuiltins: true,
		LogLevel:       "info",
	}
}

// loadConfig reads path, if any, then applies environment overrides.
// Fields absent from both keep their defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv(configEnv)
	}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the directive options applied to every function.
func (c Config) Defaults() rewrite.Directive {
	d := rewrite.DefaultDirective()
	if c.Limit > 0 {
		d.Limit = c.Limit
		d.HasLimit = true
	}
	d.IgnoreBuiltins = c.IgnoreBuiltins
	d.Blacklist = c.Blacklist
	d.Whitelist = c.Whitelist
	return d
}
