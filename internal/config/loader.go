package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError tags a startup failure with the stage that produced it.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// A variable X_SSM_PARAM=/prod/tipkoro/x is resolved into X unless X is
// already set.
const ssmParamSuffix = "_SSM_PARAM"

const (
	localEnv   = "local"
	ssmTimeout = 30 * time.Second
)

// loaderDeps isolates the process environment so tests can fake it.
type loaderDeps struct {
	lookupEnv  func(key string) (string, bool)
	setEnv     func(key, value string) error
	environ    func() []string
	loadDotenv func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv:  os.LookupEnv,
		setEnv:     os.Setenv,
		environ:    os.Environ,
		loadDotenv: func() error { return godotenv.Load() },
	}
}

// LoadConfig reads .env (if any), resolves SSM references outside local,
// then parses and validates the environment. provider may be nil locally.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Tip timestamps and intent expiry are compared in UTC everywhere.
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	_ = deps.loadDotenv()

	if env, _ := deps.lookupEnv("APP_ENV"); env != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return cfg, nil
}

// ResolveSecrets only performs the SSM step. The admin notifier uses it
// before reading its few variables with envconfig.
func ResolveSecrets(provider SecretProvider) error {
	if env, _ := os.LookupEnv("APP_ENV"); env == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// pendingSSMRefs maps parameter path to the variable it should fill, for
// every *_SSM_PARAM whose target is still unset.
func pendingSSMRefs(deps loaderDeps) map[string]string {
	refs := make(map[string]string)
	for _, kv := range deps.environ() {
		key, path, _ := strings.Cut(kv, "=")
		target, ok := strings.CutSuffix(key, ssmParamSuffix)
		if !ok || path == "" {
			continue
		}
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		refs[path] = target
	}
	return refs
}

func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	refs := pendingSSMRefs(deps)
	if len(refs) == 0 {
		return nil
	}
	paths := slices.Sorted(maps.Keys(refs))
	targetsOf := func(ps []string) string {
		names := make([]string, len(ps))
		for i, p := range ps {
			names[i] = refs[p]
		}
		return strings.Join(names, ", ")
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "a SecretProvider is required outside local to resolve " + targetsOf(paths),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmTimeout)
	defer cancel()
	values, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{Type: ErrSSMResolution, Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)), Err: err}
	}

	var missing []string
	for _, p := range paths {
		v, ok := values[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		if err := deps.setEnv(refs[p], v); err != nil {
			return &ConfigError{Type: ErrSSMResolution, Message: "failed to export " + refs[p], Err: err}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Type: ErrSSMResolution, Message: "SSM parameters not found for " + targetsOf(missing)}
	}
	return nil
}
