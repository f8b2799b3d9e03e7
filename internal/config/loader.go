package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
// Connectivity settings are checked separately by ValidateForRun so that
// offline commands (classify, decode) work without them.
func (c *Config) Validate() error {
	var errs []string

	// Transfer validation
	switch strings.ToLower(c.Transfer.Mode) {
	case "sftp", "dir":
	default:
		errs = append(errs, fmt.Sprintf("TRANSFER_MODE (%q) must be one of: sftp, dir", c.Transfer.Mode))
	}
	if c.Transfer.Port <= 0 || c.Transfer.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SFTP_PORT (%d) must be 1-65535", c.Transfer.Port))
	}
	if c.Transfer.ConnectTimeout <= 0 {
		errs = append(errs, "SFTP_TIMEOUT must be positive")
	}
	if c.Transfer.FetchTimeout <= 0 {
		errs = append(errs, "TRANSFER_TIMEOUT must be positive")
	}
	if len(c.Transfer.Suffixes) == 0 {
		errs = append(errs, "REMOTE_SUFFIXES must list at least one suffix")
	}

	// Path validation
	if c.Paths.Raw == "" {
		errs = append(errs, "LOCAL_RAW_PATH is required")
	}
	if c.Paths.Processed == "" {
		errs = append(errs, "LOCAL_PROCESSED_PATH is required")
	}
	if c.Paths.Raw != "" && c.Paths.Raw == c.Paths.Processed {
		errs = append(errs, "LOCAL_RAW_PATH and LOCAL_PROCESSED_PATH must differ")
	}

	// Pipeline validation
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, "PIPELINE_WORKERS must be positive")
	}
	if len(c.Pipeline.TextSuffixes) == 0 {
		errs = append(errs, "TEXT_SUFFIXES must list at least one suffix")
	}

	// Database validation
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.ConnectRetries <= 0 {
		errs = append(errs, "DB_CONNECT_RETRIES must be positive")
	}
	if c.Database.ConnectDelay < 0 {
		errs = append(errs, "DB_CONNECT_DELAY must be non-negative")
	}

	// Daemon validation
	if c.Daemon.StatusPort <= 0 || c.Daemon.StatusPort > 65535 {
		errs = append(errs, fmt.Sprintf("STATUS_PORT (%d) must be 1-65535", c.Daemon.StatusPort))
	}
	if c.Daemon.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ValidateForRun checks the settings a pipeline run needs beyond Validate:
// where to fetch from and where to persist to.
func (c *Config) ValidateForRun() error {
	var errs []string

	if strings.EqualFold(c.Transfer.Mode, "sftp") {
		if c.Transfer.Host == "" {
			errs = append(errs, "SFTP_HOST is required in sftp mode")
		}
		if c.Transfer.User == "" {
			errs = append(errs, "SFTP_USER is required in sftp mode")
		}
	}
	if c.Transfer.RemotePath == "" {
		errs = append(errs, "REMOTE_PATH is required")
	}
	if c.Database.ConnString() == "" {
		errs = append(errs, "DATABASE_URL or POSTGRES_HOST is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a safe string representation of the config for logging.
// Passwords and database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Transfer: {Mode: %q, Addr: %q, User: %q, Password: [MASKED], RemotePath: %q, Suffixes: %v}, ",
		c.Transfer.Mode, c.Transfer.Addr(), c.Transfer.User, c.Transfer.RemotePath, c.Transfer.Suffixes))
	b.WriteString(fmt.Sprintf("Paths: {Raw: %q, Processed: %q}, ", c.Paths.Raw, c.Paths.Processed))
	b.WriteString(fmt.Sprintf("Pipeline: {Workers: %d, TextSuffixes: %v, LayoutsFile: %q, Strict: %v}, ",
		c.Pipeline.Workers, c.Pipeline.TextSuffixes, c.Pipeline.LayoutsFile, c.Pipeline.StrictConversion))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, ConnectRetries: %d, Dedupe: %v}, ",
		c.Database.MaxConns, c.Database.ConnectRetries, c.Database.Dedupe))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
