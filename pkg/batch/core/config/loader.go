package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

const moduleName = "config"

// LoadConfig loads configuration in this order, later sources winning:
// built-in defaults, the embedded YAML (after ${VAR} expansion), and environment variables
// named after the yaml path (e.g. SURFIN_BATCH_CHUNK_SIZE, APP_OUTPUT_PATH).
// Variables from envFilePath (or ./.env when empty) are loaded first but never replace
// variables already set in the process environment.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err, false, false)
	}
	// Unmarshalling onto the defaults keeps every value the YAML does not mention.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Surfin.Batch.ChunkSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("surfin.batch.chunk_size must be positive, got %d", c.Surfin.Batch.ChunkSize))
	}
	if c.Surfin.Batch.MaxTaskletIterations <= 0 {
		result = multierror.Append(result, fmt.Errorf("surfin.batch.max_tasklet_iterations must be positive, got %d", c.Surfin.Batch.MaxTaskletIterations))
	}
	if c.Surfin.Batch.JobName == "" {
		result = multierror.Append(result, fmt.Errorf("surfin.batch.job_name is required"))
	}
	switch c.Surfin.Batch.JobRepository {
	case JobRepositoryInMemory, JobRepositorySQL:
	default:
		result = multierror.Append(result, fmt.Errorf("surfin.batch.job_repository must be %q or %q, got %q",
			JobRepositoryInMemory, JobRepositorySQL, c.Surfin.Batch.JobRepository))
	}
	if _, err := tx.ParseIsolationLevel(c.Surfin.Batch.IsolationLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("surfin.batch.isolation_level: %w", err))
	}
	if c.Surfin.Database.Type == "" {
		result = multierror.Append(result, fmt.Errorf("surfin.database.type is required"))
	}
	if c.App.Input.Path == "" {
		result = multierror.Append(result, fmt.Errorf("app.input.path is required"))
	}
	if c.App.Input.Fragment == "" {
		result = multierror.Append(result, fmt.Errorf("app.input.fragment is required"))
	}
	if c.App.Output.Path == "" {
		result = multierror.Append(result, fmt.Errorf("app.output.path is required"))
	}
	if c.App.Output.Delimiter == "" {
		result = multierror.Append(result, fmt.Errorf("app.output.delimiter is required"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
//
// Parameters:
//
//	val: The reflect.Value of the struct to populate.
//	prefix: The prefix for environment variable names (e.g., "SURFIN_BATCH_").
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, and bool types; other kinds are left untouched.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
