// Package config builds the service configuration from the environment and an
// optional config file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"google.golang.org/api/option"
)

// Record store backends.
const (
	StoreFirestore = "firestore"
	StoreBigQuery  = "bigquery"
	StoreMemory    = "memory"
)

// OCR backends.
const (
	OCRVision = "vision"
	OCRGemini = "gemini"
)

// Where the service-account credentials came from.
const (
	CredentialsFromEnv  = "env"
	CredentialsFromFile = "file"
	CredentialsADC      = "adc"
)

// DefaultAllowedOrigins are the browser origins of the site.
var DefaultAllowedOrigins = []string{
	"https://www.familiaschurch.com.br",
	"https://familias-church.vercel.app",
	"http://localhost:5173",
}

// Config is built once at startup and passed explicitly to every component.
type Config struct {
	Port int

	CredentialsJSON   []byte
	CredentialsSource string
	ProjectID         string

	RecordStore       string
	RecordsCollection string
	BigQueryDataset   string

	OCRBackend   string
	GeminiModel  string
	GeminiAPIKey string

	BeneficiaryID  string
	FetchTimeout   time.Duration
	ExtractTimeout time.Duration
	StoreTimeout   time.Duration
	ExcerptLimit   int

	AllowedOrigins []string

	JobWorkers int
	JobBuffer  int

	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("firebase_credentials", "")
	v.SetDefault("credentials_file", "chave-firebase.json")
	v.SetDefault("google_cloud_project", "")
	v.SetDefault("record_store", StoreFirestore)
	v.SetDefault("records_collection", "registros_financeiros_validados")
	v.SetDefault("bigquery_dataset", "finance")
	v.SetDefault("ocr_backend", OCRVision)
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("beneficiary_id", "33206513000102")
	v.SetDefault("fetch_timeout", "15s")
	v.SetDefault("extract_timeout", "40s")
	v.SetDefault("store_timeout", "10s")
	v.SetDefault("excerpt_limit", 1000)
	v.SetDefault("allowed_origins", strings.Join(DefaultAllowedOrigins, ","))
	v.SetDefault("job_workers", 5)
	v.SetDefault("job_buffer", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Load reads the configuration. Environment variables take precedence over
// the file named by CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:              v.GetInt("port"),
		RecordStore:       strings.ToLower(v.GetString("record_store")),
		RecordsCollection: v.GetString("records_collection"),
		BigQueryDataset:   v.GetString("bigquery_dataset"),
		OCRBackend:        strings.ToLower(v.GetString("ocr_backend")),
		GeminiModel:       v.GetString("gemini_model"),
		GeminiAPIKey:      v.GetString("gemini_api_key"),
		BeneficiaryID:     strings.TrimSpace(v.GetString("beneficiary_id")),
		FetchTimeout:      v.GetDuration("fetch_timeout"),
		ExtractTimeout:    v.GetDuration("extract_timeout"),
		StoreTimeout:      v.GetDuration("store_timeout"),
		ExcerptLimit:      v.GetInt("excerpt_limit"),
		AllowedOrigins:    splitList(v.Get("allowed_origins")),
		JobWorkers:        v.GetInt("job_workers"),
		JobBuffer:         v.GetInt("job_buffer"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
	}

	if err := cfg.loadCredentials(v.GetString("firebase_credentials"), v.GetString("credentials_file")); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg.ProjectID = v.GetString("google_cloud_project")
	if cfg.ProjectID == "" {
		cfg.ProjectID = projectFromCredentials(cfg.CredentialsJSON)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// loadCredentials prefers inline JSON, then the key file. A missing key file
// leaves the clients on Application Default Credentials.
func (c *Config) loadCredentials(inline, file string) error {
	if strings.TrimSpace(inline) != "" {
		if !json.Valid([]byte(inline)) {
			return errors.New("FIREBASE_CREDENTIALS is not valid JSON")
		}
		c.CredentialsJSON = []byte(inline)
		c.CredentialsSource = CredentialsFromEnv
		return nil
	}

	if file != "" {
		data, err := os.ReadFile(file)
		switch {
		case err == nil:
			if !json.Valid(data) {
				return fmt.Errorf("credentials file %s is not valid JSON", file)
			}
			c.CredentialsJSON = data
			c.CredentialsSource = CredentialsFromFile
			return nil
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("reading credentials file: %w", err)
		}
	}

	c.CredentialsSource = CredentialsADC
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.BeneficiaryID == "" || strings.Trim(c.BeneficiaryID, "0123456789") != "" {
		result = multierror.Append(result, fmt.Errorf("BENEFICIARY_ID %q must be a non-empty digit sequence", c.BeneficiaryID))
	}
	if c.FetchTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("FETCH_TIMEOUT must be positive"))
	}
	if c.ExtractTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("EXTRACT_TIMEOUT must be positive"))
	}
	if c.StoreTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("STORE_TIMEOUT must be positive"))
	}
	if c.ExcerptLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("EXCERPT_LIMIT must be positive"))
	}
	if c.JobWorkers <= 0 {
		result = multierror.Append(result, fmt.Errorf("JOB_WORKERS must be positive"))
	}
	if c.JobBuffer < 0 {
		result = multierror.Append(result, fmt.Errorf("JOB_BUFFER must not be negative"))
	}

	switch c.RecordStore {
	case StoreFirestore, StoreBigQuery:
		if c.ProjectID == "" {
			result = multierror.Append(result, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for record store %q", c.RecordStore))
		}
	case StoreMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown RECORD_STORE %q", c.RecordStore))
	}

	switch c.OCRBackend {
	case OCRVision, OCRGemini:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown OCR_BACKEND %q", c.OCRBackend))
	}

	return result.ErrorOrNil()
}

// writeSlack covers routing, decoding and encoding around the pipeline stages.
const writeSlack = 5 * time.Second

// WriteTimeout is the HTTP write deadline for a synchronous validation. It
// outlasts the fetch, extract and store bounds together so the response is
// always written.
func (c *Config) WriteTimeout() time.Duration {
	return c.FetchTimeout + c.ExtractTimeout + c.StoreTimeout + writeSlack
}

// ClientOptions returns the options shared by every Google Cloud client.
func (c *Config) ClientOptions() []option.ClientOption {
	if len(c.CredentialsJSON) == 0 {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON(c.CredentialsJSON)}
}

func projectFromCredentials(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return ""
	}
	return key.ProjectID
}

// splitList accepts a comma separated string or a list from a config file.
func splitList(raw interface{}) []string {
	var items []string
	switch val := raw.(type) {
	case string:
		items = strings.Split(val, ",")
	case []string:
		items = val
	case []interface{}:
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
