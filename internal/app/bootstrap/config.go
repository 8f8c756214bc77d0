package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration. Values are resolved in
// priority order: defaults, then the YAML file, then environment variables.
type Config struct {
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	DatabaseURL        string        `yaml:"database_url" env:"DATABASE_URL"`
	DatabaseReplicaURL string        `yaml:"database_replica_url" env:"DATABASE_REPLICA_URL"`
	MaxDBConns         int32         `yaml:"db_max_conns" env:"DB_MAX_CONNS"`
	RedisURL           string        `yaml:"redis_url" env:"REDIS_URL"`
	RedisTimeout       time.Duration `yaml:"redis_timeout" env:"REDIS_TIMEOUT"`

	SubjectPrefix       string        `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
	HydraAdminURL       string        `yaml:"hydra_admin_url" env:"HYDRA_ADMIN_URL"`
	HydraRequestTimeout time.Duration `yaml:"hydra_request_timeout" env:"HYDRA_REQUEST_TIMEOUT"`

	SupervisorClientID         string        `yaml:"supervisor_client_id" env:"SUPERVISOR_CLIENT_ID"`
	SupervisorClientSecret     string        `yaml:"supervisor_client_secret" env:"SUPERVISOR_CLIENT_SECRET"`
	APITokenURL                string        `yaml:"api_token_url" env:"API_AUTH2_TOKEN_URL"`
	APIResourceServer          string        `yaml:"api_resource_server" env:"API_RESOURCE_SERVER"`
	APIReserveUserIDPath       string        `yaml:"api_reserve_user_id_path" env:"API_RESERVE_USER_ID_PATH"`
	APIUserIDFieldName         string        `yaml:"api_user_id_field_name" env:"API_USER_ID_FIELD_NAME"`
	APIDeactivationRequestType string        `yaml:"api_deactivation_request_type" env:"API_DEACTIVATION_REQUEST_TYPE"`
	APITimeout                 time.Duration `yaml:"api_timeout" env:"API_TIMEOUT"`

	LoginVerifiedDevicesMaxCount    int           `yaml:"login_verified_devices_max_count" env:"LOGIN_VERIFIED_DEVICES_MAX_COUNT"`
	LoginHistoryExpirationDays      int           `yaml:"login_history_expiration_days" env:"LOGIN_HISTORY_EXPIRATION_DAYS"`
	LoginVerificationCodeExpiration time.Duration `yaml:"login_verification_code_expiration" env:"LOGIN_VERIFICATION_CODE_EXPIRATION"`
	MaxLoginsPerMonth               int64         `yaml:"max_logins_per_month" env:"MAX_LOGINS_PER_MONTH"`
	SecretCodeMaxAttempts           int64         `yaml:"secret_code_max_attempts" env:"SECRET_CODE_MAX_ATTEMPTS"`

	SignupRequestExpiration             time.Duration `yaml:"signup_request_expiration" env:"SIGNUP_REQUEST_EXPIRATION"`
	ChangeEmailRequestExpiration        time.Duration `yaml:"change_email_request_expiration" env:"CHANGE_EMAIL_REQUEST_EXPIRATION"`
	ChangeRecoveryCodeRequestExpiration time.Duration `yaml:"change_recovery_code_request_expiration" env:"CHANGE_RECOVERY_CODE_REQUEST_EXPIRATION"`
	SignupIPMaxRegistrations            int64         `yaml:"signup_ip_max_registrations" env:"SIGNUP_IP_MAX_REGISTRATIONS"`
	SignupIPBlockPeriod                 time.Duration `yaml:"signup_ip_block_period" env:"SIGNUP_IP_BLOCK_PERIOD"`
	PasswordMinLength                   int           `yaml:"password_min_length" env:"PASSWORD_MIN_LENGTH"`
	PasswordMaxLength                   int           `yaml:"password_max_length" env:"PASSWORD_MAX_LENGTH"`

	ActivationBurstCount   int  `yaml:"activation_burst_count" env:"ACTIVATION_BURST_COUNT"`
	DeactivationBurstCount int  `yaml:"deactivation_burst_count" env:"DEACTIVATION_BURST_COUNT"`
	UserUpdateBurstCount   int  `yaml:"user_update_burst_count" env:"USER_UPDATE_BURST_COUNT"`
	SendUserUpdateSignal   bool `yaml:"send_user_update_signal" env:"SEND_USER_UPDATE_SIGNAL"`

	KafkaBrokers         []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicUserUpdate string   `yaml:"kafka_topic_user_update" env:"KAFKA_TOPIC_USER_UPDATE"`

	FlushPeriod    time.Duration `yaml:"flush_period" env:"FLUSH_PERIOD"`
	FlushProcesses int           `yaml:"flush_processes" env:"FLUSH_PROCESSES"`
}

func defaultConfig() Config {
	return Config{
		HTTPPort:                            8080,
		LogLevel:                            "warn",
		LogFormat:                           "json",
		MaxDBConns:                          20,
		RedisURL:                            "redis://localhost:6379/0",
		RedisTimeout:                        5 * time.Second,
		HydraAdminURL:                       "http://hydra:4445/",
		HydraRequestTimeout:                 5 * time.Second,
		SupervisorClientID:                  "users-supervisor",
		SupervisorClientSecret:              "users-supervisor",
		APITokenURL:                         "https://hydra/oauth2/token",
		APIResourceServer:                   "https://resource-server",
		APIReserveUserIDPath:                "/users/.user-reserve",
		APIUserIDFieldName:                  "userId",
		APIDeactivationRequestType:          "UserDeactivationRequest",
		APITimeout:                          5 * time.Second,
		LoginVerifiedDevicesMaxCount:        10,
		LoginHistoryExpirationDays:          92,
		LoginVerificationCodeExpiration:     time.Hour,
		MaxLoginsPerMonth:                   10000,
		SecretCodeMaxAttempts:               10,
		SignupRequestExpiration:             24 * time.Hour,
		ChangeEmailRequestExpiration:        24 * time.Hour,
		ChangeRecoveryCodeRequestExpiration: time.Hour,
		SignupIPMaxRegistrations:            30,
		SignupIPBlockPeriod:                 24 * time.Hour,
		PasswordMinLength:                   12,
		PasswordMaxLength:                   64,
		ActivationBurstCount:                100,
		DeactivationBurstCount:              100,
		UserUpdateBurstCount:                100,
		KafkaTopicUserUpdate:                "swpt-login.user-update",
		FlushPeriod:                         10 * time.Second,
		FlushProcesses:                      1,
	}
}

// LoadConfig resolves the configuration. A missing file at path is not an
// error; an empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DatabaseReplicaURL == "" {
		cfg.DatabaseReplicaURL = cfg.DatabaseURL
	}
	brokers := cfg.KafkaBrokers[:0]
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.KafkaBrokers = brokers
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.HTTPPort, validation.Required, validation.Max(65535)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.MaxDBConns, validation.Min(1)),
		validation.Field(&c.RedisURL, validation.Required),
		validation.Field(&c.HydraAdminURL, validation.Required),
		validation.Field(&c.APITokenURL, validation.Required),
		validation.Field(&c.APIResourceServer, validation.Required),
		validation.Field(&c.APIReserveUserIDPath, validation.Required),
		validation.Field(&c.LoginVerifiedDevicesMaxCount, validation.Min(1)),
		validation.Field(&c.LoginHistoryExpirationDays, validation.Min(1)),
		validation.Field(&c.LoginVerificationCodeExpiration, validation.Min(time.Second)),
		validation.Field(&c.MaxLoginsPerMonth, validation.Min(1)),
		validation.Field(&c.SecretCodeMaxAttempts, validation.Min(1)),
		validation.Field(&c.SignupRequestExpiration, validation.Min(time.Second)),
		validation.Field(&c.ChangeEmailRequestExpiration, validation.Min(time.Second)),
		validation.Field(&c.ChangeRecoveryCodeRequestExpiration, validation.Min(time.Second)),
		validation.Field(&c.SignupIPMaxRegistrations, validation.Min(1)),
		validation.Field(&c.PasswordMinLength, validation.Min(1)),
		validation.Field(&c.PasswordMaxLength, validation.Min(c.PasswordMinLength)),
		validation.Field(&c.ActivationBurstCount, validation.Min(1)),
		validation.Field(&c.DeactivationBurstCount, validation.Min(1)),
		validation.Field(&c.UserUpdateBurstCount, validation.Min(1)),
		validation.Field(&c.FlushPeriod, validation.Min(time.Millisecond)),
		validation.Field(&c.FlushProcesses, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoginHistoryExpiration is how long an unused device history is kept.
func (c Config) LoginHistoryExpiration() time.Duration {
	return time.Duration(c.LoginHistoryExpirationDays) * 24 * time.Hour
}
