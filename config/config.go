package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gidra39/tensorbot/validation"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrFileNotFound = errors.New("file not found")

// Config contains all application configuration settings.
type Config struct {
	TensorboardURL        string `json:"TENSORBOARD_URL" koanf:"TENSORBOARD_URL" validate:"required"`
	TelegramBotToken      string `json:"TELEGRAM_BOT_TOKEN" koanf:"TELEGRAM_BOT_TOKEN" validate:"required"`
	DefaultRun            string `json:"DEFAULT_RUN" koanf:"DEFAULT_RUN"`
	ReportIntervalSeconds int    `json:"REPORT_INTERVAL_SECONDS" koanf:"REPORT_INTERVAL_SECONDS" validate:"gt=0"`
	WatchMetrics          string `json:"WATCH_METRICS" koanf:"WATCH_METRICS"`
	RequestTimeoutSeconds int    `json:"REQUEST_TIMEOUT_SECONDS" koanf:"REQUEST_TIMEOUT_SECONDS" validate:"gt=0"`
	SlackWebhookURL       string `json:"SLACK_WEBHOOK_URL" koanf:"SLACK_WEBHOOK_URL"`
	MessageChannels       string `json:"MESSAGE_CHANNELS" koanf:"MESSAGE_CHANNELS"`
}

func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// WatchMetricList splits the WATCH_METRICS value into metric names.
func (c Config) WatchMetricList() []string {
	var metrics []string
	for _, name := range strings.Split(c.WatchMetrics, ",") {
		if name = strings.TrimSpace(name); name != "" {
			metrics = append(metrics, name)
		}
	}
	return metrics
}

func Load(configFile string) Config {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), nil); err != nil {
			log.Warn().Err(err).Str("file", configFile).Msg("unable to load config file")
		} else {
			log.Info().Str("file", configFile).Msg("loaded configuration from file")
		}
	}

	// Load from environment variables (higher priority)
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		log.Fatal().Err(err).Caller().Msg("koanf: error loading env")
	}

	config := Config{}

	if err := k.Unmarshal("", &config); err != nil {
		log.Fatal().Err(err).Caller().Msg("koanf: error unmarshalling config")
	}

	applyDefaults(&config)

	if err := validation.Validate.Struct(config); err != nil {
		log.Fatal().Err(err).Caller().Msg("koanf: error validating config")
	}
	return config
}

func applyDefaults(config *Config) {
	if config.ReportIntervalSeconds == 0 {
		config.ReportIntervalSeconds = 1800
	}
	if config.RequestTimeoutSeconds == 0 {
		config.RequestTimeoutSeconds = 10
	}
	if config.WatchMetrics == "" {
		config.WatchMetrics = "RMSE"
	}
	if config.MessageChannels == "" {
		config.MessageChannels = "TELEGRAM"
	}
}

func SearchUpwardsForFile(filename string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if wd == "/" {
			return "", errors.Wrap(ErrFileNotFound, filename)
		}

		file := filepath.Join(wd, filename)
		if _, err := os.Stat(file); err == nil {
			return file, nil
		}

		wd = filepath.Dir(wd)
	}
}

func LoadDotEnv(fileName string) {
	file, err := SearchUpwardsForFile(fileName)
	if err != nil {
		log.Warn().Err(err).Msgf("failed to find %s file", fileName)
		return
	}

	if err := godotenv.Load(file); err != nil {
		log.Fatal().Err(err).Msg("invalid .env file")
	}

	log.Info().Msgf("loaded environment variables from %s", file)
}

// LoadConfig is the main entry point for configuration loading
func LoadConfig(envFile string, configFiles ...string) Config {
	if envFile != "" {
		LoadDotEnv(envFile)
	}

	for _, configFile := range configFiles {
		foundFile, err := SearchUpwardsForFile(configFile)
		if err == nil {
			return Load(foundFile)
		}
	}

	// If no config file found, load from environment only
	return Load("")
}
