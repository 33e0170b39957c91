package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taxEvents/internal/models/domain"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigFilePath = "CONFIG_FILEPATH"
	envConfigFileName = "CONFIG_FILENAME"
)

// MustLoad читает конфиг и паникует при ошибке.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load читает yaml из CONFIG_FILEPATH/CONFIG_FILENAME, а без файла только переменные окружения.
func Load() (*Config, error) {
	op := "config.Load()"

	var cfg Config
	configPath := filepath.Join(os.Getenv(envConfigFilePath), os.Getenv(envConfigFileName))

	if os.Getenv(envConfigFileName) != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%s: config file %q: %w", op, configPath, err)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
		}
		cfg.configPath = configPath
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: cannot read env: %w", op, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBConfig.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown db driver %q", c.DBConfig.Driver)
	}
	if c.LinkHealthConfig.MaxHops <= 0 {
		return errors.New("linkHealth.maxHops must be positive")
	}
	if c.LinkHealthConfig.MinPublishableScore < 0 || c.LinkHealthConfig.MinPublishableScore > 100 {
		return errors.New("linkHealth.minPublishableScore must be within 0..100")
	}
	if c.ValidationConfig.BatchSize <= 0 {
		return errors.New("validation.batchSize must be positive")
	}
	return nil
}

// ReadPromptFromFile загружает системный промпт для генерации событий.
// Без файла промпта остаётся промпт из конфига.
func (c *Config) ReadPromptFromFile() error {
	if c.BotConfig.AI.PromptFileName == "" {
		return nil
	}
	path := filepath.Join(c.BotConfig.AI.PromptFilePath, c.BotConfig.AI.PromptFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error read prompt file %q: %w", path, err)
	}
	c.BotConfig.AI.SystemRolePrompt = strings.TrimSpace(string(b))
	return nil
}

// Write сохраняет текущий конфиг в файл, из которого он был прочитан.
func (c *Config) Write() error {
	if c.configPath == "" {
		return errors.New("config was not loaded from file")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, b, 0644); err != nil {
		return fmt.Errorf("error write config file %q: %w", c.configPath, err)
	}
	return nil
}

// PublishPolicy собирает правило публикации из настроек проверки ссылок.
func (c *Config) PublishPolicy() domain.PublishPolicy {
	return domain.PublishPolicy{
		MinScore: c.LinkHealthConfig.MinPublishableScore,
		MaxAge:   c.LinkHealthConfig.MaxCheckAge,
	}
}

// Addr возвращает адрес для net/http.
func (c *HttpServerConfig) Addr() string {
	return c.Address + ":" + c.Port
}

// DSN собирает строку подключения к Postgres.
func (c *DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (a *AIConfig) GetTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// Enabled сообщает, включена ли генерация событий через LLM.
func (a *AIConfig) Enabled() bool {
	return a.AIApiToken != "" && a.ModelName != ""
}

// AdminProfileID возвращает id профиля для имени администратора в Telegram.
func (b *BotConfig) AdminProfileID(username string) (string, bool) {
	for _, a := range b.Admins {
		if strings.EqualFold(a.Username, username) {
			return a.ProfileID, true
		}
	}
	return "", false
}
