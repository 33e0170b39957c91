package config

import "time"

// Config описывает всю конфигурацию сервиса.
type Config struct {
	Env              string           `yaml:"env" env:"ENV" env-default:"local"`
	HttpServer       HttpServerConfig `yaml:"httpServer" env-required:"true"`
	DBConfig         DBConfig         `yaml:"db" env-required:"true"`
	RedisConfig      RedisConfig      `yaml:"redis"`
	LinkHealthConfig LinkHealthConfig `yaml:"linkHealth"`
	ValidationConfig ValidationConfig `yaml:"validation"`
	IngestionConfig  IngestionConfig  `yaml:"ingestion"`
	BotConfig        BotConfig        `yaml:"bot"`
	ScraperConfig    ScraperConfig    `yaml:"scraper"`
	TurnstileConfig  TurnstileConfig  `yaml:"turnstile"`
	ConfigFilePath   string           `yaml:"configFilePath" env:"CONFIG_FILEPATH" env-default:""`
	ConfigFileName   string           `yaml:"configFileName" env:"CONFIG_FILENAME" env-default:""`
	configPath       string
}

// HttpServerConfig описывает HTTP сервер и секреты авторизации.
type HttpServerConfig struct {
	Address    string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost"`
	Port       string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	Timeout    time.Duration `yaml:"timeout" env-default:"15s"`
	Secret     string        `yaml:"secret" env:"HTTP_JWT_SECRET" env-required:"true"`
	CronSecret string        `yaml:"cronSecret" env:"CRON_SECRET" env-default:""`
}

// DBConfig описывает подключение к базе. driver=memory запускает сервис без Postgres.
type DBConfig struct {
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"` // postgres | memory
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	Name         string `yaml:"name" env:"DB_NAME" env-default:"postgres"`
	User         string `yaml:"user" env:"DB_USER" env-default:"user"`
	Password     string `yaml:"password" env:"DB_PASSWORD" env-default:"password"`
	SSLMode      string `yaml:"sslMode" env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
}

// RedisConfig описывает кэш результатов проверки ссылок. Пустой Addr отключает кэш.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"10m"`
}

// LinkHealthConfig задаёт веса штрафов и правило публикации.
type LinkHealthConfig struct {
	MaxHops             int           `yaml:"maxHops" env-default:"5"`
	Timeout             time.Duration `yaml:"timeout" env:"LINK_HEALTH_TIMEOUT" env-default:"10s"`
	UserAgent           string        `yaml:"userAgent" env-default:"taxEvents-linkcheck/1.0"`
	MaxBodyBytes        int64         `yaml:"maxBodyBytes" env-default:"262144"`
	MinPublishableScore int           `yaml:"minPublishableScore" env:"MIN_PUBLISHABLE_SCORE" env-default:"60"`
	MaxCheckAge         time.Duration `yaml:"maxCheckAge" env:"MAX_CHECK_AGE" env-default:"168h"`
	RedirectPenalty     int           `yaml:"redirectPenalty" env-default:"10"`
	StatusPenalty       int           `yaml:"statusPenalty" env-default:"90"`
	HostMismatchPenalty int           `yaml:"hostMismatchPenalty" env-default:"30"`
	HopLimitPenalty     int           `yaml:"hopLimitPenalty" env-default:"50"`
	ContentPenalty      int           `yaml:"contentPenalty" env-default:"45"`
}

// ValidationConfig задаёт размер пачки и расписание перепроверки ссылок.
type ValidationConfig struct {
	BatchSize          int           `yaml:"batchSize" env:"VALIDATION_BATCH_SIZE" env-default:"25"`
	MaxBatchSize       int           `yaml:"maxBatchSize" env-default:"200"`
	Interval           time.Duration `yaml:"interval" env:"VALIDATION_INTERVAL" env-default:"6h"`
	DelayBetweenChecks time.Duration `yaml:"delayBetweenChecks" env-default:"250ms"`
}

// IngestionConfig задаёт расписание генерации событий через LLM.
type IngestionConfig struct {
	Interval      time.Duration `yaml:"interval" env:"INGESTION_INTERVAL" env-default:"24h"`
	PastTolerance time.Duration `yaml:"pastTolerance" env-default:"24h"`
}

// AIConfig описывает подключение к OpenRouter.
type AIConfig struct {
	Timeout          int     `yaml:"timeout" env:"AI_TIMEOUT" env-default:"600"` //in seconds
	ModelName        string  `yaml:"modelName" env:"AI_MODEL_NAME" env-default:""`
	AIApiToken       string  `yaml:"aiapitoken" env:"AI_API_TOKEN" env-default:""`
	SystemRolePrompt string  `yaml:"systemRolePrompt" env-default:""`
	PromptFilePath   string  `yaml:"promptFilePath" env:"PROMPT_FILEPATH" env-default:""`
	PromptFileName   string  `yaml:"promptFileName" env:"PROMPT_FILENAME" env-default:""`
	MaxTokens        int     `yaml:"maxTokens" env-default:"16000"`
	Temperature      float32 `yaml:"temperature" env-default:"0.3"`
	MaxEvents        int     `yaml:"maxEvents" env-default:"20"`
}

// AdminConfig связывает администратора в Telegram с профилем, который пишется в reviewed_by.
type AdminConfig struct {
	Username  string `yaml:"username"`
	ProfileID string `yaml:"profileId"`
}

// BotConfig описывает Telegram бота модерации.
type BotConfig struct {
	Admins        []AdminConfig `yaml:"admins"`
	TgbotApiToken string        `yaml:"tgbot_apitoken" env:"TGBOT_APITOKEN" env-default:""`
	ReviewChatID  int64         `yaml:"reviewChatId" env:"TGBOT_REVIEW_CHAT_ID" env-default:"0"`
	AI            AIConfig      `yaml:"AI"`
}

// SiteConfig описывает страницу со списком событий и селекторы для её разбора.
type SiteConfig struct {
	Name             string   `yaml:"name"`
	URL              string   `yaml:"url"`
	ItemSelector     string   `yaml:"itemSelector"`
	TitleSelector    string   `yaml:"titleSelector"`
	DateSelector     string   `yaml:"dateSelector"`
	DateLayout       string   `yaml:"dateLayout"`
	LinkSelector     string   `yaml:"linkSelector"`
	LocationSelector string   `yaml:"locationSelector"`
	Organizer        string   `yaml:"organizer"`
	Tags             []string `yaml:"tags"`
}

// ScraperConfig задаёт пул воркеров скрапера и список сайтов.
type ScraperConfig struct {
	Interval      time.Duration `yaml:"interval" env:"SCRAPER_INTERVAL" env-default:"24h"`
	Timeout       int           `yaml:"timeout" env:"SCRAPER_TIMEOUT" env-default:"600"` //in seconds
	WorkersCount  int           `yaml:"workersCount" env-default:"2"`
	JobBufferSize int           `yaml:"jobBufferSize" env-default:"16"`
	Sites         []SiteConfig  `yaml:"sites"`
}

// TurnstileConfig описывает защиту публичных предложений. Пустой Secret отключает проверку.
type TurnstileConfig struct {
	Secret    string `yaml:"secret" env:"TURNSTILE_SECRET" env-default:""`
	VerifyURL string `yaml:"verifyUrl" env:"TURNSTILE_VERIFY_URL" env-default:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
}
