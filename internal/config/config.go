// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile      = "parsr.yaml"
	DefaultLinksFile       = "links.txt"
	DefaultCredentialsFile = "config.json"
	DefaultSessionFile     = "session.json"
	DefaultVKBaseURL       = "https://api.vk.com/method"
	DefaultVKAPIVersion    = "5.199"
	DefaultTelegramDelay   = 500 * time.Millisecond
	DefaultOKDelay         = 2 * time.Second
	DefaultHTTPTimeout     = 15 * time.Second
	DefaultListenAddr      = ":8080"
	DefaultHistoryLimit    = 20

	RendererHTTP   = "http"
	RendererChrome = "chrome"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Duration accepts strings like "500ms" in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type AppConfig struct {
	LinksFile   string            `yaml:"links_file"`
	Credentials CredentialsConfig `yaml:"credentials"`
	VK          VKConfig          `yaml:"vk"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	OK          OKConfig          `yaml:"ok"`
	HTTPTimeout Duration          `yaml:"http_timeout"`
	Parallel    bool              `yaml:"parallel"`
	Database    DatabaseConfig    `yaml:"database"`
	Discord     DiscordConfig     `yaml:"discord"`
	Listen      string            `yaml:"listen"`
	// Schedule repeats the links file in serve mode. Zero disables it.
	Schedule Duration `yaml:"schedule"`
}

type CredentialsConfig struct {
	File          string `yaml:"file"`
	PassphraseEnv string `yaml:"passphrase_env"`

	// Resolved from PassphraseEnv at load time.
	Passphrase string `yaml:"-"`
}

type VKConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
}

type TelegramConfig struct {
	SessionFile string   `yaml:"session_file"`
	Delay       Duration `yaml:"delay"`
}

type OKConfig struct {
	Delay    Duration `yaml:"delay"`
	Renderer string   `yaml:"renderer"`
}

// DatabaseConfig selects the run history store. An empty driver disables it.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

func Default() *AppConfig {
	return &AppConfig{
		LinksFile: DefaultLinksFile,
		Credentials: CredentialsConfig{
			File:          DefaultCredentialsFile,
			PassphraseEnv: "PARSR_PASSPHRASE",
		},
		VK: VKConfig{
			BaseURL:    DefaultVKBaseURL,
			APIVersion: DefaultVKAPIVersion,
		},
		Telegram: TelegramConfig{
			SessionFile: DefaultSessionFile,
			Delay:       Duration{DefaultTelegramDelay},
		},
		OK: OKConfig{
			Delay:    Duration{DefaultOKDelay},
			Renderer: RendererHTTP,
		},
		HTTPTimeout: Duration{DefaultHTTPTimeout},
		Listen:      DefaultListenAddr,
	}
}

// Load reads .env, then the YAML file at path, then environment overrides,
// and validates the result. An empty path falls back to DefaultConfigFile
// when it exists.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AppConfig) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&c.LinksFile, "PARSR_LINKS_FILE")
	setString(&c.Credentials.File, "PARSR_CREDENTIALS_FILE")
	setString(&c.VK.BaseURL, "VK_API_BASE_URL")
	setString(&c.VK.APIVersion, "VK_API_VERSION")
	setString(&c.Telegram.SessionFile, "TELEGRAM_SESSION_FILE")
	setString(&c.OK.Renderer, "OK_RENDERER")
	setString(&c.Database.Driver, "PARSR_DB_DRIVER")
	setString(&c.Database.DSN, "PARSR_DB_DSN")
	setString(&c.Discord.Token, "DISCORD_BOT_TOKEN")
	setString(&c.Discord.ChannelID, "DISCORD_CHANNEL_ID")
	setString(&c.Listen, "PARSR_LISTEN")

	if v := getenv("PARSR_PARALLEL"); v != "" {
		parallel, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PARSR_PARALLEL: %w", err)
		}
		c.Parallel = parallel
	}

	if c.Credentials.PassphraseEnv != "" {
		c.Credentials.Passphrase = getenv(c.Credentials.PassphraseEnv)
	}

	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		dbName := getenv("POSTGRES_DB")
		dbUserName := getenv("POSTGRES_USER")
		dbPassword := getenv("POSTGRES_PASSWORD")
		host := getenv("POSTGRES_HOST")
		if host == "" {
			host = "db"
		}

		if dbName == "" || dbUserName == "" || dbPassword == "" {
			return fmt.Errorf("postgres selected but neither a DSN nor POSTGRES_DB, POSTGRES_USER and POSTGRES_PASSWORD are set")
		}

		c.Database.DSN = fmt.Sprintf("postgres://%v:%v@%v:5432/%v?sslmode=disable", dbUserName, dbPassword, host, dbName)
	}

	return nil
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.LinksFile) == "" {
		return errors.New("links_file is required")
	}
	if strings.TrimSpace(c.Credentials.File) == "" {
		return errors.New("credentials.file is required")
	}
	if c.VK.BaseURL == "" || c.VK.APIVersion == "" {
		return errors.New("vk.base_url and vk.api_version are required")
	}
	if c.Telegram.SessionFile == "" {
		return errors.New("telegram.session_file is required")
	}
	if c.Telegram.Delay.Duration < 0 || c.OK.Delay.Duration < 0 {
		return errors.New("delays must not be negative")
	}
	if c.Schedule.Duration < 0 {
		return errors.New("schedule must not be negative")
	}
	if c.HTTPTimeout.Duration <= 0 {
		return errors.New("http_timeout must be positive")
	}

	switch c.OK.Renderer {
	case RendererHTTP, RendererChrome:
	default:
		return fmt.Errorf("ok.renderer must be %q or %q, got %q", RendererHTTP, RendererChrome, c.OK.Renderer)
	}

	switch c.Database.Driver {
	case "":
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		return errors.New("discord.token and discord.channel_id must be set together")
	}

	return nil
}
