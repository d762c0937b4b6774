package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. MOBILE_MCP_VERIFY_TIMEOUT.
const EnvPrefix = "MOBILE_MCP"

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"     yaml:"logger"`
	Device     DeviceConfig     `mapstructure:"device"     yaml:"device"`
	Verify     VerifyConfig     `mapstructure:"verify"     yaml:"verify"`
	Locator    LocatorConfig    `mapstructure:"locator"    yaml:"locator"`
	Popup      PopupConfig      `mapstructure:"popup"      yaml:"popup"`
	Keys       map[string]int   `mapstructure:"keys"       yaml:"keys"`
	Server     ServerConfig     `mapstructure:"server"     yaml:"server"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot"`
	Sheet      SheetConfig      `mapstructure:"sheet"      yaml:"sheet"`
}

// LoggerConfig controls zap output and file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level"        yaml:"level"`
	Format      string `mapstructure:"format"       yaml:"format"`
	AddSource   bool   `mapstructure:"add_source"   yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file"     yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size"     yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"  yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"      yaml:"max_age"`
	Compress    bool   `mapstructure:"compress"     yaml:"compress"`
}

// DeviceConfig controls how the adb driver is invoked.
type DeviceConfig struct {
	Driver         string        `mapstructure:"driver"          yaml:"driver"`
	ADBPath        string        `mapstructure:"adb_path"        yaml:"adb_path"`
	Serial         string        `mapstructure:"serial"          yaml:"serial"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	DumpPath       string        `mapstructure:"dump_path"       yaml:"dump_path"`
}

// VerifyConfig tunes the post-action verification loop.
type VerifyConfig struct {
	Threshold    float64       `mapstructure:"threshold"     yaml:"threshold"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"  yaml:"settle_delay"`
}

// LocatorConfig tunes text normalization and element waits.
type LocatorConfig struct {
	ElementWait time.Duration     `mapstructure:"element_wait" yaml:"element_wait"`
	Synonyms    map[string]string `mapstructure:"synonyms"     yaml:"synonyms"`
	FillerWords []string          `mapstructure:"filler_words" yaml:"filler_words"`
}

// PopupConfig tunes the popup detector.
type PopupConfig struct {
	Vocabulary   []string `mapstructure:"vocabulary"     yaml:"vocabulary"`
	IconMaxRatio float64  `mapstructure:"icon_max_ratio" yaml:"icon_max_ratio"`
	MaxAttempts  int      `mapstructure:"max_attempts"   yaml:"max_attempts"`
}

// ServerConfig controls the MCP server.
type ServerConfig struct {
	Transport string        `mapstructure:"transport" yaml:"transport"`
	Port      int           `mapstructure:"port"      yaml:"port"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// ScreenshotConfig controls screenshot compression.
type ScreenshotConfig struct {
	MaxWidth int    `mapstructure:"max_width" yaml:"max_width"`
	Quality  int    `mapstructure:"quality"   yaml:"quality"`
	Dir      string `mapstructure:"dir"       yaml:"dir"`
}

// SheetConfig selects the test-case spreadsheet backend.
type SheetConfig struct {
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Path    string       `mapstructure:"path"    yaml:"path"`
	Feishu  FeishuConfig `mapstructure:"feishu"  yaml:"feishu"`
}

// FeishuConfig holds Feishu Bitable credentials and limits.
type FeishuConfig struct {
	BaseURL   string  `mapstructure:"base_url"   yaml:"base_url"`
	AppID     string  `mapstructure:"app_id"     yaml:"app_id"`
	AppSecret string  `mapstructure:"app_secret" yaml:"app_secret"`
	AppToken  string  `mapstructure:"app_token"  yaml:"app_token"`
	TableID   string  `mapstructure:"table_id"   yaml:"table_id"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	PageSize  int     `mapstructure:"page_size"  yaml:"page_size"`
}

// DefaultVocabulary lists labels that dismiss popups, ads, and guides.
var DefaultVocabulary = []string{
	"关闭", "跳过", "取消", "我知道了", "稍后再说", "以后再说", "暂不", "不再提示",
	"Skip", "Close", "Cancel", "Dismiss", "Not now", "Later", "×", "✕", "X",
}

// DefaultKeyCodes maps key names to Android key codes.
var DefaultKeyCodes = map[string]int{
	"home":        3,
	"back":        4,
	"volume_up":   24,
	"volume_down": 25,
	"power":       26,
	"tab":         61,
	"space":       62,
	"enter":       66,
	"delete":      67,
	"menu":        82,
	"search":      84,
	"app_switch":  187,
	"回车":          66,
	"搜索":          84,
	"返回":          4,
	"主页":          3,
	"删除":          67,
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mobile-mcp")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Device --
	v.SetDefault("device.driver", "adb")
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.serial", "")
	v.SetDefault("device.command_timeout", "15s")
	v.SetDefault("device.dump_path", "/sdcard/window_dump.xml")

	// -- Verify --
	v.SetDefault("verify.threshold", 0.05)
	v.SetDefault("verify.poll_interval", "100ms")
	v.SetDefault("verify.timeout", "2s")
	v.SetDefault("verify.settle_delay", "300ms")

	// -- Locator --
	v.SetDefault("locator.element_wait", "10s")
	v.SetDefault("locator.synonyms", map[string]string{"登陆": "登录"})
	v.SetDefault("locator.filler_words", []string{"点击", "按钮"})

	// -- Popup --
	v.SetDefault("popup.vocabulary", DefaultVocabulary)
	v.SetDefault("popup.icon_max_ratio", 0.12)
	v.SetDefault("popup.max_attempts", 1)

	// -- Keys --
	v.SetDefault("keys", DefaultKeyCodes)

	// -- Server --
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_ttl", "500ms")

	// -- Screenshot --
	v.SetDefault("screenshot.max_width", 720)
	v.SetDefault("screenshot.quality", 75)
	v.SetDefault("screenshot.dir", "")

	// -- Sheet --
	v.SetDefault("sheet.backend", "yaml")
	v.SetDefault("sheet.path", "cases.yaml")
	v.SetDefault("sheet.feishu.base_url", "https://open.feishu.cn")
	v.SetDefault("sheet.feishu.rate_limit", 5.0)
	v.SetDefault("sheet.feishu.page_size", 100)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from cfgFile, or from mobile-mcp.yaml in the
// working directory or ~/.config/mobile-mcp, then applies environment
// overrides. A missing config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mobile-mcp"))
		}
		v.SetConfigName("mobile-mcp")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would make the engine misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Verify.Threshold <= 0 || c.Verify.Threshold > 1 {
		errs = append(errs, fmt.Errorf("verify.threshold must be in (0, 1], got %v", c.Verify.Threshold))
	}
	if c.Verify.PollInterval <= 0 {
		errs = append(errs, errors.New("verify.poll_interval must be positive"))
	}
	if c.Verify.Timeout < c.Verify.PollInterval {
		errs = append(errs, errors.New("verify.timeout must be at least verify.poll_interval"))
	}
	if c.Popup.IconMaxRatio <= 0 || c.Popup.IconMaxRatio >= 1 {
		errs = append(errs, fmt.Errorf("popup.icon_max_ratio must be in (0, 1), got %v", c.Popup.IconMaxRatio))
	}
	if c.Screenshot.Quality < 1 || c.Screenshot.Quality > 100 {
		errs = append(errs, fmt.Errorf("screenshot.quality must be 1-100, got %d", c.Screenshot.Quality))
	}
	switch c.Sheet.Backend {
	case "yaml", "sqlite", "feishu":
	default:
		errs = append(errs, fmt.Errorf("sheet.backend must be yaml, sqlite, or feishu, got %q", c.Sheet.Backend))
	}
	return errors.Join(errs...)
}
