package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Site     models.SiteConfig    `mapstructure:"site"`
	Browser  models.BrowserConfig `mapstructure:"browser"`
	Timeouts models.TimeoutConfig `mapstructure:"timeouts"`
	Session  models.SessionConfig `mapstructure:"session"`
	Logging  LoggingConfig        `mapstructure:"logging"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LogConfig 转换为日志器配置
func (c LoggingConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Level,
		LogDir:     c.LogDir,
		MaxSize:    c.Rotation.MaxSize,
		MaxBackups: c.Rotation.MaxBackups,
		MaxAge:     c.Rotation.MaxAge,
		Compress:   c.Rotation.Compress,
	}
}

// LoadConfig 加载配置文件
// configPath为空时依次搜索 ./configs, . 和 ~/.typedex; 找不到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".typedex"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	// viper默认的解码钩子包含 StringToTimeDurationHookFunc, "20s" 可直接解码为 time.Duration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 站点布局默认值 (pokemondb.net)
	v.SetDefault("site.base_url", "https://pokemondb.net/pokedex")
	v.SetDefault("site.consent_selector", ".gdpr-decline")
	v.SetDefault("site.catalog_item_selector", "li")
	v.SetDefault("site.catalog_range_start", 69)
	v.SetDefault("site.catalog_range_end", 86)
	v.SetDefault("site.entry_link_selector", "a.ent-name")
	v.SetDefault("site.next_selector", ".entity-nav-next")
	v.SetDefault("site.prev_selector", ".entity-nav-prev")
	v.SetDefault("site.attribute_table_xpath", `//*[@id="tab-basic-%d"]/div[1]/div[2]/table`)
	v.SetDefault("site.attribute_label", "Type")

	// 浏览器默认值
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.ignore_cert_errors", false)
	v.SetDefault("browser.blocked_urls", []string{})

	// 超时默认值
	v.SetDefault("timeouts.page_load", "20s")
	v.SetDefault("timeouts.entry", "45s")
	v.SetDefault("timeouts.poll_interval", "250ms")

	// 会话默认值
	v.SetDefault("session.max_input_attempts", 5)
	v.SetDefault("session.show_tag_summary", true)
	v.SetDefault("session.max_tabs_limit", 30)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// Validate 验证配置范围
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if err := c.Timeouts.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.Logging.Rotation.MaxSize < 0 || c.Logging.Rotation.MaxBackups < 0 || c.Logging.Rotation.MaxAge < 0 {
		return fmt.Errorf("logging.rotation中的值不能为负数")
	}
	return nil
}

// MergeCLIFlags 合并命令行参数到配置
// 空字符串表示未指定
func (c *Config) MergeCLIFlags(baseURL, logLevel, browserBin string, headless *bool) {
	if baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if browserBin != "" {
		c.Browser.Bin = browserBin
	}
	if headless != nil {
		c.Browser.Headless = *headless
	}
}
