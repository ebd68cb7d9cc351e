package core

import (
	"net/http"

	"github.com/RecoveryAshes/TypeDex/internal/config"
	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
)

// DefaultUserAgent 浏览器与静态探测共用的默认UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// HeaderManager 合并默认、配置文件和命令行三层请求头
// 优先级: 默认 < 配置文件 < 命令行
// 实现 models.HeaderProvider
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
	loader    *config.HeaderConfigLoader
	loaded    bool
}

// NewHeaderManager 创建头部管理器
// configFile为空时使用 configs/headers.yaml
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: http.Header{
			"User-Agent":      {DefaultUserAgent},
			"Accept-Language": {"en-US,en;q=0.9"},
		},
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		loader:    config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}
	return hm, nil
}

// LoadConfig 加载头部配置文件,只加载一次
func (hm *HeaderManager) LoadConfig() error {
	if hm.loaded {
		return nil
	}

	cfg, err := hm.loader.LoadConfig()
	if err != nil {
		return err
	}
	for name, value := range cfg.Headers {
		hm.config.Set(name, value)
	}
	hm.loaded = true

	if len(cfg.Headers) > 0 {
		utils.Debugf("从 %s 加载了%d个请求头: %s", hm.loader.Path(), len(cfg.Headers), hm.redactor.RedactToString(hm.config))
	}
	return nil
}

// Validate 依次验证三层头部
func (hm *HeaderManager) Validate() error {
	layers := []struct {
		name   string
		header http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	}
	for _, layer := range layers {
		if err := hm.validator.Validate(layer.header); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// Merged 按优先级合并,后一层整体覆盖同名头部
func (hm *HeaderManager) Merged() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// SafeString 脱敏后的头部,用于日志
func (hm *HeaderManager) SafeString() string {
	return hm.redactor.RedactToString(hm.Merged())
}

// GetHeaders 实现 models.HeaderProvider
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.Merged(), nil
}
