package main

import (
	"fmt"
	"sort"

	"github.com/RecoveryAshes/TypeDex/internal/core"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
)

// runValidate 验证主配置和HTTP头部配置,并显示生效的值
func runValidate(cfg *core.Config, headerManager *core.HeaderManager) error {
	utils.Info("验证配置...")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	utils.Infof("图鉴索引页: %s", cfg.Site.BaseURL)
	utils.Infof("子图鉴窗口: [%d, %d)", cfg.Site.CatalogRangeStart, cfg.Site.CatalogRangeEnd)
	utils.Infof("超时: page_load=%s entry=%s poll=%s", cfg.Timeouts.PageLoad, cfg.Timeouts.Entry, cfg.Timeouts.PollInterval)

	utils.Info("验证HTTP头部配置...")
	if err := headerManager.LoadConfig(); err != nil {
		return fmt.Errorf("加载头部配置失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("头部配置验证失败: %w", err)
	}

	safeHeaders := utils.NewHeaderRedactor().Redact(headerManager.Merged())
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("配置验证通过")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(names))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}
