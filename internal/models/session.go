package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
)

// SiteConfig 目标站点的页面布局约定
type SiteConfig struct {
	BaseURL             string `mapstructure:"base_url" json:"base_url"`                           // 图鉴索引页
	ConsentSelector     string `mapstructure:"consent_selector" json:"consent_selector"`           // 隐私弹窗的拒绝按钮(CSS)
	CatalogItemSelector string `mapstructure:"catalog_item_selector" json:"catalog_item_selector"` // 子图鉴列表项(CSS)
	CatalogRangeStart   int    `mapstructure:"catalog_range_start" json:"catalog_range_start"`     // 列表项窗口起点(含)
	CatalogRangeEnd     int    `mapstructure:"catalog_range_end" json:"catalog_range_end"`         // 列表项窗口终点(不含), 0表示到末尾
	EntryLinkSelector   string `mapstructure:"entry_link_selector" json:"entry_link_selector"`     // 条目链接(CSS)
	NextSelector        string `mapstructure:"next_selector" json:"next_selector"`                 // "下一个"导航(CSS)
	PrevSelector        string `mapstructure:"prev_selector" json:"prev_selector"`                 // "上一个"导航(CSS), 为空则不回退
	AttributeTableXPath string `mapstructure:"attribute_table_xpath" json:"attribute_table_xpath"` // 属性表格XPath模板, %d为编号
	AttributeLabel      string `mapstructure:"attribute_label" json:"attribute_label"`             // 属性行标签,如 "Type"
}

// Validate 验证站点配置
func (c *SiteConfig) Validate() error {
	if err := ValidateURL(c.BaseURL); err != nil {
		return fmt.Errorf("site.base_url无效: %w", err)
	}
	if c.CatalogItemSelector == "" || c.EntryLinkSelector == "" || c.NextSelector == "" {
		return fmt.Errorf("site中的选择器不能为空")
	}
	for name, sel := range map[string]string{
		"consent_selector":      c.ConsentSelector,
		"catalog_item_selector": c.CatalogItemSelector,
		"entry_link_selector":   c.EntryLinkSelector,
		"next_selector":         c.NextSelector,
		"prev_selector":         c.PrevSelector,
	} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("site.%s不是有效的CSS选择器 %q: %w", name, sel, err)
		}
	}
	if c.CatalogRangeStart < 0 {
		return fmt.Errorf("catalog_range_start不能为负数: %d", c.CatalogRangeStart)
	}
	if c.CatalogRangeEnd != 0 && c.CatalogRangeEnd <= c.CatalogRangeStart {
		return fmt.Errorf("catalog_range_end必须大于catalog_range_start: %d <= %d", c.CatalogRangeEnd, c.CatalogRangeStart)
	}
	if strings.Count(c.AttributeTableXPath, "%d") != 1 {
		return fmt.Errorf("attribute_table_xpath必须恰好包含一个%%d占位符: %s", c.AttributeTableXPath)
	}
	if _, err := xpath.Compile(fmt.Sprintf(c.AttributeTableXPath, 1)); err != nil {
		return fmt.Errorf("attribute_table_xpath不是有效的XPath: %w", err)
	}
	if strings.TrimSpace(c.AttributeLabel) == "" {
		return fmt.Errorf("attribute_label不能为空")
	}
	return nil
}

// BrowserConfig 浏览器启动配置
type BrowserConfig struct {
	Headless         bool     `mapstructure:"headless" json:"headless"`                     // 无头模式(交互浏览时应关闭)
	Stealth          bool     `mapstructure:"stealth" json:"stealth"`                       // 注入go-rod/stealth脚本
	Bin              string   `mapstructure:"bin" json:"bin"`                               // 浏览器可执行文件路径,为空则自动下载
	IgnoreCertErrors bool     `mapstructure:"ignore_cert_errors" json:"ignore_cert_errors"` // 跳过TLS证书验证
	BlockedURLs      []string `mapstructure:"blocked_urls" json:"blocked_urls"`             // 屏蔽的资源URL模式
}

// TimeoutConfig 超时配置
type TimeoutConfig struct {
	PageLoad     time.Duration `mapstructure:"page_load" json:"page_load"`         // 等待页面元素就绪
	Entry        time.Duration `mapstructure:"entry" json:"entry"`                 // 单个条目的处理上限
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"` // 轮询间隔
}

// Validate 验证超时配置
func (c *TimeoutConfig) Validate() error {
	if c.PageLoad <= 0 || c.PageLoad > 5*time.Minute {
		return fmt.Errorf("timeouts.page_load必须在(0, 5m]之间,当前值: %s", c.PageLoad)
	}
	// 条目内先等next导航,缺失时还要读prev导航和属性表格
	if c.Entry < 2*c.PageLoad {
		return fmt.Errorf("timeouts.entry(%s)至少是page_load(%s)的两倍", c.Entry, c.PageLoad)
	}
	if c.PollInterval <= 0 || c.PollInterval > c.PageLoad {
		return fmt.Errorf("timeouts.poll_interval必须在(0, page_load]之间,当前值: %s", c.PollInterval)
	}
	return nil
}

// SessionConfig 交互会话配置
type SessionConfig struct {
	MaxInputAttempts int  `mapstructure:"max_input_attempts" json:"max_input_attempts"` // 连续无效输入上限
	ShowTagSummary   bool `mapstructure:"show_tag_summary" json:"show_tag_summary"`     // 提示前列出所有属性
	MaxTabsLimit     int  `mapstructure:"max_tabs_limit" json:"max_tabs_limit"`         // 批量打开的建议上限
}

// Validate 验证会话配置
func (c *SessionConfig) Validate() error {
	if c.MaxInputAttempts < 1 || c.MaxInputAttempts > 1000 {
		return fmt.Errorf("session.max_input_attempts必须在1-1000之间,当前值: %d", c.MaxInputAttempts)
	}
	if c.MaxTabsLimit < 1 {
		return fmt.Errorf("session.max_tabs_limit必须大于0,当前值: %d", c.MaxTabsLimit)
	}
	return nil
}

// BuildStats 索引构建统计
type BuildStats struct {
	Entries  int     `json:"entries"`  // 访问的条目数
	Tags     int     `json:"tags"`     // 不同属性数
	Links    int     `json:"links"`    // 索引中的引用总数
	Duration float64 `json:"duration"` // 总耗时(秒)
}

// ExploreStats 探索会话统计
type ExploreStats struct {
	Rounds     int `json:"rounds"`      // 完成的轮数
	OpenedTabs int `json:"opened_tabs"` // 累计打开的标签页
	BadInputs  int `json:"bad_inputs"`  // 无效输入次数
}
