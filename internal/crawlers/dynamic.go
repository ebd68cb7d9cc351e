package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrBrowserClosed 浏览器已关闭
var ErrBrowserClosed = errors.New("浏览器已关闭")

// RodNavigator 基于go-rod的 models.Navigator 实现
// 页面和元素只通过PagePool分配的整数句柄暴露
type RodNavigator struct {
	config         models.BrowserConfig
	headerProvider models.HeaderProvider

	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     *PagePool

	mu     sync.Mutex
	active models.TabID
	closed bool
}

// NewRodNavigator 启动浏览器并登记主标签页
// headerProvider可以为nil
func NewRodNavigator(config models.BrowserConfig, headerProvider models.HeaderProvider) (*RodNavigator, error) {
	rn := &RodNavigator{
		config:         config,
		headerProvider: headerProvider,
		pool:           NewPagePool(),
	}
	if err := rn.launchBrowser(); err != nil {
		return nil, err
	}

	// 复用浏览器启动时自带的空白页作为主标签页
	var page *rod.Page
	if pages, err := rn.browser.Pages(); err == nil && len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = rn.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			rn.Close()
			return nil, fmt.Errorf("创建主标签页失败: %w", err)
		}
	}

	tab, err := rn.registerPage(page)
	if err != nil {
		rn.Close()
		return nil, err
	}
	rn.active = tab
	return rn, nil
}

// launchBrowser 启动浏览器
func (rn *RodNavigator) launchBrowser() error {
	l := launcher.New().Headless(rn.config.Headless)
	if rn.config.Bin != "" {
		l = l.Bin(rn.config.Bin)
	}
	if rn.config.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors")
		utils.Debugf("浏览器启动参数: --ignore-certificate-errors")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}
	rn.launcher = l

	rn.browser = rod.New().ControlURL(controlURL)
	if err := rn.browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// registerPage 为新标签页注入stealth脚本、请求头和URL屏蔽规则,然后登记
func (rn *RodNavigator) registerPage(page *rod.Page) (models.TabID, error) {
	if rn.config.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			return models.NoTab, fmt.Errorf("注入stealth脚本失败: %w", err)
		}
	}

	if err := rn.applyHeaders(page); err != nil {
		return models.NoTab, err
	}

	var router *rod.HijackRouter
	if len(rn.config.BlockedURLs) > 0 {
		router = page.HijackRequests()
		for _, pattern := range rn.config.BlockedURLs {
			if err := router.Add(pattern, "", func(h *rod.Hijack) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			}); err != nil {
				return models.NoTab, fmt.Errorf("添加屏蔽规则失败 [%s]: %w", pattern, err)
			}
		}
		go router.Run()
	}

	return rn.pool.AddPage(page, router), nil
}

// applyHeaders User-Agent走专门的覆盖接口,其余头部作为额外请求头
func (rn *RodNavigator) applyHeaders(page *rod.Page) error {
	if rn.headerProvider == nil {
		return nil
	}
	headers, err := rn.headerProvider.GetHeaders()
	if err != nil {
		return fmt.Errorf("获取HTTP头部失败: %w", err)
	}

	if ua := headers.Get("User-Agent"); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	dict := make([]string, 0, 2*len(headers))
	for name, values := range headers {
		if http.CanonicalHeaderKey(name) == "User-Agent" || len(values) == 0 {
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) > 0 {
		if _, err := page.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("设置额外请求头失败: %w", err)
		}
	}
	return nil
}

func (rn *RodNavigator) activePage() (*rod.Page, models.TabID, error) {
	rn.mu.Lock()
	closed, tab := rn.closed, rn.active
	rn.mu.Unlock()

	if closed {
		return nil, models.NoTab, ErrBrowserClosed
	}
	page, err := rn.pool.Page(tab)
	if err != nil {
		return nil, models.NoTab, err
	}
	return page, tab, nil
}

func (rn *RodNavigator) element(ctx context.Context, el models.ElementID) (*rod.Element, error) {
	e, _, err := rn.pool.Element(el)
	if err != nil {
		return nil, err
	}
	return e.Context(ctx), nil
}

// linkTextRegex 链接文本精确匹配(忽略首尾空白)的JS正则
func linkTextRegex(text string) string {
	return `/^\s*` + regexp.QuoteMeta(text) + `\s*$/`
}

// Open 在当前标签页中打开URL并等待加载完成
func (rn *RodNavigator) Open(ctx context.Context, url string) error {
	page, _, err := rn.activePage()
	if err != nil {
		return err
	}
	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}
	return nil
}

// Locate 立即查找元素,不等待
func (rn *RodNavigator) Locate(ctx context.Context, sel models.Selector) (models.ElementID, error) {
	page, tab, err := rn.activePage()
	if err != nil {
		return 0, err
	}

	p := page.Context(ctx)
	var has bool
	var el *rod.Element
	switch sel.Kind {
	case models.SelectorCSS:
		has, el, err = p.Has(sel.Expr)
	case models.SelectorXPath:
		has, el, err = p.HasX(sel.Expr)
	case models.SelectorLinkText:
		has, el, err = p.HasR("a", linkTextRegex(sel.Expr))
	default:
		return 0, fmt.Errorf("不支持的选择器类型: %s", sel.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("查找元素失败 %s: %w", sel, err)
	}
	if !has {
		return 0, fmt.Errorf("%w: %s", models.ErrElementNotFound, sel)
	}
	return rn.pool.AddElement(tab, el), nil
}

// LocateAll 查找所有匹配的元素,没有匹配时返回空切片
func (rn *RodNavigator) LocateAll(ctx context.Context, sel models.Selector) ([]models.ElementID, error) {
	page, tab, err := rn.activePage()
	if err != nil {
		return nil, err
	}

	p := page.Context(ctx)
	var els rod.Elements
	switch sel.Kind {
	case models.SelectorCSS:
		els, err = p.Elements(sel.Expr)
	case models.SelectorXPath:
		els, err = p.ElementsX(sel.Expr)
	case models.SelectorLinkText:
		var links rod.Elements
		links, err = p.Elements("a")
		for _, a := range links {
			text, textErr := a.Text()
			if textErr == nil && strings.TrimSpace(text) == sel.Expr {
				els = append(els, a)
			}
		}
	default:
		return nil, fmt.Errorf("不支持的选择器类型: %s", sel.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("查找元素失败 %s: %w", sel, err)
	}

	ids := make([]models.ElementID, 0, len(els))
	for _, el := range els {
		ids = append(ids, rn.pool.AddElement(tab, el))
	}
	return ids, nil
}

// WaitFor 等待元素出现,超时返回 ErrElementNotFound
func (rn *RodNavigator) WaitFor(ctx context.Context, sel models.Selector, timeout time.Duration) (models.ElementID, error) {
	page, tab, err := rn.activePage()
	if err != nil {
		return 0, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := page.Context(waitCtx)

	var el *rod.Element
	switch sel.Kind {
	case models.SelectorCSS:
		el, err = p.Element(sel.Expr)
	case models.SelectorXPath:
		el, err = p.ElementX(sel.Expr)
	case models.SelectorLinkText:
		el, err = p.ElementR("a", linkTextRegex(sel.Expr))
	default:
		return 0, fmt.Errorf("不支持的选择器类型: %s", sel.Kind)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, fmt.Errorf("%w: 等待%s后仍未出现 %s", models.ErrElementNotFound, timeout, sel)
		}
		return 0, fmt.Errorf("等待元素失败 %s: %w", sel, err)
	}
	return rn.pool.AddElement(tab, el), nil
}

// Text 元素的可见文本
func (rn *RodNavigator) Text(ctx context.Context, el models.ElementID) (string, error) {
	e, err := rn.element(ctx, el)
	if err != nil {
		return "", err
	}
	return e.Text()
}

// Attribute 读取元素属性
func (rn *RodNavigator) Attribute(ctx context.Context, el models.ElementID, name string) (string, bool, error) {
	e, err := rn.element(ctx, el)
	if err != nil {
		return "", false, err
	}
	v, err := e.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Click 左键单击元素
func (rn *RodNavigator) Click(ctx context.Context, el models.ElementID) error {
	e, err := rn.element(ctx, el)
	if err != nil {
		return err
	}
	return e.Click(proto.InputMouseButtonLeft, 1)
}

// OpenInNewTab 在后台标签页中打开链接,焦点不变
// 导航失败时标签页已登记,返回该标签页和错误,由调用方关闭
func (rn *RodNavigator) OpenInNewTab(ctx context.Context, el models.ElementID) (models.TabID, error) {
	e, err := rn.element(ctx, el)
	if err != nil {
		return models.NoTab, err
	}
	// href属性可能是相对路径,property是浏览器解析后的绝对地址
	prop, err := e.Property("href")
	if err != nil {
		return models.NoTab, fmt.Errorf("读取链接地址失败: %w", err)
	}
	href := prop.String()
	if href == "" {
		return models.NoTab, fmt.Errorf("元素 %d 没有链接地址", el)
	}

	page, err := rn.browser.Context(ctx).Page(proto.TargetCreateTarget{Background: true})
	if err != nil {
		return models.NoTab, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}
	tab, err := rn.registerPage(page)
	if err != nil {
		_ = page.Close()
		return models.NoTab, err
	}
	if err := page.Context(ctx).Navigate(href); err != nil {
		return tab, fmt.Errorf("新标签页导航失败 [%s]: %w", href, err)
	}

	utils.Logger.Debug().Int("tab", int(tab)).Str("url", href).Msg("已打开新标签页")
	return tab, nil
}

// Tabs 按打开顺序返回标签页
func (rn *RodNavigator) Tabs(ctx context.Context) ([]models.TabID, error) {
	rn.mu.Lock()
	closed := rn.closed
	rn.mu.Unlock()
	if closed {
		return nil, ErrBrowserClosed
	}
	return rn.pool.Tabs(), nil
}

// Active 当前激活的标签页
func (rn *RodNavigator) Active() models.TabID {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.active
}

// SwitchTo 切换焦点到指定标签页
func (rn *RodNavigator) SwitchTo(ctx context.Context, tab models.TabID) error {
	page, err := rn.pool.Page(tab)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("激活标签页 %d 失败: %w", tab, err)
	}

	rn.mu.Lock()
	rn.active = tab
	rn.mu.Unlock()
	return nil
}

// CloseTab 关闭标签页并吊销其上的元素句柄
func (rn *RodNavigator) CloseTab(ctx context.Context, tab models.TabID) error {
	page, router, err := rn.pool.RemovePage(tab)
	if err != nil {
		return err
	}
	if router != nil {
		_ = router.Stop()
	}

	rn.mu.Lock()
	if rn.active == tab {
		rn.active = models.NoTab
	}
	rn.mu.Unlock()

	if err := page.Context(ctx).Close(); err != nil {
		return fmt.Errorf("关闭标签页 %d 失败: %w", tab, err)
	}
	return nil
}

// Release 吊销元素句柄
func (rn *RodNavigator) Release(el models.ElementID) {
	rn.pool.ReleaseElement(el)
}

// Close 关闭所有标签页和浏览器,可以重复调用
func (rn *RodNavigator) Close() error {
	rn.mu.Lock()
	if rn.closed {
		rn.mu.Unlock()
		return nil
	}
	rn.closed = true
	rn.active = models.NoTab
	rn.mu.Unlock()

	for _, p := range rn.pool.Drain() {
		if p.router != nil {
			_ = p.router.Stop()
		}
	}

	var err error
	if rn.browser != nil {
		err = rn.browser.Close()
	}
	if rn.launcher != nil {
		rn.launcher.Kill()
	}
	utils.Debugf("浏览器已关闭")
	return err
}
