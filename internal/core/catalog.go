package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
)

// ParseChoice 解析操作员输入的选项序号
// 返回的错误都是 *models.InputError
func ParseChoice(input string, count int) (int, error) {
	s := strings.TrimSpace(input)
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, &models.InputError{Input: s, Reason: "不是数字"}
	}
	if idx < 0 || idx >= count {
		return 0, &models.InputError{Input: s, Reason: fmt.Sprintf("超出范围 [0-%d]", count-1)}
	}
	return idx, nil
}

// CatalogSelector 子图鉴的列出、选择和进入
type CatalogSelector struct {
	nav         models.Navigator
	op          models.Operator
	site        models.SiteConfig
	timeout     time.Duration
	maxAttempts int
}

// NewCatalogSelector 创建子图鉴选择器
func NewCatalogSelector(nav models.Navigator, op models.Operator, site models.SiteConfig, timeout time.Duration, maxAttempts int) *CatalogSelector {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CatalogSelector{
		nav:         nav,
		op:          op,
		site:        site,
		timeout:     timeout,
		maxAttempts: maxAttempts,
	}
}

// ListOptions 读取索引页上窗口内的子图鉴选项
func (cs *CatalogSelector) ListOptions(ctx context.Context) ([]models.CatalogOption, error) {
	sel := models.CSS(cs.site.CatalogItemSelector)
	first, err := cs.nav.WaitFor(ctx, sel, cs.timeout)
	if err != nil {
		return nil, &models.StructureError{What: "子图鉴列表", Detail: sel.String(), Cause: err}
	}
	cs.nav.Release(first)

	els, err := cs.nav.LocateAll(ctx, sel)
	if err != nil {
		return nil, &models.StructureError{What: "子图鉴列表", Detail: sel.String(), Cause: err}
	}

	start, end := models.CatalogWindow(cs.site.CatalogRangeStart, cs.site.CatalogRangeEnd, len(els))
	for i, el := range els {
		if i < start || i >= end {
			cs.nav.Release(el)
		}
	}
	if start == end {
		return nil, &models.StructureError{
			What:   "子图鉴列表",
			Detail: fmt.Sprintf("窗口 [%d,%d) 内没有选项,页面共%d项", cs.site.CatalogRangeStart, cs.site.CatalogRangeEnd, len(els)),
		}
	}

	options := make([]models.CatalogOption, 0, end-start)
	for _, el := range els[start:end] {
		label, err := cs.nav.Text(ctx, el)
		if err != nil {
			return nil, &models.StructureError{What: "子图鉴选项", Detail: "无法读取文本", Cause: err}
		}
		label = strings.TrimSpace(label)
		target, err := models.NormalizeCatalogLabel(label)
		if err != nil {
			return nil, err
		}
		options = append(options, models.CatalogOption{Label: label, Target: target, Element: el})
	}

	utils.Debugf("读取到%d个子图鉴选项", len(options))
	return options, nil
}

// Choose 列出选项并读取操作员的选择
// 无效输入会提示后重新询问,连续无效输入达到上限或输入结束时返回 ErrOperatorAborted
func (cs *CatalogSelector) Choose(ctx context.Context, options []models.CatalogOption) (models.CatalogOption, error) {
	if len(options) == 0 {
		return models.CatalogOption{}, &models.StructureError{What: "子图鉴列表", Detail: "没有可选的子图鉴"}
	}

	for i, opt := range options {
		cs.op.Say("[%d]: %s", i, opt.Label)
	}

	prompt := fmt.Sprintf("请选择子图鉴 [0-%d]: ", len(options)-1)
	for attempt := 1; attempt <= cs.maxAttempts; attempt++ {
		line, err := cs.op.Ask(ctx, prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return models.CatalogOption{}, fmt.Errorf("%w: 输入已结束", models.ErrOperatorAborted)
			}
			return models.CatalogOption{}, err
		}

		idx, err := ParseChoice(line, len(options))
		if err != nil {
			cs.op.Say("%v", err)
			utils.Debugf("子图鉴选择第%d次输入无效: %v", attempt, err)
			continue
		}
		utils.Infof("选择了子图鉴: %s", options[idx].Label)
		return options[idx], nil
	}
	return models.CatalogOption{}, fmt.Errorf("%w: 连续%d次无效输入", models.ErrOperatorAborted, cs.maxAttempts)
}

// Enter 点击选项对应的链接并等待条目列表出现
func (cs *CatalogSelector) Enter(ctx context.Context, opt models.CatalogOption) error {
	link := models.LinkText(opt.Target)
	el, err := cs.nav.WaitFor(ctx, link, cs.timeout)
	if err != nil {
		return &models.StructureError{What: "子图鉴链接", Detail: link.String(), Cause: err}
	}
	if err := cs.nav.Click(ctx, el); err != nil {
		return &models.StructureError{What: "子图鉴链接", Detail: "点击失败", Cause: err}
	}

	entries := models.CSS(cs.site.EntryLinkSelector)
	first, err := cs.nav.WaitFor(ctx, entries, cs.timeout)
	if err != nil {
		return &models.StructureError{What: "条目链接", Detail: entries.String(), Cause: err}
	}
	cs.nav.Release(first)
	return nil
}
