package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
)

// leadingNumber 匹配导航文本开头的 "#<数字>" 标记
var leadingNumber = regexp.MustCompile(`^\s*#(\d+)`)

// IdentifierResolver 从相邻条目的导航推导当前条目编号
type IdentifierResolver struct {
	nextSel models.Selector
	prevSel *models.Selector
	timeout time.Duration
}

// NewIdentifierResolver 创建编号解析器
// site.PrevSelector为空时不启用"上一个+1"的回退
func NewIdentifierResolver(site models.SiteConfig, timeout time.Duration) *IdentifierResolver {
	r := &IdentifierResolver{
		nextSel: models.CSS(site.NextSelector),
		timeout: timeout,
	}
	if site.PrevSelector != "" {
		prev := models.CSS(site.PrevSelector)
		r.prevSel = &prev
	}
	return r
}

// ParseLeadingNumber 解析 "#12 Example" 形式文本中的编号
func ParseLeadingNumber(text string) (int, error) {
	m := leadingNumber.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("文本不以 #<数字> 开头: %q", text)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("编号超出范围: %q: %w", m[1], err)
	}
	return n, nil
}

// CurrentID 返回当前激活标签页上条目的编号
// 优先使用 next-1; 最后一个条目没有next导航时使用 prev+1
func (r *IdentifierResolver) CurrentID(ctx context.Context, nav models.Navigator) (int, error) {
	el, err := nav.WaitFor(ctx, r.nextSel, r.nextBudget(ctx))
	if err == nil {
		n, err := r.readNumber(ctx, nav, el, "next导航")
		if err != nil {
			return 0, err
		}
		return n - 1, nil
	}
	if !errors.Is(err, models.ErrElementNotFound) {
		return 0, &models.StructureError{What: "next导航", Detail: "等待失败", Cause: err}
	}

	if r.prevSel == nil {
		return 0, &models.StructureError{What: "next导航", Detail: "元素不存在且未配置prev导航", Cause: err}
	}
	prevEl, prevErr := nav.Locate(ctx, *r.prevSel)
	if prevErr != nil {
		return 0, &models.StructureError{
			What:   "条目导航",
			Detail: "next和prev导航都不存在",
			Cause:  errors.Join(err, prevErr),
		}
	}
	n, err := r.readNumber(ctx, nav, prevEl, "prev导航")
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// nextBudget 等待next导航的时长
// 不超过ctx剩余时间的一半,保证next缺失时还有时间走prev回退
func (r *IdentifierResolver) nextBudget(ctx context.Context) time.Duration {
	budget := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if half := time.Until(deadline) / 2; half < budget {
			budget = half
		}
	}
	return budget
}

func (r *IdentifierResolver) readNumber(ctx context.Context, nav models.Navigator, el models.ElementID, what string) (int, error) {
	defer nav.Release(el)

	text, err := nav.Text(ctx, el)
	if err != nil {
		return 0, &models.StructureError{What: what, Detail: "无法读取文本", Cause: err}
	}
	n, err := ParseLeadingNumber(text)
	if err != nil {
		return 0, &models.StructureError{What: what, Detail: "文本格式异常", Cause: err}
	}
	return n, nil
}
