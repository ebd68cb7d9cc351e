package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
)

const defaultPollInterval = 100 * time.Millisecond

// TabGuard 维护"主标签页 + 辅助标签页"的会话状态
//
// 步骤之外恰好只有主标签页打开; IndexBuilder的一个步骤内恰好打开两个
type TabGuard struct {
	nav     models.Navigator
	primary models.TabID
	aux     []models.TabID
}

// NewTabGuard 以当前激活的标签页作为主标签页
// 创建时必须只有一个标签页
func NewTabGuard(ctx context.Context, nav models.Navigator) (*TabGuard, error) {
	g := &TabGuard{nav: nav, primary: nav.Active()}
	if g.primary == models.NoTab {
		return nil, fmt.Errorf("%w: 没有激活的标签页", models.ErrTabInvariant)
	}
	if err := g.Verify(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Primary 主标签页
func (g *TabGuard) Primary() models.TabID {
	return g.primary
}

// Open 在新标签页中打开元素链接并登记,不切换焦点
// 出错时若标签页已经创建(导航失败),仍然登记,由CloseAll负责关闭
func (g *TabGuard) Open(ctx context.Context, el models.ElementID) (models.TabID, error) {
	tab, err := g.nav.OpenInNewTab(ctx, el)
	if tab != models.NoTab {
		g.aux = append(g.aux, tab)
	}
	if err != nil {
		return models.NoTab, err
	}
	return tab, nil
}

// OpenCount 当前登记的辅助标签页数量
func (g *TabGuard) OpenCount() int {
	return len(g.aux)
}

// CloseAll 按打开顺序关闭所有辅助标签页,切回主标签页并验证
// 清理使用独立于调用方取消信号的context,超时的步骤也能恢复单标签页状态
func (g *TabGuard) CloseAll(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, tab := range g.aux {
		if err := g.nav.CloseTab(ctx, tab); err != nil {
			errs = append(errs, fmt.Errorf("关闭标签页 %d 失败: %w", tab, err))
		}
	}
	g.aux = g.aux[:0]

	if err := g.nav.SwitchTo(ctx, g.primary); err != nil {
		errs = append(errs, fmt.Errorf("切回主标签页失败: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrTabInvariant, errors.Join(errs...))
	}
	return g.Verify(ctx)
}

// Verify 检查只剩主标签页且焦点在主标签页上
func (g *TabGuard) Verify(ctx context.Context) error {
	tabs, err := g.nav.Tabs(ctx)
	if err != nil {
		return fmt.Errorf("%w: 无法列出标签页: %w", models.ErrTabInvariant, err)
	}
	if len(tabs) != 1 || tabs[0] != g.primary {
		return fmt.Errorf("%w: 期望只有主标签页 %d, 实际 %v", models.ErrTabInvariant, g.primary, tabs)
	}
	if active := g.nav.Active(); active != g.primary {
		return fmt.Errorf("%w: 焦点在标签页 %d 而不是主标签页 %d", models.ErrTabInvariant, active, g.primary)
	}
	return nil
}

// Isolate 在独立标签页中执行一个步骤
// 打开 -> 切换 -> fn -> 关闭并切回; 无论fn是否成功都会恢复单标签页状态
func (g *TabGuard) Isolate(ctx context.Context, el models.ElementID, fn func(ctx context.Context, tab models.TabID) error) error {
	tab, err := g.Open(ctx, el)
	if err != nil {
		if closeErr := g.CloseAll(ctx); closeErr != nil {
			return errors.Join(fmt.Errorf("打开标签页失败: %w", err), closeErr)
		}
		return fmt.Errorf("打开标签页失败: %w", err)
	}

	stepErr := g.nav.SwitchTo(ctx, tab)
	if stepErr == nil {
		stepErr = fn(ctx, tab)
	}

	if closeErr := g.CloseAll(ctx); closeErr != nil {
		if stepErr != nil {
			return errors.Join(stepErr, closeErr)
		}
		return closeErr
	}
	return stepErr
}

// pollUntil 反复执行fn直到成功、返回不可重试的错误或超时
// ErrNotReady 和 ErrElementNotFound 视为可重试
func pollUntil(ctx context.Context, timeout, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrNotReady) && !errors.Is(err, models.ErrElementNotFound) {
			return err
		}
		last = err

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("等待 %s 后仍未就绪: %w", timeout, errors.Join(context.DeadlineExceeded, last))
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
