package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
	"github.com/rs/zerolog"
)

// maxConsentWait 隐私弹窗的最长等待时间
const maxConsentWait = 5 * time.Second

// Session 一次完整的交互会话
// 打开站点 -> 关闭隐私弹窗 -> 选择子图鉴 -> 构建索引 -> 探索
type Session struct {
	ID string

	cfg         *Config
	nav         models.Navigator
	op          models.Operator
	budget      TabBudget
	progressOut io.Writer
	log         zerolog.Logger

	stats models.BuildStats
}

// NewSession 创建会话
func NewSession(cfg *Config, nav models.Navigator, op models.Operator) *Session {
	id := models.NewSessionID()
	return &Session{
		ID:  id,
		cfg: cfg,
		nav: nav,
		op:  op,
		log: utils.WithSession(id),
	}
}

// WithBudget 设置批量打开标签页的资源预算
func (s *Session) WithBudget(budget TabBudget) *Session {
	s.budget = budget
	return s
}

// WithProgressOutput 设置索引进度条的输出
func (s *Session) WithProgressOutput(w io.Writer) *Session {
	s.progressOut = w
	return s
}

// BuildStats 索引构建统计
func (s *Session) BuildStats() models.BuildStats {
	return s.stats
}

// Run 执行会话
// 返回的StructureError表示页面结构与预期不符,调用方应释放浏览器后以非零状态退出
func (s *Session) Run(ctx context.Context) error {
	site := s.cfg.Site
	timeouts := s.cfg.Timeouts

	s.log.Info().Str("url", site.BaseURL).Msg("打开图鉴索引页")
	if err := s.openSite(ctx, site.BaseURL); err != nil {
		return err
	}
	s.dismissConsent(ctx)

	selector := NewCatalogSelector(s.nav, s.op, site, timeouts.PageLoad, s.cfg.Session.MaxInputAttempts)
	options, err := selector.ListOptions(ctx)
	if err != nil {
		return err
	}
	choice, err := selector.Choose(ctx, options)
	if err != nil {
		return err
	}
	for _, opt := range options {
		s.nav.Release(opt.Element)
	}
	if err := selector.Enter(ctx, choice); err != nil {
		return err
	}

	refs, err := DiscoverEntries(ctx, s.nav, site.EntryLinkSelector)
	if err != nil {
		return err
	}
	s.log.Info().Str("catalog", choice.Target).Int("entries", len(refs)).Msg("开始构建属性索引")

	builder := NewIndexBuilder(
		NewIdentifierResolver(site, timeouts.PageLoad),
		NewTagExtractor(site, timeouts),
		timeouts.Entry,
		s.progressOut,
	)
	index, stats, err := builder.Build(ctx, s.nav, refs)
	if err != nil {
		return err
	}
	s.stats = stats
	s.log.Info().
		Int("entries", stats.Entries).
		Int("tags", stats.Tags).
		Int("links", stats.Links).
		Float64("duration", stats.Duration).
		Msg("属性索引构建完成")
	s.op.Say("%s: %d个条目, %d种属性, 耗时%.1f秒", choice.Target, stats.Entries, stats.Tags, stats.Duration)

	guard, err := NewTabGuard(ctx, s.nav)
	if err != nil {
		return err
	}
	explorer := NewExplorationSession(s.nav, s.op, index, guard, s.cfg.Session, s.budget, s.log)
	return explorer.Run(ctx)
}

func (s *Session) openSite(ctx context.Context, url string) error {
	openCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.PageLoad)
	defer cancel()
	if err := s.nav.Open(openCtx, url); err != nil {
		return fmt.Errorf("打开站点失败 [%s]: %w", url, err)
	}
	return nil
}

// dismissConsent 尽力关闭隐私弹窗,弹窗不存在不算错误
func (s *Session) dismissConsent(ctx context.Context) {
	sel := s.cfg.Site.ConsentSelector
	if sel == "" {
		return
	}
	wait := s.cfg.Timeouts.PageLoad
	if wait > maxConsentWait {
		wait = maxConsentWait
	}

	el, err := s.nav.WaitFor(ctx, models.CSS(sel), wait)
	if err != nil {
		s.log.Debug().Err(err).Msg("未发现隐私弹窗")
		return
	}
	defer s.nav.Release(el)
	if err := s.nav.Click(ctx, el); err != nil {
		s.log.Warn().Err(err).Msg("关闭隐私弹窗失败")
		return
	}
	s.log.Debug().Msg("已关闭隐私弹窗")
}

// DiscoverEntries 读取当前页面上的所有条目链接
// 没有任何条目时返回StructureError
func DiscoverEntries(ctx context.Context, nav models.Navigator, linkSelector string) ([]models.EntryRef, error) {
	sel := models.CSS(linkSelector)
	els, err := nav.LocateAll(ctx, sel)
	if err != nil {
		return nil, &models.StructureError{What: "条目链接", Detail: sel.String(), Cause: err}
	}
	if len(els) == 0 {
		return nil, &models.StructureError{What: "条目链接", Detail: "子图鉴中没有条目"}
	}

	refs := make([]models.EntryRef, 0, len(els))
	for i, el := range els {
		label, err := nav.Text(ctx, el)
		if err != nil {
			return nil, &models.StructureError{What: "条目链接", Detail: "无法读取文本", Cause: err}
		}
		refs = append(refs, models.EntryRef{Position: i, Element: el, Label: strings.TrimSpace(label)})
	}
	return refs, nil
}
