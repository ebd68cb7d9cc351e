package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/RecoveryAshes/TypeDex/internal/models"
)

func testConfig() *Config {
	return &Config{
		Site:     testSiteConfig(),
		Timeouts: testTimeouts(),
		Session:  models.SessionConfig{MaxInputAttempts: 3, ShowTagSummary: true, MaxTabsLimit: 10},
	}
}

func TestSession_Run(t *testing.T) {
	nav := newTestSite(grassPoisonFire()...)
	op := newScriptedOperator("0", "POISON", "", "n")

	s := NewSession(testConfig(), nav, op).WithBudget(fixedBudget(5)).WithProgressOutput(io.Discard)
	if s.ID == "" {
		t.Error("会话应有ID")
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := s.BuildStats()
	if stats.Entries != 3 || stats.Tags != 3 {
		t.Errorf("BuildStats() = %+v", stats)
	}
	out := op.output()
	for _, want := range []string{"[0]: Red & Blue (Kanto)", "[1]: Gold & Silver", "Red & Blue: 3个条目, 3种属性", "已打开1个 POISON 属性的条目"} {
		if !strings.Contains(out, want) {
			t.Errorf("输出缺少 %q:\n%s", want, out)
		}
	}
	if nav.tabCount() != 1 {
		t.Errorf("会话结束后应只剩1个标签页, 实际 %d", nav.tabCount())
	}
}

func TestSession_EmptyCatalog(t *testing.T) {
	nav := newTestSite(grassPoisonFire()...)
	op := newScriptedOperator("1")

	err := NewSession(testConfig(), nav, op).WithProgressOutput(io.Discard).Run(context.Background())
	if !models.IsStructural(err) {
		t.Fatalf("空子图鉴应返回StructureError, 得到 %v", err)
	}
}

func TestSession_SiteUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Site.BaseURL = "https://dex.test/missing"

	err := NewSession(cfg, newTestSite(), newScriptedOperator()).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "打开站点失败") {
		t.Fatalf("期望打开站点失败, 得到 %v", err)
	}
}

func TestSession_OperatorAborts(t *testing.T) {
	nav := newTestSite(grassPoisonFire()...)
	err := NewSession(testConfig(), nav, newScriptedOperator("x")).Run(context.Background())
	if !errors.Is(err, models.ErrOperatorAborted) {
		t.Fatalf("期望ErrOperatorAborted, 得到 %v", err)
	}
}

func TestSession_NoConsentPopup(t *testing.T) {
	nav := newTestSite(grassPoisonFire()...)
	delete(nav.pages[testBaseURL].css, testConsentSel)
	op := newScriptedOperator("0")

	// 没有隐私弹窗不影响后续流程,输入在探索阶段结束
	if err := NewSession(testConfig(), nav, op).WithProgressOutput(io.Discard).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestDiscoverEntries_Empty(t *testing.T) {
	nav := newTestSite()
	if _, err := openCatalog(nav); !models.IsStructural(err) {
		t.Fatalf("没有条目时应返回StructureError, 得到 %v", err)
	}
}
