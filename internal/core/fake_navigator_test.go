package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
)

// fakeNode 内存页面中的一个元素
type fakeNode struct {
	text string
	href string
}

// fakePage 按选择器组织的内存页面
type fakePage struct {
	css   map[string][]*fakeNode
	xpath map[string]*fakeNode
	links map[string]*fakeNode
}

func newFakePage() *fakePage {
	return &fakePage{
		css:   make(map[string][]*fakeNode),
		xpath: make(map[string]*fakeNode),
		links: make(map[string]*fakeNode),
	}
}

func (p *fakePage) find(sel models.Selector) []*fakeNode {
	switch sel.Kind {
	case models.SelectorCSS:
		return p.css[sel.Expr]
	case models.SelectorXPath:
		if n, ok := p.xpath[sel.Expr]; ok {
			return []*fakeNode{n}
		}
	case models.SelectorLinkText:
		if n, ok := p.links[sel.Expr]; ok {
			return []*fakeNode{n}
		}
	}
	return nil
}

type fakeHandle struct {
	tab  models.TabID
	node *fakeNode
}

type fakeTab struct {
	id  models.TabID
	url string
}

// fakeNavigator 内存实现的 models.Navigator
type fakeNavigator struct {
	mu sync.Mutex

	pages   map[string]*fakePage
	tabs    []*fakeTab
	active  models.TabID
	nextTab models.TabID
	nextEl  models.ElementID
	handles map[models.ElementID]fakeHandle

	// emptyReads 节点在返回真实文本前返回空字符串的次数
	emptyReads map[*fakeNode]int
	// keepOpen 为true时CloseTab不真正关闭标签页
	keepOpen bool
	// failOpenAfter 第n次OpenInNewTab起返回错误, 0表示不失败
	failOpenAfter int
	// openOnFailure 为true时失败的OpenInNewTab仍会创建标签页(模拟导航失败)
	openOnFailure bool

	openCount int
	maxTabs   int
	// tabsBeforeOpen 每次OpenInNewTab之前已打开的标签页数量
	tabsBeforeOpen []int
	closed    bool
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{
		pages:      make(map[string]*fakePage),
		handles:    make(map[models.ElementID]fakeHandle),
		emptyReads: make(map[*fakeNode]int),
	}
}

func (f *fakeNavigator) tab(id models.TabID) *fakeTab {
	for _, t := range f.tabs {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (f *fakeNavigator) currentPage() (*fakePage, error) {
	t := f.tab(f.active)
	if t == nil {
		return nil, fmt.Errorf("没有激活的标签页")
	}
	p, ok := f.pages[t.url]
	if !ok {
		return newFakePage(), nil
	}
	return p, nil
}

func (f *fakeNavigator) register(n *fakeNode) models.ElementID {
	f.nextEl++
	f.handles[f.nextEl] = fakeHandle{tab: f.active, node: n}
	return f.nextEl
}

func (f *fakeNavigator) lookup(el models.ElementID) (fakeHandle, error) {
	h, ok := f.handles[el]
	if !ok || f.tab(h.tab) == nil {
		return fakeHandle{}, fmt.Errorf("%w: element %d", models.ErrUnknownHandle, el)
	}
	return h, nil
}

func (f *fakeNavigator) addTab(url string) models.TabID {
	f.nextTab++
	f.tabs = append(f.tabs, &fakeTab{id: f.nextTab, url: url})
	if len(f.tabs) > f.maxTabs {
		f.maxTabs = len(f.tabs)
	}
	return f.nextTab
}

func (f *fakeNavigator) Open(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pages[url]; !ok {
		return fmt.Errorf("404: %s", url)
	}
	if t := f.tab(f.active); t != nil {
		t.url = url
		return nil
	}
	f.active = f.addTab(url)
	return nil
}

func (f *fakeNavigator) Locate(ctx context.Context, sel models.Selector) (models.ElementID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.currentPage()
	if err != nil {
		return 0, err
	}
	nodes := p.find(sel)
	if len(nodes) == 0 {
		return 0, fmt.Errorf("%w: %s", models.ErrElementNotFound, sel)
	}
	return f.register(nodes[0]), nil
}

func (f *fakeNavigator) LocateAll(ctx context.Context, sel models.Selector) ([]models.ElementID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.currentPage()
	if err != nil {
		return nil, err
	}
	nodes := p.find(sel)
	ids := make([]models.ElementID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, f.register(n))
	}
	return ids, nil
}

// WaitFor 与rod一致: 超时返回ErrElementNotFound, ctx先结束时返回ctx的错误
func (f *fakeNavigator) WaitFor(ctx context.Context, sel models.Selector, timeout time.Duration) (models.ElementID, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		el, err := f.Locate(ctx, sel)
		if !errors.Is(err, models.ErrElementNotFound) {
			return el, err
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("等待元素失败 %s: %w", sel, ctx.Err())
		case <-timer.C:
			return 0, err
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeNavigator) Text(ctx context.Context, el models.ElementID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.lookup(el)
	if err != nil {
		return "", err
	}
	if f.emptyReads[h.node] > 0 {
		f.emptyReads[h.node]--
		return "", nil
	}
	return h.node.text, nil
}

func (f *fakeNavigator) Attribute(ctx context.Context, el models.ElementID, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.lookup(el)
	if err != nil {
		return "", false, err
	}
	if name == "href" && h.node.href != "" {
		return h.node.href, true, nil
	}
	return "", false, nil
}

func (f *fakeNavigator) Click(ctx context.Context, el models.ElementID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.lookup(el)
	if err != nil {
		return err
	}
	if h.node.href != "" {
		f.tab(h.tab).url = h.node.href
	}
	return nil
}

func (f *fakeNavigator) OpenInNewTab(ctx context.Context, el models.ElementID) (models.TabID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.lookup(el)
	if err != nil {
		return models.NoTab, err
	}
	f.openCount++
	f.tabsBeforeOpen = append(f.tabsBeforeOpen, len(f.tabs))
	if f.failOpenAfter > 0 && f.openCount >= f.failOpenAfter {
		if f.openOnFailure {
			return f.addTab(h.node.href), fmt.Errorf("新标签页导航失败: %s", h.node.href)
		}
		return models.NoTab, fmt.Errorf("浏览器拒绝打开新标签页")
	}
	return f.addTab(h.node.href), nil
}

func (f *fakeNavigator) Tabs(ctx context.Context) ([]models.TabID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]models.TabID, 0, len(f.tabs))
	for _, t := range f.tabs {
		ids = append(ids, t.id)
	}
	return ids, nil
}

func (f *fakeNavigator) Active() models.TabID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeNavigator) SwitchTo(ctx context.Context, tab models.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tab(tab) == nil {
		return fmt.Errorf("%w: tab %d", models.ErrUnknownHandle, tab)
	}
	f.active = tab
	return nil
}

func (f *fakeNavigator) CloseTab(ctx context.Context, tab models.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tab(tab) == nil {
		return fmt.Errorf("%w: tab %d", models.ErrUnknownHandle, tab)
	}
	if f.keepOpen {
		return nil
	}
	for i, t := range f.tabs {
		if t.id == tab {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			break
		}
	}
	for id, h := range f.handles {
		if h.tab == tab {
			delete(f.handles, id)
		}
	}
	if f.active == tab {
		f.active = models.NoTab
	}
	return nil
}

func (f *fakeNavigator) Release(el models.ElementID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, el)
}

func (f *fakeNavigator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.tabs = nil
	f.active = models.NoTab
	return nil
}

func (f *fakeNavigator) tabCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tabs)
}

// scriptedOperator 按预设脚本回答的 models.Operator
type scriptedOperator struct {
	answers []string
	asked   []string
	said    []string
	// onAsk 每次提问时回调,用于在交互点检查状态
	onAsk func(prompt string)
}

func newScriptedOperator(answers ...string) *scriptedOperator {
	return &scriptedOperator{answers: answers}
}

func (o *scriptedOperator) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o.asked = append(o.asked, prompt)
	if o.onAsk != nil {
		o.onAsk(prompt)
	}
	if len(o.answers) == 0 {
		return "", io.EOF
	}
	a := o.answers[0]
	o.answers = o.answers[1:]
	return a, nil
}

func (o *scriptedOperator) Say(format string, args ...interface{}) {
	o.said = append(o.said, fmt.Sprintf(format, args...))
}

func (o *scriptedOperator) output() string {
	return strings.Join(o.said, "\n")
}

// 测试站点

const (
	testBaseURL     = "https://dex.test/pokedex"
	testCatalogURL  = "https://dex.test/pokedex/game/red-blue"
	testTableXPath  = `//*[@id="tab-basic-%d"]/div[1]/div[2]/table`
	testEntryLinks  = "a.ent-name"
	testNextNav     = ".entity-nav-next"
	testPrevNav     = ".entity-nav-prev"
	testConsentSel  = ".gdpr-decline"
	testCatalogItem = "li"
)

func testSiteConfig() models.SiteConfig {
	return models.SiteConfig{
		BaseURL:             testBaseURL,
		ConsentSelector:     testConsentSel,
		CatalogItemSelector: testCatalogItem,
		CatalogRangeStart:   1,
		CatalogRangeEnd:     3,
		EntryLinkSelector:   testEntryLinks,
		NextSelector:        testNextNav,
		PrevSelector:        testPrevNav,
		AttributeTableXPath: testTableXPath,
		AttributeLabel:      "Type",
	}
}

func testTimeouts() models.TimeoutConfig {
	return models.TimeoutConfig{
		PageLoad:     200 * time.Millisecond,
		Entry:        time.Second,
		PollInterval: 5 * time.Millisecond,
	}
}

// testEntry 测试站点中的一个条目
type testEntry struct {
	name string
	id   int
	tags string // 属性行, 如 "Type Grass Poison"
	next bool   // 是否有"下一个"导航
}

// addEntryPage 添加条目页, 返回其URL
func (f *fakeNavigator) addEntryPage(e testEntry) string {
	url := "https://dex.test/pokedex/" + strings.ToLower(e.name)
	p := newFakePage()
	if e.next {
		p.css[testNextNav] = []*fakeNode{{text: fmt.Sprintf("#%04d Next", e.id+1)}}
	}
	if e.id > 1 {
		p.css[testPrevNav] = []*fakeNode{{text: fmt.Sprintf("#%04d Prev", e.id-1)}}
	}
	p.xpath[fmt.Sprintf(testTableXPath, e.id)] = &fakeNode{
		text: fmt.Sprintf("National № %04d\n%s\nSpecies Test", e.id, e.tags),
	}
	f.pages[url] = p
	return url
}

// newTestSite 构建索引页、"Red & Blue"子图鉴和其中的条目
func newTestSite(entries ...testEntry) *fakeNavigator {
	f := newFakeNavigator()

	index := newFakePage()
	index.css[testCatalogItem] = []*fakeNode{
		{text: "Home"},
		{text: "Red & Blue (Kanto)"},
		{text: "Gold & Silver"},
		{text: "About"},
	}
	index.css[testConsentSel] = []*fakeNode{{text: "Decline"}}
	index.links["Red & Blue"] = &fakeNode{text: "Red & Blue", href: testCatalogURL}
	index.links["Gold & Silver"] = &fakeNode{text: "Gold & Silver", href: "https://dex.test/pokedex/game/gold-silver"}
	f.pages[testBaseURL] = index

	catalog := newFakePage()
	for _, e := range entries {
		url := f.addEntryPage(e)
		catalog.css[testEntryLinks] = append(catalog.css[testEntryLinks], &fakeNode{text: e.name, href: url})
	}
	f.pages[testCatalogURL] = catalog
	return f
}

// grassPoisonFire 三个条目: A[GRASS POISON] B[FIRE] C[GRASS], C是最后一个条目
func grassPoisonFire() []testEntry {
	return []testEntry{
		{name: "Bulbasaur", id: 1, tags: "Type Grass Poison", next: true},
		{name: "Charmander", id: 4, tags: "Type Fire", next: true},
		{name: "Chikorita", id: 152, tags: "Type Grass", next: false},
	}
}

// openCatalog 打开子图鉴页并返回条目引用
func openCatalog(f *fakeNavigator) ([]models.EntryRef, error) {
	ctx := context.Background()
	if err := f.Open(ctx, testCatalogURL); err != nil {
		return nil, err
	}
	return DiscoverEntries(ctx, f, testEntryLinks)
}
