// Package crawlers 提供基于浏览器和基于HTTP的两种图鉴访问方式
//
// # 核心组件
//
// ## RodNavigator
//
// 基于go-rod的 models.Navigator 实现。浏览器对象只存在于本包内,
// 外部只能拿到整数句柄(TabID/ElementID)。
// 每个新标签页都会注入stealth脚本,应用HeaderProvider提供的头部,
// 并按配置拦截blocked_urls中的请求。
//
//	nav, err := NewRodNavigator(cfg.Browser, headerManager)
//	if err != nil { /* 处理错误 */ }
//	defer nav.Close()
//
// ## CatalogScout
//
// 基于Colly的静态探测器,不启动浏览器,只抓取索引页并列出子图鉴。
// 响应体按Content-Encoding解压(gzip, deflate, br)后用x/net/html解析。
//
//	scout := NewCatalogScout(cfg.Site, headerManager, 30*time.Second, false)
//	options, err := scout.List(ctx)
//
// ## PagePool
//
// 标签页和元素句柄的注册表。关闭标签页时吊销其上的所有元素句柄,
// 句柄从不复用。
//
// ## ResourceMonitor
//
// 根据可用内存和CPU负载估算同时打开的标签页上限。
// 探索阶段一次打开的标签页超过上限时只给出警告,不拒绝打开。
//
//	monitor := NewResourceMonitor(ResourceMonitorConfig{MaxTabsLimit: 30})
//	monitor.StartMonitoring(time.Second)
//	defer monitor.StopMonitoring()
//
// # 并发安全
//
// PagePool和ResourceMonitor可以并发调用。
// RodNavigator的活动标签页是共享状态,调用方应在同一个goroutine中驱动它。
package crawlers
