package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	defaultTabMemoryUsage = 100 * 1024 * 1024 // 100MB
	maxTabsCacheTTL       = time.Second
)

// ResourceMonitor 系统资源监控器
// 根据可用内存和CPU负载估算还能同时打开多少个标签页
type ResourceMonitor struct {
	config ResourceMonitorConfig
	sample func() (ResourceSample, error)

	// 缓存的CalculateMaxTabs结果
	cachedMaxTabs int
	lastCacheTime time.Time
	cacheMu       sync.Mutex

	// 后台采样的CPU使用率
	lastCPUUsage float64
	cpuMu        sync.RWMutex

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64   // 留给系统的内存(字节)
	TabMemoryUsage      int64   // 单个标签页平均内存消耗(字节)
	CPULoadThreshold    float64 // CPU负载阈值(%), 超过时上限减半; >=100 视为禁用
	MaxTabsLimit        int     // 绝对最大标签页数
}

// ResourceSample 一次资源采样
type ResourceSample struct {
	AvailableMemory uint64  // 系统可用内存(字节)
	CPUPercent      float64 // 全部核心的平均使用率
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.TabMemoryUsage <= 0 {
		config.TabMemoryUsage = defaultTabMemoryUsage
	}
	if config.MaxTabsLimit < 1 {
		config.MaxTabsLimit = 1
	}
	rm := &ResourceMonitor{config: config}
	rm.sample = rm.systemSample
	return rm
}

// systemSample 使用gopsutil读取系统内存,CPU使用率取后台采样值
func (rm *ResourceMonitor) systemSample() (ResourceSample, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSample{}, fmt.Errorf("获取系统内存失败: %w", err)
	}
	rm.cpuMu.RLock()
	usage := rm.lastCPUUsage
	rm.cpuMu.RUnlock()
	return ResourceSample{AvailableMemory: vm.Available, CPUPercent: usage}, nil
}

// StartMonitoring 启动后台CPU采样,重复调用无效
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancelFunc != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 采样窗口100ms,避免阻塞过久
			percentages, err := cpu.Percent(100*time.Millisecond, false)
			if err != nil || len(percentages) == 0 {
				utils.Logger.Debug().Err(err).Msg("获取CPU使用率失败")
				continue
			}
			rm.cpuMu.Lock()
			rm.lastCPUUsage = percentages[0]
			rm.cpuMu.Unlock()
		}
	}
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.cancelFunc = nil
	}
}

// CalculateMaxTabs 当前建议同时打开的最大标签页数,结果缓存1秒
// 采样失败时返回配置的上限
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	rm.cacheMu.Lock()
	defer rm.cacheMu.Unlock()

	if rm.cachedMaxTabs > 0 && time.Since(rm.lastCacheTime) < maxTabsCacheTTL {
		return rm.cachedMaxTabs
	}

	s, err := rm.sample()
	if err != nil {
		utils.Logger.Warn().Err(err).Msg("资源采样失败,使用配置的标签页上限")
		return rm.config.MaxTabsLimit
	}

	result := rm.maxTabsFor(s)
	rm.cachedMaxTabs = result
	rm.lastCacheTime = time.Now()
	return result
}

func (rm *ResourceMonitor) maxTabsFor(s ResourceSample) int {
	usable := int64(s.AvailableMemory) - rm.config.SafetyReserveMemory
	result := int(usable / rm.config.TabMemoryUsage)

	if rm.config.CPULoadThreshold > 0 && rm.config.CPULoadThreshold < 100 && s.CPUPercent > rm.config.CPULoadThreshold {
		result /= 2
	}
	if result > rm.config.MaxTabsLimit {
		result = rm.config.MaxTabsLimit
	}
	if result < 1 {
		result = 1
	}
	return result
}

// CheckResourceAvailability 检查是否还能再打开want个标签页
func (rm *ResourceMonitor) CheckResourceAvailability(want int) (bool, string) {
	limit := rm.CalculateMaxTabs()
	if want > limit {
		return false, fmt.Sprintf("需要%d个标签页,当前资源建议不超过%d个", want, limit)
	}
	return true, ""
}
