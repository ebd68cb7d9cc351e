package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/core"
	"github.com/RecoveryAshes/TypeDex/internal/crawlers"
	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 浏览器参数
	targetURL  string
	headless   bool
	browserBin string
)

// appConfig 在PersistentPreRunE中加载,子命令共用
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "typedex",
	Short: "按属性浏览宝可梦图鉴",
	Long: `TypeDex - 宝可梦图鉴属性浏览工具

打开图鉴网站,选择一个子图鉴后逐个访问其中的条目,
按属性(Grass, Fire, ...)建立索引,然后按属性批量打开条目供浏览。

HTTP头部配置示例:
  # 通过配置文件 (configs/headers.yaml)
  typedex

  # 通过命令行参数
  typedex -H "User-Agent: MyBot/1.0" -H "Accept-Language: de-DE"

  # 只列出子图鉴,不启动浏览器
  typedex catalogs

  # 验证配置文件
  typedex --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		var headlessFlag *bool
		if cmd.Flags().Changed("headless") {
			headlessFlag = &headless
		}
		if verbose && logLevel == "" {
			logLevel = "debug"
		}
		config.MergeCLIFlags(targetURL, logLevel, browserBin, headlessFlag)

		if err := utils.InitLogger(config.Logging.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		headerManager, err := core.NewHeaderManager("", headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		if validateConfig {
			return runValidate(appConfig, headerManager)
		}

		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("HTTP头部配置无效: %w", err)
		}

		return runSession(ctx, appConfig, headerManager)
	},
}

// runSession 启动浏览器并运行一次交互会话
// 浏览器在返回前关闭,无论会话是否出错
func runSession(ctx context.Context, cfg *core.Config, headerManager *core.HeaderManager) error {
	monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		CPULoadThreshold:    80,
		MaxTabsLimit:        cfg.Session.MaxTabsLimit,
	})
	monitor.StartMonitoring(time.Second)
	defer monitor.StopMonitoring()

	utils.Infof("启动浏览器 (headless=%v, stealth=%v)", cfg.Browser.Headless, cfg.Browser.Stealth)
	nav, err := crawlers.NewRodNavigator(cfg.Browser, headerManager)
	if err != nil {
		return err
	}
	defer func() {
		if err := nav.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}()

	console := utils.NewConsole(os.Stdin, os.Stdout)
	session := core.NewSession(cfg, nav, console).WithBudget(monitor)
	utils.Debugf("会话 %s 使用的HTTP头部: %s", session.ID, headerManager.SafeString())

	err = session.Run(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrOperatorAborted):
		utils.Warnf("会话已结束: %v", err)
		return nil
	case errors.Is(err, context.Canceled):
		utils.Warn("收到中断信号,已关闭所有标签页")
		return nil
	default:
		return err
	}
}

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "列出可选的子图鉴(不启动浏览器)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := appConfig.Site.Validate(); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}
		headerManager, err := core.NewHeaderManager("", headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		scout := crawlers.NewCatalogScout(appConfig.Site, headerManager, appConfig.Timeouts.PageLoad, appConfig.Browser.IgnoreCertErrors)
		options, err := scout.List(ctx)
		if err != nil {
			return fmt.Errorf("列出子图鉴失败: %w", err)
		}

		out := cmd.OutOrStdout()
		for i, opt := range options {
			fmt.Fprintf(out, "[%d]: %s -> %s\n", i, opt.Label, opt.Target)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "typedex %s (构建时间: %s)\n", Version, BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径 (默认搜索 ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP请求头 (可重复使用), 格式: 'Name: Value'")
	rootCmd.PersistentFlags().StringVarP(&targetURL, "url", "u", "", "图鉴索引页URL (覆盖配置文件)")

	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件并显示当前有效的HTTP头部")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "无头模式运行浏览器")
	rootCmd.Flags().StringVar(&browserBin, "browser-bin", "", "浏览器可执行文件路径 (默认自动下载)")

	rootCmd.AddCommand(catalogsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		utils.Logger.Error().Err(err).Msg("程序异常退出")
		os.Exit(1)
	}
}
