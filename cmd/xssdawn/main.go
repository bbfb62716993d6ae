package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/core"
	"github.com/RecoveryAshes/XSSdawn/internal/database"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
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
	headers        []string
	validateConfig bool

	// 扫描参数
	targetURL       string
	urlFile         string
	allowSubdomains bool
	legacyScope     bool
	maxPages        int
	requestTimeout  int
	outputFile      string
	gfEnabled       bool
	gfPatternsDir   string
	arjunEnabled    bool
	noArchive       bool
	noParamSpider   bool
	dbDir           string
	noProgress      bool

	// 批量处理参数
	batchDelay      int
	continueOnError bool

	// history参数
	historyTarget string
	historyLimit  int
	historyShow   string
)

// appConfig 在PersistentPreRunE中加载
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "xssdawn",
	Short: "参数URL收集工具",
	Long: `XSSdawn - 面向XSS测试的参数URL收集工具 (Go版本)

从目标站点出发广度优先爬取同作用域页面, 收集所有带查询参数的URL,
并与历史归档、参数挖掘结果合并:
  • 内置BFS爬取 (精确主机 / 子域名作用域)
  • Wayback Machine 历史URL
  • ParamSpider 风格的参数模板 (值替换为 FUZZ)
  • gf 模式过滤
  • Arjun 隐藏参数扫描
  • 扫描历史与新增URL统计

示例:
  xssdawn -t https://example.com
  xssdawn -t https://example.com -s --max-pages 500 -o urls.txt --gf
  xssdawn -f targets.txt --no-archive
  xssdawn -t https://example.com -H "Cookie: session=abc"
  xssdawn history --target https://example.com

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig = cfg

		logConfig := utils.LogConfig{
			Level:      cfg.Logging.Level,
			LogDir:     cfg.Logging.LogDir,
			MaxSize:    cfg.Logging.Rotation.MaxSize,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			Compress:   cfg.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if verbose {
			logConfig.Level = "debug"
		}
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		return nil
	},
	RunE: runScan,
}

// runScan 根命令: 单目标或批量扫描
func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	headerManager, err := core.NewHeaderManager(appConfig.HeadersFile, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	if validateConfig {
		return runValidateConfig(headerManager)
	}

	// 没有提供目标时显示帮助
	if targetURL == "" && urlFile == "" {
		return cmd.Help()
	}

	if err := ValidateFlags(targetURL, urlFile, maxPages, requestTimeout, batchDelay); err != nil {
		return err
	}

	appConfig.MergeCLIFlags(cliOverrides(cmd))
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	// 头部错误在开始扫描前暴露
	if _, err := headerManager.GetHeaders(); err != nil {
		return fmt.Errorf("HTTP头部配置无效: %w", err)
	}

	printBanner()

	var opts []core.ScannerOption
	if appConfig.Storage.Enabled {
		db, err := database.Open(appConfig.Storage.Dir)
		if err != nil {
			utils.Warnf("扫描历史不可用, 继续扫描: %v", err)
		} else {
			defer db.Close()
			opts = append(opts, core.WithResultDB(db))
			utils.Debugf("扫描历史: %s", db.Path())
		}
	}

	if urlFile != "" {
		urls, err := utils.ReadURLsFromFile(urlFile)
		if err != nil {
			return fmt.Errorf("读取URL文件失败: %w", err)
		}

		batchScanner := core.NewBatchScanner(appConfig, headerManager, batchDelay, continueOnError, opts...)
		if _, err := batchScanner.ScanBatch(ctx, urls); err != nil {
			if errors.Is(err, context.Canceled) {
				utils.Warn("⚠️ 批量扫描被中断, 已完成目标的结果已保存")
				return nil
			}
			return fmt.Errorf("批量扫描失败: %w", err)
		}

		utils.Info("✨ 批量扫描任务完成!")
		return nil
	}

	scanner, err := core.NewScanner(targetURL, appConfig, headerManager, opts...)
	if err != nil {
		return fmt.Errorf("创建扫描器失败: %w", err)
	}

	report, err := scanner.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			utils.Warn("⚠️ 扫描被中断, 部分结果已保存")
			return nil
		}
		return fmt.Errorf("扫描失败: %w", err)
	}

	utils.Info("✨ 扫描任务完成!")
	return nil
}

// cliOverrides 只收集用户显式指定的参数
func cliOverrides(cmd *cobra.Command) config.CLIOverrides {
	flags := cmd.Flags()
	o := config.CLIOverrides{
		NoArchive:     noArchive,
		NoParamSpider: noParamSpider,
		NoProgress:    noProgress,
	}
	if flags.Changed("max-pages") {
		o.MaxPages = &maxPages
	}
	if flags.Changed("subdomains") {
		o.AllowSubdomains = &allowSubdomains
	}
	if flags.Changed("legacy-scope") {
		o.LegacySubdomainMatch = &legacyScope
	}
	if flags.Changed("timeout") {
		o.RequestTimeout = &requestTimeout
	}
	if flags.Changed("output") {
		o.OutputFile = &outputFile
	}
	if flags.Changed("gf") {
		o.GF = &gfEnabled
	}
	if flags.Changed("gf-patterns") {
		o.GFPatternsDir = &gfPatternsDir
	}
	if flags.Changed("arjun") {
		o.Arjun = &arjunEnabled
	}
	if flags.Changed("db") {
		o.StorageDir = &dbDir
	}
	return o
}

// runValidateConfig 验证配置文件与HTTP头部
func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := headerManager.LoadConfig(); err != nil {
		return fmt.Errorf("加载头部配置失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("头部验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(names))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

func printBanner() {
	fmt.Fprintln(os.Stderr, `
 __  ______ ____      _
 \ \/ / ___/ ___|  __| | __ ___      ___ __
  \  /\___ \___ \ / _' |/ _' \ \ /\ / / '_ \
  /  \ ___) |__) | (_| | (_| |\ V  V /| | | |
 /_/\_\____/____/ \__,_|\__,_| \_/\_/ |_| |_|  `+Version)
}

// printReport 扫描统计输出到stdout
func printReport(report *models.ScanReport) {
	fmt.Println("==================================================")
	fmt.Println("📊 扫描统计")
	fmt.Println("==================================================")
	fmt.Printf("🎯 目标: %s\n", report.TargetURL)
	fmt.Printf("✅ 访问页面数: %d (失败 %d)\n", report.Crawl.VisitedURLs, report.Crawl.FailedURLs)
	for _, s := range report.Sources {
		if s.Error != "" {
			fmt.Printf("⚠️  %-12s %6d 个URL (错误: %s)\n", s.Name, s.URLs, s.Error)
			continue
		}
		fmt.Printf("🔗 %-12s %6d 个URL\n", s.Name, s.URLs)
	}
	fmt.Printf("📦 合并URL数: %d (新增 %d)\n", report.MergedURLs, report.NewURLs)
	if report.FilteredURLs > 0 {
		fmt.Printf("🔎 gf过滤后: %d\n", report.FilteredURLs)
	}
	fmt.Printf("💾 输出文件: %s\n", report.OutputFile)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", report.Duration)
	fmt.Println("==================================================")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("XSSdawn %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查看扫描历史",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("db") {
			appConfig.Storage.Dir = dbDir
		}

		db, err := database.Open(appConfig.Storage.Dir)
		if err != nil {
			return err
		}
		defer db.Close()

		if historyShow != "" {
			urls, err := db.ScanURLs(cmd.Context(), historyShow)
			if err != nil {
				return err
			}
			for _, u := range urls {
				fmt.Printf("%s\t%s\n", u.Source, u.URL)
			}
			return nil
		}

		records, err := db.ListScans(cmd.Context(), historyTarget, historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			utils.Info("没有扫描记录")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  %s  %-9s 合并 %5d  新增 %5d  %s\n",
				rec.ID,
				rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
				rec.Report.Status,
				rec.Report.MergedURLs,
				rec.Report.NewURLs,
				rec.Target,
			)
		}
		return nil
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式 (debug日志)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&dbDir, "db", "", "扫描历史数据库目录 (默认 $XDG_DATA_HOME/xssdawn)")

	// HTTP头部参数
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 扫描参数
	rootCmd.Flags().StringVarP(&targetURL, "target", "t", "", "目标URL (如 https://example.com)")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含目标列表的文件路径")
	rootCmd.Flags().BoolVarP(&allowSubdomains, "subdomains", "s", false, "允许爬取子域名")
	rootCmd.Flags().BoolVar(&legacyScope, "legacy-scope", false, "子域名作用域使用子串匹配 (旧版行为)")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 100, "最大爬取页面数")
	rootCmd.Flags().IntVar(&requestTimeout, "timeout", 10, "单次请求超时(秒)")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "merged_urls.txt", "合并URL输出文件")
	rootCmd.Flags().BoolVar(&gfEnabled, "gf", false, "使用gf模式过滤合并结果")
	rootCmd.Flags().StringVar(&gfPatternsDir, "gf-patterns", "", "gf模式目录 (默认 ~/.gf)")
	rootCmd.Flags().BoolVar(&arjunEnabled, "arjun", false, "对目标运行Arjun隐藏参数扫描")
	rootCmd.Flags().BoolVar(&noArchive, "no-archive", false, "不查询Wayback Machine历史URL")
	rootCmd.Flags().BoolVar(&noParamSpider, "no-paramspider", false, "不生成ParamSpider参数模板")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理目标间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理下一个目标")

	// history参数
	historyCmd.Flags().StringVarP(&historyTarget, "target", "t", "", "只显示该目标的记录")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "最多显示的记录数 (0为不限制)")
	historyCmd.Flags().StringVar(&historyShow, "show", "", "显示指定扫描ID的全部URL")

	rootCmd.AddCommand(versionCmd, historyCmd)
}

func main() {
	// Ctrl+C 取消扫描上下文, 已收集的结果仍会写盘
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
