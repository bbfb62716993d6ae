package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/crawlers"
	"github.com/RecoveryAshes/XSSdawn/internal/database"
	"github.com/RecoveryAshes/XSSdawn/internal/filters"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/sources"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Scanner 单目标扫描协调器
//
// 执行流程:
//  1. 爬取与各外部数据源并发收集URL
//  2. 合并去重, 排序后写入输出文件
//  3. 可选: gf过滤、Arjun隐藏参数扫描
//  4. 生成报告, 写入扫描历史
type Scanner struct {
	cfg        *config.Config
	targetURL  string
	outputFile string

	headerProvider models.HeaderProvider
	fetcher        models.PageFetcher
	sources        []models.URLSource
	arjun          *ArjunRunner
	db             *database.ResultDB
	reporter       *utils.Reporter
	redactor       *utils.HeaderRedactor

	// 最近一次Run各来源的结果
	results map[string]models.URLSet
}

// ScannerOption Scanner可选项
type ScannerOption func(*Scanner)

// WithURLSources 替换按配置创建的外部数据源
func WithURLSources(srcs ...models.URLSource) ScannerOption {
	return func(s *Scanner) {
		s.sources = srcs
	}
}

// WithResultDB 扫描结束后写入扫描历史
func WithResultDB(db *database.ResultDB) ScannerOption {
	return func(s *Scanner) {
		s.db = db
	}
}

// WithOutputFile 覆盖配置中的输出文件
func WithOutputFile(path string) ScannerOption {
	return func(s *Scanner) {
		s.outputFile = path
	}
}

// WithPageFetcher 替换默认的Colly页面抓取器
func WithPageFetcher(fetcher models.PageFetcher) ScannerOption {
	return func(s *Scanner) {
		s.fetcher = fetcher
	}
}

// NewScanner 创建扫描器
// 目标URL不合法时返回 models.ErrInvalidSeed
func NewScanner(targetURL string, cfg *config.Config, headerProvider models.HeaderProvider, opts ...ScannerOption) (*Scanner, error) {
	if _, err := models.ParseSeed(targetURL); err != nil {
		return nil, err
	}

	s := &Scanner{
		cfg:            cfg,
		targetURL:      targetURL,
		outputFile:     cfg.Output.File,
		headerProvider: headerProvider,
		redactor:       utils.NewHeaderRedactor(),
	}

	if cfg.Sources.Archive.Enabled {
		s.sources = append(s.sources, sources.NewArchiveSource(cfg.Sources.Archive, headerProvider))
	}
	if cfg.Sources.ParamSpider.Enabled {
		s.sources = append(s.sources, sources.NewParamSpiderSource(cfg.Sources.ParamSpider, headerProvider))
	}
	if cfg.Tools.Arjun.Enabled {
		s.arjun = NewArjunRunner(cfg.Tools.Arjun)
	}
	if cfg.Output.ReportDir != "" {
		s.reporter = utils.NewReporter(cfg.Output.ReportDir)
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = crawlers.NewStaticFetcher(cfg.GetCrawlConfig(), headerProvider)
	}

	return s, nil
}

// Run 执行扫描
//
// ctx被取消时爬取在两次抓取之间停止, 已收集的结果仍会写入输出文件和报告,
// 报告状态为partial, 同时返回ctx.Err().
// 只有输出文件写入失败会使扫描失败; 单个数据源、gf、Arjun、报告与历史写入的失败只记录日志.
func (s *Scanner) Run(ctx context.Context) (*models.ScanReport, error) {
	report, err := models.NewScanReport(s.targetURL, s.cfg.Crawl)
	if err != nil {
		return nil, err
	}
	report.OutputFile = s.outputFile

	utils.Infof("🚀 开始扫描: %s", s.redactor.RedactURL(s.targetURL))
	utils.Infof("数据源: %d 个外部来源 + 爬取 (最大 %d 页)", len(s.sources), s.cfg.Crawl.MaxPages)

	s.results = s.collect(ctx, report)

	sets := make([]models.URLSet, 0, len(s.results))
	for _, set := range s.results {
		sets = append(sets, set)
	}
	merged := models.Union(sets...)
	report.MergedURLs = merged.Len()

	interrupted := ctx.Err() != nil
	// 取消后仍要落盘, 后续步骤不受取消影响
	persistCtx := context.WithoutCancel(ctx)

	report.NewURLs = s.countNewURLs(persistCtx, merged)

	if err := utils.WriteLines(s.outputFile, merged.Sorted()); err != nil {
		report.Status = models.ScanStatusFailed
		report.Error = err.Error()
		s.finish(persistCtx, report)
		return report, fmt.Errorf("写入输出文件失败: %w", err)
	}
	utils.Infof("💾 合并结果已写入: %s (%d 个URL)", s.outputFile, merged.Len())

	if s.cfg.Filters.GF.Enabled {
		s.applyGF(merged, report)
	}

	if s.arjun != nil {
		if interrupted {
			utils.Warn("扫描已中断, 跳过Arjun")
		} else if _, err := s.arjun.Run(ctx, s.targetURL); err != nil {
			utils.Warnf("Arjun扫描失败: %v", err)
		} else {
			report.ArjunRan = true
		}
	}

	if interrupted {
		report.Status = models.ScanStatusPartial
	}
	s.finish(persistCtx, report)

	if interrupted {
		return report, ctx.Err()
	}
	return report, nil
}

// collect 并发运行爬取与外部数据源
// 各来源互不影响: 失败记录在SourceStats中并贡献空集合
func (s *Scanner) collect(ctx context.Context, report *models.ScanReport) map[string]models.URLSet {
	sets := make([]models.URLSet, len(s.sources)+1)
	stats := make([]models.SourceStats, len(s.sources)+1)

	var g errgroup.Group

	g.Go(func() error {
		startTime := time.Now()
		crawler, done := s.newCrawler()

		urls, err := crawler.Crawl(ctx, s.targetURL, s.cfg.Crawl.AllowSubdomains, s.cfg.Crawl.MaxPages)
		done()
		sets[0] = urls
		stats[0] = models.SourceStats{Name: models.SourceCrawler, Duration: time.Since(startTime).Seconds()}
		if err != nil {
			stats[0].Error = err.Error()
		}
		report.Crawl = crawler.GetStats()
		return nil
	})

	for i, src := range s.sources {
		g.Go(func() error {
			startTime := time.Now()
			urls, err := src.Collect(ctx, s.targetURL)
			sets[i+1] = urls
			stats[i+1] = models.SourceStats{Name: src.Name(), Duration: time.Since(startTime).Seconds()}
			if err != nil {
				utils.Warnf("数据源 %s 失败: %v", src.Name(), err)
				stats[i+1].Error = err.Error()
			}
			return nil
		})
	}

	_ = g.Wait()

	results := make(map[string]models.URLSet, len(sets))
	for i := range sets {
		if sets[i] == nil {
			sets[i] = models.NewURLSet()
		}
		stats[i].URLs = sets[i].Len()
		results[stats[i].Name] = sets[i]
		utils.Infof("  %-12s %6d 个URL (%.2f秒)", stats[i].Name, stats[i].URLs, stats[i].Duration)
	}
	report.Sources = stats

	return results
}

// newCrawler 为本次扫描创建爬取器, done在爬取结束后关闭进度条
func (s *Scanner) newCrawler() (crawler *crawlers.ParamCrawler, done func()) {
	opts := []crawlers.Option{
		crawlers.WithLegacySubdomainMatch(s.cfg.Crawl.LegacySubdomainMatch),
	}
	done = func() {}
	if s.cfg.Crawl.ShowProgress && s.cfg.Crawl.MaxPages > 0 {
		bar := utils.NewProgressBar(s.cfg.Crawl.MaxPages, "爬取页面")
		opts = append(opts, crawlers.WithProgress(bar))
		done = func() { _ = bar.Finish() }
	}
	return crawlers.NewParamCrawler(s.fetcher, crawlers.NewAnchorExtractor(), opts...), done
}

// countNewURLs 统计历史扫描中未出现过的URL
func (s *Scanner) countNewURLs(ctx context.Context, merged models.URLSet) int {
	if s.db == nil {
		return merged.Len()
	}

	known, err := s.db.KnownURLs(ctx, s.targetURL)
	if err != nil {
		utils.Warnf("读取扫描历史失败: %v", err)
		return merged.Len()
	}

	count := 0
	for u := range merged {
		if !known.Has(u) {
			count++
		}
	}
	if known.Len() > 0 {
		utils.Infof("🆕 相比历史扫描新增 %d 个URL", count)
	}
	return count
}

// applyGF 用gf模式过滤合并结果
// 过滤结果为空时保留合并文件不变
func (s *Scanner) applyGF(merged models.URLSet, report *models.ScanReport) {
	gf, err := filters.LoadGFFilter(s.cfg.Filters.GF.PatternsDir, s.cfg.Filters.GF.Patterns)
	if err != nil {
		utils.Warnf("跳过gf过滤: %v", err)
		return
	}

	filtered := gf.Filter(merged.Sorted())
	if filtered.Len() == 0 {
		utils.Warn("gf过滤没有命中任何URL, 保留合并结果")
		return
	}

	if err := utils.WriteLines(s.outputFile, filtered.Sorted()); err != nil {
		utils.Warnf("写入gf过滤结果失败: %v", err)
		return
	}
	report.FilteredURLs = filtered.Len()
	utils.Infof("💾 gf过滤结果已覆盖写入: %s (%d 个URL)", s.outputFile, filtered.Len())
}

// finish 记录耗时, 生成报告并写入扫描历史
func (s *Scanner) finish(ctx context.Context, report *models.ScanReport) {
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).Seconds()

	if s.reporter != nil {
		if _, err := s.reporter.GenerateReport(report); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}

	if s.db != nil {
		if err := s.db.SaveScan(ctx, report, s.results); err != nil {
			utils.Warnf("保存扫描历史失败: %v", err)
		} else {
			utils.Debugf("扫描历史已保存: %s", report.ID)
		}
	}

	utils.Infof("✅ 扫描结束: 合并 %d 个URL, 新增 %d, 耗时 %.2f秒",
		report.MergedURLs, report.NewURLs, report.Duration)
}

// Results 最近一次Run中各来源的URL集合
func (s *Scanner) Results() map[string]models.URLSet {
	return s.results
}
