package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

// ProgressTracker 进度回调(progressbar.ProgressBar满足该接口)
type ProgressTracker interface {
	Add(num int) error
}

// ParamCrawler 广度优先的参数URL爬取器
//
// 从起始URL出发, 沿<a href>遍历同作用域页面, 收集所有带查询字符串的URL.
// 单线程同步执行: 每次抓取完成后才处理下一个队列项.
// 队列、已访问集合与结果集合只存在于一次Crawl调用内.
type ParamCrawler struct {
	fetcher   models.PageFetcher
	extractor models.LinkExtractor

	// 子域名模式下使用子串匹配(旧行为)
	legacySubdomainMatch bool

	progress ProgressTracker

	// 最近一次Crawl的统计
	stats models.CrawlStats
}

// Option ParamCrawler可选项
type Option func(*ParamCrawler)

// WithLegacySubdomainMatch 子域名模式使用子串匹配
func WithLegacySubdomainMatch(enabled bool) Option {
	return func(pc *ParamCrawler) {
		pc.legacySubdomainMatch = enabled
	}
}

// WithProgress 每处理一个页面调用一次 Add(1)
func WithProgress(progress ProgressTracker) Option {
	return func(pc *ParamCrawler) {
		pc.progress = progress
	}
}

// NewParamCrawler 创建爬取器, 抓取与HTML解析能力由调用方注入
func NewParamCrawler(fetcher models.PageFetcher, extractor models.LinkExtractor, opts ...Option) *ParamCrawler {
	pc := &ParamCrawler{
		fetcher:   fetcher,
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// Crawl 执行一次广度优先爬取
//
// 参数:
//   - seedURL: 起始绝对URL, 其主机为作用域锚点
//   - allowSubdomains: 是否接受子域名
//   - maxPages: 抓取尝试次数上限(失败的抓取同样计数)
//
// 返回带查询字符串的URL集合. 只有通过协议与作用域过滤的URL才会进入结果.
// 起始URL不合法时返回 models.ErrInvalidSeed;
// ctx被取消时在两次抓取之间停止, 返回已收集的部分结果和ctx.Err().
func (pc *ParamCrawler) Crawl(ctx context.Context, seedURL string, allowSubdomains bool, maxPages int) (models.URLSet, error) {
	seed, err := models.ParseSeed(seedURL)
	if err != nil {
		return nil, err
	}
	if maxPages < 0 {
		return nil, fmt.Errorf("页面预算不能为负数: %d", maxPages)
	}

	scope := NewScopePolicy(seed.Host, allowSubdomains, pc.legacySubdomainMatch)
	startTime := time.Now()
	pc.stats = models.CrawlStats{}

	utils.Infof("🔍 开始爬取: %s", seedURL)
	utils.Debugf("作用域: %s (锚点=%s), 页面预算: %d", scope.Mode(), seed.Host, maxPages)

	frontier := []string{seedURL}
	visited := make(map[string]struct{})
	result := models.NewURLSet()

	for len(frontier) > 0 && len(visited) < maxPages {
		if err := ctx.Err(); err != nil {
			utils.Warnf("爬取被中断, 已处理 %d 个页面: %v", len(visited), err)
			pc.finish(result, startTime)
			return result, err
		}

		current := frontier[0]
		frontier = frontier[1:]

		// 同一URL可能在首次出队前多次入队
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}
		pc.stats.VisitedURLs++
		if pc.progress != nil {
			_ = pc.progress.Add(1)
		}

		base, err := url.Parse(current)
		if err != nil {
			utils.Debugf("跳过无法解析的URL [%s]: %v", current, err)
			continue
		}

		for _, href := range pc.pageLinks(ctx, current) {
			candidate, page, ok := pc.classify(base, href, scope)
			if !ok {
				pc.stats.SkippedLinks++
				continue
			}

			if _, seen := visited[page]; !seen {
				frontier = append(frontier, page)
				pc.stats.EnqueuedURLs++
			}

			// 按完整URL判断, 片段中的哈希路由参数(#/search?q=1)同样收集
			if strings.Contains(candidate, "?") && result.Add(candidate) {
				utils.Debugf("发现参数URL: %s", candidate)
			}
		}
	}

	pc.finish(result, startTime)
	return result, nil
}

// pageLinks 抓取页面并提取href
// 抓取失败或HTML解析失败时返回nil, 不中断爬取
func (pc *ParamCrawler) pageLinks(ctx context.Context, pageURL string) []string {
	body, err := pc.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		pc.stats.FailedURLs++
		utils.Warnf("抓取失败 [%s]: %v", pageURL, err)
		return nil
	}

	links, err := pc.extractor.ExtractLinks(body)
	if err != nil {
		utils.Debugf("HTML解析失败,按零链接处理 [%s]: %v", pageURL, err)
		return nil
	}

	pc.stats.DiscoveredLinks += len(links)
	utils.Debugf("页面 %s 提取到 %d 个链接", pageURL, len(links))
	return links
}

// classify 将href解析为绝对URL并依次进行协议与作用域过滤
// candidate为保留片段的完整URL, page为去掉片段后用于抓取和去重的页面URL
func (pc *ParamCrawler) classify(base *url.URL, href string, scope ScopePolicy) (candidate, page string, ok bool) {
	ref, err := url.Parse(href)
	if err != nil {
		utils.Debugf("跳过无效链接 [%s]: %v", href, err)
		return "", "", false
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", "", false
	}
	if !scope.InScope(abs.Host) {
		return "", "", false
	}

	candidate = abs.String()
	// 片段不发送给服务器, "#top" 之类的链接解析回当前页面
	abs.Fragment = ""
	abs.RawFragment = ""
	return candidate, abs.String(), true
}

// finish 记录统计并输出汇总日志
func (pc *ParamCrawler) finish(result models.URLSet, startTime time.Time) {
	pc.stats.ParamURLs = result.Len()
	pc.stats.Duration = time.Since(startTime).Seconds()

	utils.Infof("✅ 爬取完成: 访问 %d 个页面, 失败 %d, 参数URL %d, 耗时 %.2f秒",
		pc.stats.VisitedURLs, pc.stats.FailedURLs, pc.stats.ParamURLs, pc.stats.Duration)
}

// GetStats 获取最近一次爬取的统计信息
func (pc *ParamCrawler) GetStats() models.CrawlStats {
	return pc.stats
}
