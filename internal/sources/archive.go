package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

// ArchiveSource 历史归档URL数据源
// 查询Wayback Machine中目标主机的全部归档URL(不只是带参数的)
type ArchiveSource struct {
	client            *cdxClient
	limit             int
	maxPages          int
	includeSubdomains bool
	registrableDomain bool
}

// NewArchiveSource 创建归档数据源
func NewArchiveSource(cfg config.ArchiveConfig, headers models.HeaderProvider) *ArchiveSource {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10000
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	return &ArchiveSource{
		client:            newCDXClient(cfg.Endpoint, cfg.Timeout, headers),
		limit:             limit,
		maxPages:          maxPages,
		includeSubdomains: cfg.IncludeSubdomains,
		registrableDomain: cfg.RegistrableDomain,
	}
}

// Name 数据源名称
func (s *ArchiveSource) Name() string {
	return models.SourceArchive
}

// Collect 分页查询归档URL
// 某一页失败时返回已取得的结果和错误
func (s *ArchiveSource) Collect(ctx context.Context, target string) (models.URLSet, error) {
	host := targetHost(target)
	if s.includeSubdomains && s.registrableDomain {
		host = registrableDomain(host)
	}

	startTime := time.Now()
	result := models.NewURLSet()
	resumeKey := ""

	for page := 0; page < s.maxPages; page++ {
		params := url.Values{}
		params.Set("url", cdxURLPattern(host, s.includeSubdomains))
		params.Set("fl", "original")
		params.Set("collapse", "urlkey")
		params.Set("output", "text")
		params.Set("limit", strconv.Itoa(s.limit))
		params.Set("showResumeKey", "true")
		if resumeKey != "" {
			params.Set("resumeKey", resumeKey)
		}

		res, err := s.client.query(ctx, params)
		if err != nil {
			return result, err
		}

		for _, u := range res.urls {
			result.Add(u)
		}
		utils.Debugf("归档第 %d 页: %d 条, 累计 %d", page+1, len(res.urls), result.Len())

		if res.resumeKey == "" {
			break
		}
		resumeKey = res.resumeKey
	}

	utils.Infof("📚 归档查询完成: %s 共 %d 个URL, 耗时 %.2f秒",
		host, result.Len(), time.Since(startTime).Seconds())
	return result, nil
}
