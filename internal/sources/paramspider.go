package sources

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

// DefaultPlaceholder 参数值占位符
const DefaultPlaceholder = "FUZZ"

// ParamSpiderSource 参数挖掘数据源
// 从归档中挑出带查询参数的URL, 参数值统一替换为占位符后去重,
// 得到 https://example.com/search?q=FUZZ 这样的模板
type ParamSpiderSource struct {
	client            *cdxClient
	placeholder       string
	includeSubdomains bool
	excluded          map[string]struct{}
}

// NewParamSpiderSource 创建参数挖掘数据源
func NewParamSpiderSource(cfg config.ParamSpiderConfig, headers models.HeaderProvider) *ParamSpiderSource {
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludeExtensions))
	for _, ext := range cfg.ExcludeExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		excluded[ext] = struct{}{}
	}

	return &ParamSpiderSource{
		client:            newCDXClient(cfg.Endpoint, cfg.Timeout, headers),
		placeholder:       placeholder,
		includeSubdomains: cfg.IncludeSubdomains,
		excluded:          excluded,
	}
}

// Name 数据源名称
func (s *ParamSpiderSource) Name() string {
	return models.SourceParamSpider
}

// Collect 以目标的裸主机名查询并生成参数模板
func (s *ParamSpiderSource) Collect(ctx context.Context, target string) (models.URLSet, error) {
	host := targetHost(target)
	startTime := time.Now()

	params := url.Values{}
	params.Set("url", cdxURLPattern(host, s.includeSubdomains))
	params.Set("fl", "original")
	params.Set("collapse", "urlkey")
	params.Set("output", "text")

	res, err := s.client.query(ctx, params)
	if err != nil {
		return models.NewURLSet(), err
	}

	result := models.NewURLSet()
	for _, raw := range res.urls {
		if templated, ok := s.Template(raw); ok {
			result.Add(templated)
		}
	}

	utils.Infof("🕷️ 参数挖掘完成: %s 归档 %d 条, 参数模板 %d 个, 耗时 %.2f秒",
		host, len(res.urls), result.Len(), time.Since(startTime).Seconds())
	return result, nil
}

// Template 将URL的参数值替换为占位符
// 无查询参数、无法解析或路径以排除扩展名结尾的URL返回false
func (s *ParamSpiderSource) Template(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" || u.Host == "" {
		return "", false
	}

	if _, skip := s.excluded[strings.ToLower(path.Ext(u.Path))]; skip {
		return "", false
	}

	// 保持参数原有顺序, 重复参数只保留第一次出现
	seen := make(map[string]struct{})
	pairs := make([]string, 0)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		name, _, _ := strings.Cut(pair, "=")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		pairs = append(pairs, name+"="+s.placeholder)
	}
	if len(pairs) == 0 {
		return "", false
	}

	u.RawQuery = strings.Join(pairs, "&")
	u.Fragment = ""
	u.RawFragment = ""
	// 归档中常见 http://example.com:80/ 形式的默认端口
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}
	return u.String(), true
}
