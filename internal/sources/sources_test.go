package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
)

// fakeCDX 记录收到的查询参数并按resumeKey返回分页结果
type fakeCDX struct {
	mu      sync.Mutex
	queries []map[string]string
	pages   map[string]string // resumeKey -> 响应体
	status  int
}

func (f *fakeCDX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	recorded := make(map[string]string)
	for k := range q {
		recorded[k] = q.Get(k)
	}
	f.queries = append(f.queries, recorded)

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, f.pages[q.Get("resumeKey")])
}

func newFakeCDX(t *testing.T, pages map[string]string) (*fakeCDX, string) {
	t.Helper()
	fake := &fakeCDX{pages: pages}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server.URL + "/cdx/search/cdx"
}

func TestParseCDXText(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantURLs   []string
		wantResume string
	}{
		{"无恢复键", "https://a.com/1\nhttps://a.com/2\n", []string{"https://a.com/1", "https://a.com/2"}, ""},
		{"带恢复键", "https://a.com/1\n\ncom%2Ca%29%2F2+2020\n", []string{"https://a.com/1"}, "com%2Ca%29%2F2+2020"},
		{"空响应", "", nil, ""},
		{"只有恢复键", "\nKEY\n", nil, "KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := parseCDXText([]byte(tt.body))
			if !reflect.DeepEqual(page.urls, tt.wantURLs) {
				t.Errorf("URL错误: 期望 %v, 得到 %v", tt.wantURLs, page.urls)
			}
			if page.resumeKey != tt.wantResume {
				t.Errorf("恢复键错误: 期望 %q, 得到 %q", tt.wantResume, page.resumeKey)
			}
		})
	}
}

func TestTargetHost(t *testing.T) {
	tests := map[string]string{
		"https://example.com":           "example.com",
		"https://example.com:8443/path": "example.com",
		"http://sub.example.com/?a=1":   "sub.example.com",
		"example.com":                   "example.com",
		"example.com/path":              "example.com",
		"example.com:8080":              "example.com",
		"  example.com  ":               "example.com",
	}
	for input, want := range tests {
		if got := targetHost(input); got != want {
			t.Errorf("targetHost(%q) = %q, 期望 %q", input, got, want)
		}
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := map[string]string{
		"shop.example.co.uk": "example.co.uk",
		"a.b.example.com":    "example.com",
		"example.com":        "example.com",
		"localhost":          "localhost",
		"com":                "com",
	}
	for input, want := range tests {
		if got := registrableDomain(input); got != want {
			t.Errorf("registrableDomain(%q) = %q, 期望 %q", input, got, want)
		}
	}
}

func archiveConfig(endpoint string) config.ArchiveConfig {
	return config.ArchiveConfig{
		Enabled:           true,
		Endpoint:          endpoint,
		Timeout:           5,
		Limit:             2,
		MaxPages:          5,
		IncludeSubdomains: true,
	}
}

func TestArchiveSource_Collect(t *testing.T) {
	fake, endpoint := newFakeCDX(t, map[string]string{
		"":     "https://example.com/a\nhttps://example.com/b?x=1\n\nKEY1\n",
		"KEY1": "https://blog.example.com/c\nhttps://example.com/a\n",
	})

	source := NewArchiveSource(archiveConfig(endpoint), nil)
	if source.Name() != models.SourceArchive {
		t.Errorf("数据源名称错误: %s", source.Name())
	}

	result, err := source.Collect(context.Background(), "https://example.com/start")
	if err != nil {
		t.Fatalf("收集失败: %v", err)
	}

	want := []string{"https://blog.example.com/c", "https://example.com/a", "https://example.com/b?x=1"}
	if !reflect.DeepEqual(result.Sorted(), want) {
		t.Errorf("结果错误: 期望 %v, 得到 %v", want, result.Sorted())
	}

	if len(fake.queries) != 2 {
		t.Fatalf("期望2次分页请求, 实际 %d", len(fake.queries))
	}
	first := fake.queries[0]
	if first["url"] != "*.example.com/*" {
		t.Errorf("url参数错误: %s", first["url"])
	}
	if first["fl"] != "original" || first["collapse"] != "urlkey" || first["limit"] != "2" || first["showResumeKey"] != "true" {
		t.Errorf("查询参数错误: %v", first)
	}
	if fake.queries[1]["resumeKey"] != "KEY1" {
		t.Errorf("第二页应携带恢复键, 得到 %v", fake.queries[1])
	}
}

func TestArchiveSource_QueryKey(t *testing.T) {
	tests := []struct {
		name        string
		subdomains  bool
		registrable bool
		target      string
		want        string
	}{
		{"仅主机", false, false, "https://shop.example.co.uk/", "shop.example.co.uk/*"},
		{"子域名", true, false, "https://shop.example.co.uk/", "*.shop.example.co.uk/*"},
		{"可注册域名", true, true, "https://shop.example.co.uk/", "*.example.co.uk/*"},
		{"仅主机时忽略可注册域名", false, true, "https://shop.example.co.uk/", "shop.example.co.uk/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, endpoint := newFakeCDX(t, map[string]string{"": ""})
			cfg := archiveConfig(endpoint)
			cfg.IncludeSubdomains = tt.subdomains
			cfg.RegistrableDomain = tt.registrable

			if _, err := NewArchiveSource(cfg, nil).Collect(context.Background(), tt.target); err != nil {
				t.Fatalf("收集失败: %v", err)
			}
			if got := fake.queries[0]["url"]; got != tt.want {
				t.Errorf("url参数错误: 期望 %s, 得到 %s", tt.want, got)
			}
		})
	}
}

func TestArchiveSource_MaxPages(t *testing.T) {
	// 恢复键永远不为空, 只能靠页数上限停止
	fake, endpoint := newFakeCDX(t, map[string]string{
		"":  "https://example.com/1\n\nK\n",
		"K": "https://example.com/2\n\nK\n",
	})

	cfg := archiveConfig(endpoint)
	cfg.MaxPages = 3
	result, err := NewArchiveSource(cfg, nil).Collect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("收集失败: %v", err)
	}
	if len(fake.queries) != 3 {
		t.Errorf("期望3次请求, 实际 %d", len(fake.queries))
	}
	if result.Len() != 2 {
		t.Errorf("期望2个URL, 得到 %v", result.Sorted())
	}
}

func TestArchiveSource_Errors(t *testing.T) {
	t.Run("服务端错误", func(t *testing.T) {
		fake, endpoint := newFakeCDX(t, nil)
		fake.status = http.StatusServiceUnavailable

		result, err := NewArchiveSource(archiveConfig(endpoint), nil).Collect(context.Background(), "example.com")
		if err == nil {
			t.Fatal("期望返回错误")
		}
		if result == nil || result.Len() != 0 {
			t.Errorf("失败时应返回空集合, 得到 %v", result)
		}
	})

	t.Run("已取消的context", func(t *testing.T) {
		fake, endpoint := newFakeCDX(t, map[string]string{"": "https://example.com/\n"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := NewArchiveSource(archiveConfig(endpoint), nil).Collect(ctx, "example.com"); err == nil {
			t.Error("期望返回context错误")
		}
		if len(fake.queries) != 0 {
			t.Error("取消后不应发出请求")
		}
	})
}

func paramSpiderConfig(endpoint string) config.ParamSpiderConfig {
	return config.ParamSpiderConfig{
		Enabled:           true,
		Endpoint:          endpoint,
		Timeout:           5,
		Placeholder:       "FUZZ",
		ExcludeExtensions: []string{".png", "jpg", ".JS"},
	}
}

func TestParamSpiderSource_Template(t *testing.T) {
	source := NewParamSpiderSource(paramSpiderConfig("http://unused"), nil)

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"单参数", "https://example.com/search?q=shoes", "https://example.com/search?q=FUZZ", true},
		{"保持参数顺序", "https://example.com/p?z=1&a=2", "https://example.com/p?z=FUZZ&a=FUZZ", true},
		{"重复参数", "https://example.com/p?id=1&id=2", "https://example.com/p?id=FUZZ", true},
		{"无值参数", "https://example.com/p?debug", "https://example.com/p?debug=FUZZ", true},
		{"去除默认端口", "http://example.com:80/p?a=1", "http://example.com/p?a=FUZZ", true},
		{"保留非默认端口", "http://example.com:8080/p?a=1", "http://example.com:8080/p?a=FUZZ", true},
		{"去除片段", "https://example.com/p?a=1#x", "https://example.com/p?a=FUZZ", true},
		{"无参数", "https://example.com/about", "", false},
		{"排除图片", "https://example.com/logo.png?v=3", "", false},
		{"扩展名不带点也生效", "https://example.com/a.JPG?v=1", "", false},
		{"扩展名大小写不敏感", "https://example.com/app.js?v=1", "", false},
		{"空参数名", "https://example.com/p?=1&&", "", false},
		{"相对URL", "/p?a=1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := source.Template(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Template(%q) = (%q, %v), 期望 (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParamSpiderSource_Collect(t *testing.T) {
	fake, endpoint := newFakeCDX(t, map[string]string{
		"": "https://example.com/search?q=a\nhttps://example.com/search?q=b\nhttps://example.com/img.png?x=1\nhttps://example.com/about\nhttps://example.com/item?id=9&ref=home\n",
	})

	source := NewParamSpiderSource(paramSpiderConfig(endpoint), nil)
	if source.Name() != models.SourceParamSpider {
		t.Errorf("数据源名称错误: %s", source.Name())
	}

	result, err := source.Collect(context.Background(), "https://example.com:443/start?x=1")
	if err != nil {
		t.Fatalf("收集失败: %v", err)
	}

	want := []string{"https://example.com/item?id=FUZZ&ref=FUZZ", "https://example.com/search?q=FUZZ"}
	if !reflect.DeepEqual(result.Sorted(), want) {
		t.Errorf("结果错误: 期望 %v, 得到 %v", want, result.Sorted())
	}
	if got := fake.queries[0]["url"]; got != "example.com/*" {
		t.Errorf("应以裸主机名查询, 得到 %s", got)
	}
	if _, paged := fake.queries[0]["showResumeKey"]; paged {
		t.Error("参数挖掘不分页")
	}
}
