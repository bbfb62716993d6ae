package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/andybalholm/brotli"
)

// staticHeaders 固定头部提供者
type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<a href="/next?id=1">next</a>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	for _, code := range []int{http.StatusNonAuthoritativeInfo, http.StatusPartialContent, http.StatusInternalServerError} {
		mux.HandleFunc(fmt.Sprintf("/status/%d", code), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(code)
			_, _ = fmt.Fprintf(w, `<a href="/s%d?x=1">s</a>`, code)
		})
	}
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	})
	mux.HandleFunc("/untyped", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil // 禁止net/http自动探测
		_, _ = w.Write([]byte(`<a href="/u">u</a>`))
	})
	mux.HandleFunc("/brotli", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte(`<a href="/br?x=1">br</a>`))
		_ = bw.Close()
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/echo-headers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(r.Header.Get("X-Scan-Token") + "|" + r.Header.Get("User-Agent")))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(3 * time.Second):
		case <-r.Context().Done():
		}
		w.Header().Set("Content-Type", "text/html")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testCrawlConfig() models.CrawlConfig {
	return models.CrawlConfig{
		MaxPages:       100,
		RequestTimeout: 5,
	}
}

func TestStaticFetcher_Fetch(t *testing.T) {
	server := newTestServer(t)
	fetcher := NewStaticFetcher(testCrawlConfig(), nil)

	tests := []struct {
		name         string
		path         string
		wantContains string
		wantStatus   int
		wantNotHTML  bool
	}{
		{name: "HTML页面返回响应体", path: "/page", wantContains: `/next?id=1`},
		{name: "未声明Content-Type按HTML处理", path: "/untyped", wantContains: `/u`},
		{name: "brotli响应被解压", path: "/brotli", wantContains: `/br?x=1`},
		{name: "203仍返回响应体", path: "/status/203", wantContains: `/s203?x=1`},
		{name: "206仍返回响应体", path: "/status/206", wantContains: `/s206?x=1`},
		{name: "404返回FetchError", path: "/missing", wantStatus: http.StatusNotFound},
		{name: "500返回FetchError", path: "/status/500", wantStatus: http.StatusInternalServerError},
		{name: "非HTML返回ErrNotHTML", path: "/json", wantStatus: http.StatusOK, wantNotHTML: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := fetcher.Fetch(context.Background(), server.URL+tt.path)

			if tt.wantStatus != 0 {
				var fetchErr *models.FetchError
				if !errors.As(err, &fetchErr) {
					t.Fatalf("期望FetchError, 得到 %v", err)
				}
				if fetchErr.StatusCode != tt.wantStatus {
					t.Errorf("状态码错误: 期望 %d, 得到 %d", tt.wantStatus, fetchErr.StatusCode)
				}
				if tt.wantNotHTML && !errors.Is(err, ErrNotHTML) {
					t.Errorf("期望ErrNotHTML, 得到 %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("抓取失败: %v", err)
			}
			if !strings.Contains(string(body), tt.wantContains) {
				t.Errorf("响应体应包含 %q, 得到 %q", tt.wantContains, body)
			}
		})
	}
}

func TestStaticFetcher_Headers(t *testing.T) {
	server := newTestServer(t)

	provider := staticHeaders{
		"X-Scan-Token": []string{"abc123"},
		"User-Agent":   []string{"XSSdawn-Test/1.0"},
	}
	fetcher := NewStaticFetcher(testCrawlConfig(), provider)

	body, err := fetcher.Fetch(context.Background(), server.URL+"/echo-headers")
	if err != nil {
		t.Fatalf("抓取失败: %v", err)
	}
	if string(body) != "abc123|XSSdawn-Test/1.0" {
		t.Errorf("自定义头部未生效: %q", body)
	}

	// 无提供者时使用默认UA
	body, err = NewStaticFetcher(testCrawlConfig(), nil).Fetch(context.Background(), server.URL+"/echo-headers")
	if err != nil {
		t.Fatalf("抓取失败: %v", err)
	}
	if string(body) != "|"+models.DefaultUserAgent {
		t.Errorf("默认UA错误: %q", body)
	}
}

func TestStaticFetcher_Timeout(t *testing.T) {
	server := newTestServer(t)

	config := testCrawlConfig()
	config.RequestTimeout = 1
	fetcher := NewStaticFetcher(config, nil)

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), server.URL+"/slow")
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("超时应返回FetchError, 得到 %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Errorf("超时未生效, 耗时 %v", elapsed)
	}
}

func TestStaticFetcher_CancelledContext(t *testing.T) {
	fetcher := NewStaticFetcher(testCrawlConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, "http://127.0.0.1:1/never")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("期望context.Canceled, 得到 %v", err)
	}
}

func TestStaticFetcher_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewStaticFetcher(testCrawlConfig(), nil).Fetch(context.Background(), addr+"/")
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("连接失败应返回FetchError, 得到 %v", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Errorf("网络错误时状态码应为0, 得到 %d", fetchErr.StatusCode)
	}
}

func TestIsHTMLContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		expected    bool
		reason      string
	}{
		{"text/html", "text/html; charset=utf-8", true, "标准HTML"},
		{"大写", "TEXT/HTML", true, "比较不区分大小写"},
		{"xhtml", "application/xhtml+xml", true, "XHTML同样包含链接"},
		{"空值", "", true, "服务端未声明时按HTML尝试解析"},
		{"json", "application/json", false, "API响应"},
		{"图片", "image/png", false, "二进制资源"},
		{"javascript", "application/javascript", false, "脚本不包含<a>标签"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHTMLContentType(tt.contentType); got != tt.expected {
				t.Errorf("isHTMLContentType(%q) = %v, 期望 %v (%s)", tt.contentType, got, tt.expected, tt.reason)
			}
		})
	}
}

func TestDecompressResponse(t *testing.T) {
	plain := []byte("<html>hello</html>")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(plain)
	_ = gw.Close()

	var df bytes.Buffer
	fw, _ := flate.NewWriter(&df, flate.DefaultCompression)
	_, _ = fw.Write(plain)
	_ = fw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(plain)
	_ = bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip魔数", "gzip", gz.Bytes()},
		{"gzip已被解压", "gzip", plain},
		{"deflate", "deflate", df.Bytes()},
		{"brotli", "br", br.Bytes()},
		{"大小写与空白", " BR ", br.Bytes()},
		{"identity", "identity", plain},
		{"未知编码原样返回", "zstd", plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressResponse(tt.encoding, tt.body)
			if err != nil {
				t.Fatalf("解压失败: %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("期望 %q, 得到 %q", plain, got)
			}
		})
	}
}
