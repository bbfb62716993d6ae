package filters

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writePatterns(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("写入模式文件失败: %v", err)
		}
	}
	return dir
}

var sampleURLs = []string{
	"https://example.com/search?q=1",
	"https://example.com/item?ID=5",
	"https://example.com/redirect?url=https://evil.org",
	"https://example.com/about",
	"",
}

func TestLoadGFFilter(t *testing.T) {
	dir := writePatterns(t, map[string]string{
		"xss.json":     `{"flags": "-iE", "patterns": ["q=", "search="]}`,
		"sqli.json":    `{"flags": "-E", "pattern": "id="}`,
		"redirect.txt": "# 开放重定向\nurl=\n\nredirect=\n",
		"broken.json":  `{"flags": "-E", "pattern": "(?<=x)y"}`,
		"invalid.json": `{not json`,
		"empty.json":   `{"flags": "-E"}`,
		"README.md":    "not a pattern",
	})

	filter, err := LoadGFFilter(dir, nil)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	want := []string{"redirect", "sqli", "xss"}
	if !reflect.DeepEqual(filter.Names(), want) {
		t.Errorf("模式名称错误: 期望 %v, 得到 %v", want, filter.Names())
	}
}

func TestGFFilter_Filter(t *testing.T) {
	dir := writePatterns(t, map[string]string{
		"xss.json":     `{"flags": "-iE", "patterns": ["Q=", "search="]}`,
		"sqli.json":    `{"flags": "-E", "pattern": "id="}`,
		"redirect.txt": "url=\nredirect=\n",
	})

	tests := []struct {
		name string
		only []string
		want []string
	}{
		{
			name: "全部模式取并集",
			want: []string{
				"https://example.com/redirect?url=https://evil.org",
				"https://example.com/search?q=1",
			},
		},
		{
			name: "只使用指定模式",
			only: []string{"redirect"},
			want: []string{"https://example.com/redirect?url=https://evil.org"},
		},
		{
			name: "区分大小写的模式不命中大写参数",
			only: []string{"sqli"},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := LoadGFFilter(dir, tt.only)
			if err != nil {
				t.Fatalf("加载失败: %v", err)
			}
			got := filter.Filter(sampleURLs).Sorted()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("期望 %v, 得到 %v", tt.want, got)
			}
		})
	}
}

func TestGFFilter_InvertFlag(t *testing.T) {
	dir := writePatterns(t, map[string]string{
		"params.json": `{"flags": "-v", "pattern": "\\?"}`,
	})

	filter, err := LoadGFFilter(dir, nil)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	got := filter.Filter(sampleURLs).Sorted()
	want := []string{"https://example.com/about"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("反向匹配错误: 期望 %v, 得到 %v", want, got)
	}
}

func TestLoadGFFilter_Errors(t *testing.T) {
	t.Run("目录不存在", func(t *testing.T) {
		if _, err := LoadGFFilter(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("没有可用模式", func(t *testing.T) {
		dir := writePatterns(t, map[string]string{"bad.json": `{"pattern": "("}`})
		_, err := LoadGFFilter(dir, nil)
		if !errors.Is(err, ErrNoPatterns) {
			t.Errorf("期望ErrNoPatterns, 得到 %v", err)
		}
	})

	t.Run("指定的模式不存在", func(t *testing.T) {
		dir := writePatterns(t, map[string]string{"xss.json": `{"pattern": "q="}`})
		_, err := LoadGFFilter(dir, []string{"ssrf"})
		if !errors.Is(err, ErrNoPatterns) {
			t.Errorf("期望ErrNoPatterns, 得到 %v", err)
		}
	})
}
