package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
)

// writeHeadersFile 在临时目录写入头部配置
func writeHeadersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	t.Run("默认头部存在", func(t *testing.T) {
		hm, err := NewHeaderManager("", nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if headers.Get("User-Agent") != models.DefaultUserAgent {
			t.Errorf("期望默认User-Agent, 得到 %q", headers.Get("User-Agent"))
		}
		if headers.Get("Accept") == "" {
			t.Error("期望默认Accept存在")
		}
	})

	t.Run("命令行头部覆盖默认", func(t *testing.T) {
		hm, err := NewHeaderManager("", []string{"User-Agent: CustomBot/1.0", "X-Custom: value1"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if headers.Get("User-Agent") != "CustomBot/1.0" {
			t.Errorf("期望User-Agent='CustomBot/1.0', 实际='%s'", headers.Get("User-Agent"))
		}
		if headers.Get("X-Custom") != "value1" {
			t.Error("X-Custom未正确设置")
		}
	})

	t.Run("非法命令行参数返回错误", func(t *testing.T) {
		if _, err := NewHeaderManager("", []string{"InvalidFormat"}); err == nil {
			t.Error("期望返回错误, 但成功了")
		}
	})
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager("", []string{
		"User-Agent: CustomBot/1.0",
		"Authorization: Bearer secret-token-12345",
		"X-API-Key: api-key-67890",
	})
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}

	safe := hm.GetSafeHeaders()
	if safe["User-Agent"] != "CustomBot/1.0" {
		t.Error("普通头部不应该被脱敏")
	}
	if safe["Authorization"] != "Bearer ***" {
		t.Errorf("期望Authorization='Bearer ***', 实际='%s'", safe["Authorization"])
	}
	if safe["X-Api-Key"] != "api-***7890" {
		t.Errorf("X-API-Key应该被脱敏, 实际='%s'", safe["X-Api-Key"])
	}
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	t.Run("配置文件与命令行合并", func(t *testing.T) {
		path := writeHeadersFile(t, `headers:
  X-Bug-Bounty: "researcher"
  User-Agent: "ConfigBot/1.0"
  Cookie: "session=from-config"
`)
		hm, err := NewHeaderManager(path, []string{"Cookie: session=from-cli"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers, err := hm.GetHeaders()
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}

		tests := []struct {
			name string
			want string
		}{
			{"X-Bug-Bounty", "researcher"},
			{"User-Agent", "ConfigBot/1.0"},
			{"Cookie", "session=from-cli"},
			{"Accept-Encoding", "gzip, deflate, br"},
		}
		for _, tt := range tests {
			if got := headers.Get(tt.name); got != tt.want {
				t.Errorf("%s: 期望 %q, 得到 %q", tt.name, tt.want, got)
			}
		}
	})

	t.Run("返回副本", func(t *testing.T) {
		hm, err := NewHeaderManager(writeHeadersFile(t, "headers: {}\n"), nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		first, err := hm.GetHeaders()
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		first.Set("User-Agent", "mutated")

		second, _ := hm.GetHeaders()
		if second.Get("User-Agent") != models.DefaultUserAgent {
			t.Error("修改返回值不应影响后续请求")
		}
	})

	t.Run("禁止头部返回验证错误", func(t *testing.T) {
		hm, err := NewHeaderManager(writeHeadersFile(t, "headers: {}\n"), []string{"Host: example.com"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		if _, err := hm.GetHeaders(); err == nil {
			t.Error("期望返回验证错误, 但成功了")
		}
	})

	t.Run("配置文件中的非法值", func(t *testing.T) {
		path := writeHeadersFile(t, "headers:\n  Content-Length: \"10\"\n")
		hm, err := NewHeaderManager(path, nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		if _, err := hm.GetHeaders(); err == nil {
			t.Error("配置文件中的禁止头部应返回错误")
		}
	})

	t.Run("指定的配置文件不存在", func(t *testing.T) {
		hm, err := NewHeaderManager(filepath.Join(t.TempDir(), "missing.yaml"), nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		if _, err := hm.GetHeaders(); err == nil {
			t.Error("显式指定的文件不存在时应返回错误")
		}
	})

	t.Run("默认路径自动生成模板", func(t *testing.T) {
		t.Chdir(t.TempDir())

		hm, err := NewHeaderManager("", nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		if _, err := hm.GetHeaders(); err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		if _, err := os.Stat(config.DefaultHeadersFile); err != nil {
			t.Errorf("应生成默认配置文件: %v", err)
		}
	})

	t.Run("配置文件过大", func(t *testing.T) {
		path := writeHeadersFile(t, "headers:\n  X-Big: \""+strings.Repeat("a", config.MaxConfigFileSize)+"\"\n")
		hm, err := NewHeaderManager(path, nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		if _, err := hm.GetHeaders(); err == nil {
			t.Error("超过大小限制的配置文件应返回错误")
		}
	})
}
