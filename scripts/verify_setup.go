package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  XSSdawn 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// Arjun为可选功能
	if checkCommand("python3", "--version") {
		fmt.Printf("✅ Python已安装: %s\n", strings.TrimSpace(getCommandOutput("python3", "--version")))
		if checkCommand("python3", "-m", "arjun", "--help") {
			fmt.Println("✅ Arjun已安装")
		} else {
			fmt.Println("⚠️  Arjun未安装 - --arjun 将不可用")
			fmt.Println("   安装方法: pip3 install arjun")
		}
	} else {
		fmt.Println("⚠️  python3未安装 - --arjun 将不可用")
	}

	// gf模式目录
	home, _ := os.UserHomeDir()
	gfDir := filepath.Join(home, ".gf")
	if matches, _ := filepath.Glob(filepath.Join(gfDir, "*.json")); len(matches) > 0 {
		fmt.Printf("✅ gf模式: %s (%d个)\n", gfDir, len(matches))
	} else {
		fmt.Printf("⚠️  %s 中没有gf模式 - --gf 将被跳过\n", gfDir)
		fmt.Println("   安装方法: git clone https://github.com/1ndianl33t/Gf-Patterns && cp Gf-Patterns/*.json ~/.gf/")
	}

	// Wayback CDX API
	fmt.Println()
	fmt.Println("检查网络...")
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get("https://web.archive.org/cdx/search/cdx?url=example.com&limit=1")
	if err != nil {
		fmt.Printf("⚠️  无法访问Wayback CDX API: %v\n", err)
		fmt.Println("   使用 --no-archive --no-paramspider 只运行内置爬取")
	} else {
		resp.Body.Close()
		fmt.Printf("✅ Wayback CDX API: HTTP %d\n", resp.StatusCode)
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/xssdawn",
		"internal/core",
		"internal/crawlers",
		"internal/sources",
		"internal/filters",
		"internal/database",
		"internal/utils",
		"internal/models",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o xssdawn ./cmd/xssdawn' 构建项目")
		fmt.Println("  2. 运行 './xssdawn --help' 查看帮助")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkCommand 检查命令是否可用
func checkCommand(name string, args ...string) bool {
	return exec.Command(name, args...).Run() == nil
}

// getCommandOutput 获取命令输出
func getCommandOutput(name string, args ...string) string {
	output, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return string(output)
}
