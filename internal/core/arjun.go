package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

const (
	// DefaultArjunTimeout Arjun默认超时
	DefaultArjunTimeout = 10 * time.Minute

	targetPlaceholder = "{target}"
)

// ArjunRunner 调用外部Arjun进行隐藏参数扫描
// 命令与参数来自配置, 参数中的 {target} 替换为目标URL
type ArjunRunner struct {
	command string
	args    []string
	timeout time.Duration
}

// NewArjunRunner 创建Arjun执行器
func NewArjunRunner(cfg config.ArjunConfig) *ArjunRunner {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultArjunTimeout
	}
	return &ArjunRunner{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
	}
}

// buildArgs 替换参数中的目标占位符
// 参数列表中没有占位符时把目标追加到末尾
func (r *ArjunRunner) buildArgs(target string) []string {
	args := make([]string, 0, len(r.args)+1)
	substituted := false
	for _, a := range r.args {
		if strings.Contains(a, targetPlaceholder) {
			a = strings.ReplaceAll(a, targetPlaceholder, target)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, target)
	}
	return args
}

// Run 执行扫描并返回合并后的stdout/stderr
// 不经过shell, 目标URL不会被解释为命令
func (r *ArjunRunner) Run(ctx context.Context, target string) (string, error) {
	if r.command == "" {
		return "", errors.New("未配置Arjun命令")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := r.buildArgs(target)
	utils.Infof("🎯 运行Arjun: %s %s", r.command, strings.Join(args, " "))
	startTime := time.Now()

	cmd := exec.CommandContext(ctx, r.command, args...)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(output), fmt.Errorf("Arjun执行超时 (%v)", r.timeout)
	}
	if err != nil {
		return string(output), fmt.Errorf("Arjun执行失败: %w", err)
	}

	text := strings.TrimSpace(string(output))
	if text == "" {
		utils.Warn("Arjun没有输出")
	} else {
		scanner := bufio.NewScanner(strings.NewReader(text))
		for scanner.Scan() {
			utils.Infof("[arjun] %s", scanner.Text())
		}
	}

	utils.Infof("✅ Arjun完成, 耗时 %.2f秒", time.Since(startTime).Seconds())
	return text, nil
}
