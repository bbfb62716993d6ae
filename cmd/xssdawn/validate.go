package main

import (
	"fmt"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(
	targetURL string,
	urlFile string,
	maxPages int,
	requestTimeout int,
	batchDelay int,
) error {
	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--target 与 --url-file 不能同时使用")
	}

	// 验证URL
	if targetURL != "" {
		if err := models.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	// 验证页面数
	if maxPages < 0 || maxPages > 100000 {
		return fmt.Errorf("最大页面数必须在0-100000之间,当前值: %d", maxPages)
	}

	// 验证超时
	if requestTimeout < 1 || requestTimeout > 300 {
		return fmt.Errorf("请求超时必须在1-300秒之间,当前值: %d", requestTimeout)
	}

	// 验证批量延迟
	if batchDelay < 0 || batchDelay > 3600 {
		return fmt.Errorf("批量延迟必须在0-3600秒之间,当前值: %d", batchDelay)
	}

	return nil
}
