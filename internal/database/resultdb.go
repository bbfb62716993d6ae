// Package database 保存扫描历史.
//
// 每次扫描写入一行 scans 记录(完整报告以JSON保存)以及每个URL的来源,
// 供 history 子命令查询和跨扫描对比.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	_ "modernc.org/sqlite" // SQLite驱动
)

// DBFileName 数据库文件名
const DBFileName = "xssdawn.db"

// ErrScanNotFound 扫描记录不存在
var ErrScanNotFound = errors.New("扫描记录不存在")

// ResultDB 基于SQLite的扫描历史存储
type ResultDB struct {
	db     *sql.DB
	dbPath string
}

// ScanRecord 一次扫描的历史记录
type ScanRecord struct {
	ID         string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	Report     *models.ScanReport
}

// ScanURL 扫描得到的URL及其来源
type ScanURL struct {
	URL    string
	Source string
}

// Open 打开(必要时创建)dir下的数据库
func Open(dir string) (*ResultDB, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite只支持单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResultDB{db: db, dbPath: dbPath}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用WAL失败: %w", err)
	}
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}

	return rdb, nil
}

// Close 关闭数据库
func (r *ResultDB) Close() error {
	return r.db.Close()
}

// Path 数据库文件路径
func (r *ResultDB) Path() string {
	return r.dbPath
}

func (r *ResultDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_target ON scans(target);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

	CREATE TABLE IF NOT EXISTS scan_urls (
		scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		source TEXT NOT NULL,
		UNIQUE(scan_id, url, source)
	);

	CREATE INDEX IF NOT EXISTS idx_scan_urls_scan ON scan_urls(scan_id);
	`

	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScan 在一个事务中保存报告和各数据源的URL
// urls 的键为数据源名称
func (r *ResultDB) SaveScan(ctx context.Context, report *models.ScanReport, urls map[string]models.URLSet) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scans (id, target, started_at, finished_at, stats_json) VALUES (?, ?, ?, ?, ?)`,
		report.ID,
		report.TargetURL,
		report.StartTime.UTC().Format(time.RFC3339Nano),
		report.EndTime.UTC().Format(time.RFC3339Nano),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("保存扫描记录失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO scan_urls (scan_id, url, source) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	sources := make([]string, 0, len(urls))
	for source := range urls {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		for _, u := range urls[source].Sorted() {
			if _, err := stmt.ExecContext(ctx, report.ID, u, source); err != nil {
				return fmt.Errorf("保存URL失败: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ListScans 按开始时间倒序列出扫描记录
// target为空时列出全部, limit<=0 时不限制
func (r *ResultDB) ListScans(ctx context.Context, target string, limit int) ([]ScanRecord, error) {
	query := `SELECT id, target, started_at, finished_at, stats_json FROM scans WHERE 1=1`
	args := make([]interface{}, 0, 2)

	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询扫描记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]ScanRecord, 0)
	for rows.Next() {
		var rec ScanRecord
		var startedAt, finishedAt, reportJSON string
		if err := rows.Scan(&rec.ID, &rec.Target, &startedAt, &finishedAt, &reportJSON); err != nil {
			return nil, fmt.Errorf("读取扫描记录失败: %w", err)
		}

		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)

		rec.Report = &models.ScanReport{}
		if err := rec.Report.FromJSON([]byte(reportJSON)); err != nil {
			return nil, fmt.Errorf("解析报告失败 [%s]: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ScanURLs 返回某次扫描的全部URL(按URL、来源排序)
func (r *ResultDB) ScanURLs(ctx context.Context, scanID string) ([]ScanURL, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE id = ?`, scanID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("查询扫描记录失败: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT url, source FROM scan_urls WHERE scan_id = ? ORDER BY url, source`, scanID)
	if err != nil {
		return nil, fmt.Errorf("查询URL失败: %w", err)
	}
	defer rows.Close()

	results := make([]ScanURL, 0)
	for rows.Next() {
		var su ScanURL
		if err := rows.Scan(&su.URL, &su.Source); err != nil {
			return nil, fmt.Errorf("读取URL失败: %w", err)
		}
		results = append(results, su)
	}

	return results, rows.Err()
}

// KnownURLs 返回目标此前所有扫描中出现过的URL
// 用于统计本次扫描新增的URL
func (r *ResultDB) KnownURLs(ctx context.Context, target string) (models.URLSet, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT DISTINCT su.url FROM scan_urls su
	JOIN scans s ON s.id = su.scan_id
	WHERE s.target = ?`, target)
	if err != nil {
		return nil, fmt.Errorf("查询历史URL失败: %w", err)
	}
	defer rows.Close()

	known := models.NewURLSet()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("读取历史URL失败: %w", err)
		}
		known.Add(u)
	}

	return known, rows.Err()
}
