package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartitionManager 按月维护 RANGE 分区（price_histories 按 date 分区）
type PartitionManager struct {
	db     *gorm.DB
	config *PartitionConfig
	log    *zap.SugaredLogger
}

// NewPartitionManager 创建分区管理器
func NewPartitionManager(db *gorm.DB, config *PartitionConfig, log *zap.SugaredLogger) *PartitionManager {
	return &PartitionManager{db: db, config: config, log: log}
}

// PartitionName 分区表名，例如 price_histories_y2026m03
func PartitionName(table string, month time.Time) string {
	start := monthStart(month)
	return fmt.Sprintf("%s_y%dm%02d", table, start.Year(), start.Month())
}

// ParsePartitionMonth 从分区名解析所属月份
func ParsePartitionMonth(partitionName, table string) (time.Time, error) {
	suffix := strings.TrimPrefix(partitionName, table+"_y")
	if suffix == partitionName || len(suffix) < 6 {
		return time.Time{}, fmt.Errorf("无效分区名: %s", partitionName)
	}
	var year, month int
	if _, err := fmt.Sscanf(suffix, "%dm%d", &year, &month); err != nil {
		return time.Time{}, fmt.Errorf("无效分区名 %s: %w", partitionName, err)
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("无效分区月份: %s", partitionName)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ==================== 初始化 ====================

// InitPartitionTables 创建分区主表（已存在则跳过）
func (m *PartitionManager) InitPartitionTables(ctx context.Context) error {
	for _, table := range m.config.Tables {
		exists, err := m.tableExists(ctx, table.TableName)
		if err != nil {
			return fmt.Errorf("检查表 %s 失败: %w", table.TableName, err)
		}
		if exists {
			m.log.Debugf("[Partition] 表 %s 已存在", table.TableName)
			continue
		}

		if err := m.db.WithContext(ctx).Exec(table.SQLContent).Error; err != nil {
			return fmt.Errorf("创建表 %s 失败: %w", table.TableName, err)
		}
		m.log.Infof("[Partition] 分区表 %s 创建成功", table.TableName)
	}
	return nil
}

func (m *PartitionManager) tableExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM pg_tables
		WHERE schemaname = 'public' AND tablename = ?
	`, name).Scan(&count).Error
	return count > 0, err
}

// ==================== 分区创建 ====================

// EnsureFuturePartitions 确保当前月及未来 N 个月的分区存在
// 单个分区失败只记录日志，返回失败数量
func (m *PartitionManager) EnsureFuturePartitions(ctx context.Context, monthsAhead int) int {
	now := time.Now()
	failed := 0
	for i := 0; i <= monthsAhead; i++ {
		month := monthStart(now).AddDate(0, i, 0)
		for _, table := range m.config.Tables {
			if err := m.createPartitionIfNotExists(ctx, table.TableName, month); err != nil {
				failed++
				m.log.Errorf("[Partition] 创建 %s 分区失败: %v", table.TableName, err)
			}
		}
	}
	return failed
}

func (m *PartitionManager) createPartitionIfNotExists(ctx context.Context, table string, month time.Time) error {
	start := monthStart(month)
	name := PartitionName(table, start)

	exists, err := m.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	sql := fmt.Sprintf(
		`CREATE TABLE %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		name, table,
		start.Format("2006-01-02"),
		start.AddDate(0, 1, 0).Format("2006-01-02"),
	)
	if err := m.db.WithContext(ctx).Exec(sql).Error; err != nil {
		// 多实例并发创建
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("创建分区 %s 失败: %w", name, err)
	}

	m.log.Infof("[Partition] 创建分区 %s", name)
	return nil
}

// ==================== 查询 ====================

// PartitionInfo 分区信息
type PartitionInfo struct {
	Name      string `gorm:"column:partition_name"`
	Range     string `gorm:"column:partition_range"`
	SizeBytes int64  `gorm:"column:size_bytes"`
}

// ListPartitions 列出表的所有分区
func (m *PartitionManager) ListPartitions(ctx context.Context, table string) ([]PartitionInfo, error) {
	var partitions []PartitionInfo
	err := m.db.WithContext(ctx).Raw(`
		SELECT
			child.relname AS partition_name,
			pg_get_expr(child.relpartbound, child.oid) AS partition_range,
			pg_total_relation_size(child.oid) AS size_bytes
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		WHERE parent.relname = ?
		ORDER BY child.relname
	`, table).Scan(&partitions).Error
	return partitions, err
}

// HealthCheck 当前月与下个月的分区必须存在
func (m *PartitionManager) HealthCheck(ctx context.Context) error {
	current := monthStart(time.Now())
	var missing []string
	for _, table := range m.config.Tables {
		for _, month := range []time.Time{current, current.AddDate(0, 1, 0)} {
			name := PartitionName(table.TableName, month)
			if exists, _ := m.tableExists(ctx, name); !exists {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺失分区: %v", missing)
	}
	return nil
}

// LogStats 打印分区数量、大小和最早的月份
func (m *PartitionManager) LogStats(ctx context.Context) {
	for _, table := range m.config.TableNames() {
		partitions, err := m.ListPartitions(ctx, table)
		if err != nil {
			return
		}
		var (
			size   int64
			oldest time.Time
		)
		for _, p := range partitions {
			size += p.SizeBytes
			// default 分区等非按月分区跳过
			if month, err := ParsePartitionMonth(p.Name, table); err == nil && (oldest.IsZero() || month.Before(oldest)) {
				oldest = month
			}
		}
		m.log.Infof("[Partition] %s: %d 分区, %.2f MB, 最早 %s", table, len(partitions), float64(size)/1024/1024, oldest.Format("2006-01"))
	}
}
