package database

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// PartitionFiles 内置的分区表定义
//
//go:embed partitions/*.sql partitions/*.conf
var PartitionFiles embed.FS

// PartitionRoot PartitionFiles 中的根目录
const PartitionRoot = "partitions"

// PartitionTableConfig 分区表配置
type PartitionTableConfig struct {
	TableName  string // 表名
	SQLContent string // 建表 SQL
}

// PartitionConfig 分区配置
type PartitionConfig struct {
	Tables []PartitionTableConfig
}

// LoadPartitionConfig 从文件系统加载配置
// 内置文件使用 PartitionFiles，调试时可以传 os.DirFS(dir) 覆盖
func LoadPartitionConfig(fsys fs.FS, root string) (*PartitionConfig, error) {
	confData, err := fs.ReadFile(fsys, path.Join(root, "partition_tables.conf"))
	if err != nil {
		return nil, fmt.Errorf("读取分区配置失败: %w", err)
	}

	cfg, err := ParsePartitionConfig(string(confData))
	if err != nil {
		return nil, err
	}

	for i := range cfg.Tables {
		sqlFile := cfg.Tables[i].TableName + ".sql"
		sqlData, err := fs.ReadFile(fsys, path.Join(root, sqlFile))
		if err != nil {
			return nil, fmt.Errorf("读取 SQL 文件 %s 失败: %w", sqlFile, err)
		}
		cfg.Tables[i].SQLContent = string(sqlData)
	}
	return cfg, nil
}

// ParsePartitionConfig 解析配置，每行一个表名，# 开头为注释
// 分区表数据永久保留，不接受保留期
func ParsePartitionConfig(content string) (*PartitionConfig, error) {
	cfg := &PartitionConfig{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.ContainsAny(line, ", \t") {
			return nil, fmt.Errorf("配置第 %d 行格式错误（分区表不支持保留期）: %s", lineNum, line)
		}
		cfg.Tables = append(cfg.Tables, PartitionTableConfig{TableName: line})
	}
	return cfg, scanner.Err()
}

// TableNames 所有分区表名
func (c *PartitionConfig) TableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.TableName
	}
	return names
}

// IsPartitionedTable 是否为分区表
func (c *PartitionConfig) IsPartitionedTable(name string) bool {
	for i := range c.Tables {
		if c.Tables[i].TableName == name {
			return true
		}
	}
	return false
}
