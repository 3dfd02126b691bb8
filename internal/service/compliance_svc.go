package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/bulk"
	"omnibus_dev_v1_202610/internal/config"
	"omnibus_dev_v1_202610/internal/model"
)

// ==================== 合规计算分发 ====================

// ComputeRequest 发给合规计算 worker 的消息
type ComputeRequest struct {
	ProductID    int64     `json:"product_id"`
	Shop         string    `json:"shop"`
	Timeframe    int       `json:"timeframe"`
	CurrencyCode string    `json:"currency_code,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

// MessageWriter kafka.Writer 的最小接口
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 创建合规计算 topic 的 writer
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// KafkaComplianceDispatcher 每个商品发送一条消息，按商品 ID 分区
type KafkaComplianceDispatcher struct {
	writer MessageWriter
	log    *zap.SugaredLogger
}

var _ bulk.ComplianceCalculator = (*KafkaComplianceDispatcher)(nil)

func NewKafkaComplianceDispatcher(writer MessageWriter, log *zap.SugaredLogger) *KafkaComplianceDispatcher {
	return &KafkaComplianceDispatcher{writer: writer, log: log}
}

// ComputeForProduct 投递计算请求
func (d *KafkaComplianceDispatcher) ComputeForProduct(ctx context.Context, productID int64, shop string, settings model.ShopSettings) error {
	data, err := json.Marshal(ComputeRequest{
		ProductID:    productID,
		Shop:         shop,
		Timeframe:    settings.Timeframe,
		CurrencyCode: settings.CurrencyCode,
		RequestedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("序列化计算请求失败: %w", err)
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(productID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "shop", Value: []byte(shop)},
		},
	})
	if err != nil {
		return fmt.Errorf("投递商品 %d 计算请求失败: %w", productID, err)
	}
	return nil
}

// Close 关闭 writer
func (d *KafkaComplianceDispatcher) Close() error {
	return d.writer.Close()
}

// LoggingCalculator 未配置 kafka 时使用，只记录日志
type LoggingCalculator struct {
	log *zap.SugaredLogger
}

func NewLoggingCalculator(log *zap.SugaredLogger) *LoggingCalculator {
	return &LoggingCalculator{log: log}
}

func (c *LoggingCalculator) ComputeForProduct(_ context.Context, productID int64, shop string, settings model.ShopSettings) error {
	c.log.Infof("[Compliance] 商品 %d 需要重新计算 (shop=%s, timeframe=%d)", productID, shop, settings.Timeframe)
	return nil
}
