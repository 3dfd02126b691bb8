package bulk

import (
	"errors"

	"omnibus_dev_v1_202610/pkg/shopify"
)

// 只有 TransportError 会终止一次运行，其余错误都在行级别处理并计数
var (
	ErrTransport                    = shopify.ErrTransport
	ErrMalformedIdentifier          = shopify.ErrMalformedIdentifier
	ErrMalformedLine                = errors.New("行 JSON 解析失败")
	ErrUnresolvedTarget             = errors.New("折扣目标的父节点未找到")
	ErrUnsupportedDiscountArchetype = errors.New("不支持的折扣类型")
	ErrInvalidRunState              = errors.New("非法的运行状态切换")
)

// TransportError 导出文件获取或读取失败
type TransportError = shopify.TransportError
