package shopify

import (
	"errors"
	"fmt"
)

// ErrTransport 导出文件获取或读取失败
var ErrTransport = errors.New("传输失败")

// TransportError 导出文件无法获取（非 2xx、无响应体）或中途读取失败
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("获取导出文件失败 (Status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("获取导出文件失败: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrTransport) 对所有 TransportError 成立
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// GraphQLError GraphQL 层面返回的错误
type GraphQLError struct {
	Message string `json:"message"`
}

// GraphQLErrors 多个 GraphQL 错误
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	if len(e) == 0 {
		return "graphql 错误"
	}
	if len(e) == 1 {
		return "graphql 错误: " + e[0].Message
	}
	return fmt.Sprintf("graphql 错误: %s (另有 %d 个)", e[0].Message, len(e)-1)
}
