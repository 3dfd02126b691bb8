// Package ndjson 将分块到达的字节流切分为完整的 JSON 行
package ndjson

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize 默认每次读取的块大小
const DefaultChunkSize = 64 * 1024

// LineSplitter 行切分器
// 跨块的半行保存在 carry 中，直到遇到换行或 Flush
type LineSplitter struct {
	carry []byte
}

// Feed 追加一个数据块，返回其中所有完整的行（顺序与输入一致）
func (s *LineSplitter) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	s.carry = append(s.carry, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(s.carry, '\n')
		if idx < 0 {
			break
		}
		if line, ok := normalize(s.carry[:idx]); ok {
			lines = append(lines, line)
		}
		s.carry = s.carry[idx+1:]
	}

	// 收缩底层数组，避免长流运行时 carry 一直持有已消费的数据
	if len(s.carry) == 0 {
		s.carry = nil
	} else if cap(s.carry) > 4*len(s.carry) && cap(s.carry) > DefaultChunkSize {
		s.carry = append([]byte(nil), s.carry...)
	}
	return lines
}

// Flush 流结束时调用，返回最后一个没有换行结尾的片段
func (s *LineSplitter) Flush() []string {
	defer func() { s.carry = nil }()
	if line, ok := normalize(s.carry); ok {
		return []string{line}
	}
	return nil
}

// Pending 当前缓存的未完成字节数
func (s *LineSplitter) Pending() int {
	return len(s.carry)
}

func normalize(b []byte) (string, bool) {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if len(bytes.TrimSpace(b)) == 0 {
		return "", false
	}
	return string(b), true
}

// ==================== 流读取 ====================

// ReadError 底层 Reader 读取失败
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("读取数据流失败: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Stream 以 chunkSize 为单位读取 r，按顺序对每一个完整行调用 fn
// fn 返回错误时立即停止；读取失败返回 *ReadError，已处理的行不会回滚
func Stream(ctx context.Context, r io.Reader, chunkSize int, fn func(line string) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var splitter LineSplitter
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, line := range splitter.Feed(buf[:n]) {
				if err := fn(line); err != nil {
					return err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return &ReadError{Err: readErr}
		}
	}

	for _, line := range splitter.Flush() {
		if err := fn(line); err != nil {
			return err
		}
	}
	return nil
}
