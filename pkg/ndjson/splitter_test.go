package ndjson

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"id":"gid://shopify/Product/1","status":"ACTIVE","handle":"a"}
{"id":"gid://shopify/ProductVariant/11","__parentId":"gid://shopify/Product/1","price":"9.99"}

{"id":"gid://shopify/Collection/5","handle":"summer"}
{"id":"gid://shopify/Product/1","__parentId":"gid://shopify/Collection/5"}`

func wantLines() []string {
	var out []string
	for _, l := range strings.Split(sample, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// 任意切分方式得到的行必须与整体切分一致
func TestLineSplitter_ChunkBoundaries(t *testing.T) {
	data := []byte(sample)
	for size := 1; size <= len(data); size++ {
		var s LineSplitter
		var got []string
		for start := 0; start < len(data); start += size {
			end := start + size
			if end > len(data) {
				end = len(data)
			}
			got = append(got, s.Feed(data[start:end])...)
		}
		got = append(got, s.Flush()...)
		if !assert.Equal(t, wantLines(), got, "块大小 %d", size) {
			return
		}
	}
}

func TestLineSplitter_CRLFAndBlankLines(t *testing.T) {
	var s LineSplitter
	got := s.Feed([]byte("a\r\n\r\n   \nb\r\n"))
	got = append(got, s.Flush()...)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Zero(t, s.Pending())
}

func TestLineSplitter_FlushWithoutTrailingFragment(t *testing.T) {
	var s LineSplitter
	assert.Equal(t, []string{"x"}, s.Feed([]byte("x\n")))
	assert.Nil(t, s.Flush())
}

type failingReader struct {
	data []byte
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, errors.New("connection reset")
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestStream_ReadErrorAfterPartialData(t *testing.T) {
	r := &failingReader{data: []byte("l1\nl2\npartial")}
	var got []string
	err := Stream(context.Background(), r, 4, func(line string) error {
		got = append(got, line)
		return nil
	})

	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []string{"l1", "l2"}, got, "半行在读取失败时不应被处理")
}

func TestStream_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Stream(context.Background(), strings.NewReader("a\nb\nc\n"), 2, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStream_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Stream(ctx, io.MultiReader(strings.NewReader("a\n")), 0, func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
