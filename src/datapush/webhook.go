package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// 默认重试参数
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
)

// Pusher 把报表摘要以JSON推送到webhook
type Pusher struct {
	URL      string
	Retries  int
	Interval time.Duration
	Client   *http.Client
}

// NewPusher retries<=0 或 interval<=0 时使用默认值
func NewPusher(url string, retries int, interval time.Duration) *Pusher {
	if retries <= 0 {
		retries = RETRY_TIMES
	}
	if interval <= 0 {
		interval = RETRY_INTERVAL
	}
	return &Pusher{
		URL:      url,
		Retries:  retries,
		Interval: interval,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError webhook返回非2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook返回状态码 %d: %s", e.StatusCode, e.Body)
}

// Push 序列化payload并POST，失败时按配置重试
func (p *Pusher) Push(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	return retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("创建请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return p.do(req)
	}, p.Retries, p.Interval)
}

// Upload 以multipart表单上传文件，字段名为 file
func (p *Pusher) Upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("创建表单文件失败: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("复制文件内容失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("关闭写入器失败: %w", err)
	}
	payload := body.Bytes()

	return retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("创建请求失败: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return p.do(req)
	}, p.Retries, p.Interval)
}

func (p *Pusher) do(req *http.Request) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// 重试函数
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	if times <= 0 {
		times = 1
	}
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), err)
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), err)
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
