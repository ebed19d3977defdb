// Package objstore 封装 MinIO 对象存储客户端，以及把本地文件转换为远端制品引用的 Resolver
package objstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"automation-bridge/internal/config"
)

// Client MinIO 客户端封装
type Client struct {
	mc *minio.Client
}

// NewClient 创建 MinIO 客户端
func NewClient(cfg config.ObjectStoreConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("objstore endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("objstore access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{mc: mc}, nil
}

// EnsureBucket 确保 bucket 存在
//
// 已存在（包括并发创建时对方先建成）视为成功。
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		if isBucketExists(err) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	log.Printf("[objstore] Created bucket: %s", bucket)
	return nil
}

func isBucketExists(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return true
	}
	return false
}

// Upload 上传对象
func (c *Client) Upload(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.mc.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PresignedGetURL 生成限时下载地址
func (c *Client) PresignedGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (*url.URL, error) {
	u, err := c.mc.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("presign get %s: %w", key, err)
	}
	return u, nil
}

// PresignedPutURL 生成限时上传地址（执行引擎写入结果用）
func (c *Client) PresignedPutURL(ctx context.Context, bucket, key string, ttl time.Duration) (*url.URL, error) {
	u, err := c.mc.PresignedPutObject(ctx, bucket, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("presign put %s: %w", key, err)
	}
	return u, nil
}
