package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/credential"
	"automation-bridge/internal/shared/model"
)

// Store Resolver 依赖的对象存储能力（*Client 实现）
type Store interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
	PresignedGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (*url.URL, error)
	PresignedPutURL(ctx context.Context, bucket, key string, ttl time.Duration) (*url.URL, error)
}

// CredentialSource 提供 Bearer 凭据
type CredentialSource interface {
	Get(ctx context.Context) (credential.Credential, error)
}

// timestampLayout 输入/输出对象名前缀
const timestampLayout = "20060102150405"

// ResolverOptions Resolver 选项
type ResolverOptions struct {
	Bucket      string
	DownloadTTL time.Duration
	UploadTTL   time.Duration
	// CDNURL 非空时用其 scheme+host 替换下载地址，使结果可经 CDN 分发。
	// 预签名 (SigV4) 覆盖 Host 头，CDN 必须以源站 Host 回源，否则签名校验失败。
	CDNURL string
	// Credentials 非空时制品引用附带 Authorization: Bearer 头
	Credentials CredentialSource
	Now         func() time.Time
}

// Resolver 把本地文件与容器名转换为执行引擎可读写的制品引用
//
// 每次作业都生成新的对象名，引用不在作业之间复用。
type Resolver struct {
	store       Store
	bucket      string
	downloadTTL time.Duration
	uploadTTL   time.Duration
	cdn         *url.URL
	creds       CredentialSource
	now         func() time.Time

	ensureOnce sync.Mutex
	ensured    bool
}

// NewResolver 创建 Resolver
func NewResolver(store Store, opts ResolverOptions) (*Resolver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("objstore bucket is required")
	}
	r := &Resolver{
		store:       store,
		bucket:      opts.Bucket,
		downloadTTL: opts.DownloadTTL,
		uploadTTL:   opts.UploadTTL,
		creds:       opts.Credentials,
		now:         opts.Now,
	}
	if r.downloadTTL <= 0 {
		r.downloadTTL = 15 * time.Minute
	}
	if r.uploadTTL <= 0 {
		r.uploadTTL = time.Hour
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.CDNURL != "" {
		u, err := url.Parse(opts.CDNURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid cdn_url %q", opts.CDNURL)
		}
		r.cdn = u
	}
	return r, nil
}

// Bucket 容器名
func (r *Resolver) Bucket() string { return r.bucket }

// InputName 输入对象名：时间戳 + 原始文件名
func (r *Resolver) InputName(fileName string) string {
	return r.now().Format(timestampLayout) + baseName(fileName)
}

// OutputName 输出对象名：{时间戳}_output_{输入文件名}
func (r *Resolver) OutputName(inputFileName string) string {
	return r.now().Format(timestampLayout) + "_output_" + baseName(inputFileName)
}

// StagedInput 已上传的输入制品
type StagedInput struct {
	Name      string
	Reference model.ArtifactReference
}

// StageInput 确保容器存在，以时间戳限定名上传输入文件，返回 get 引用
func (r *Resolver) StageInput(ctx context.Context, fileName string, reader io.Reader, size int64) (*StagedInput, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return nil, err
	}
	name := r.InputName(fileName)
	if err := r.store.Upload(ctx, r.bucket, name, reader, size, ""); err != nil {
		return nil, apperr.ArtifactIOFailure("StageInput", err)
	}

	u, err := r.store.PresignedGetURL(ctx, r.bucket, name, r.uploadTTL)
	if err != nil {
		return nil, apperr.ArtifactIOFailure("StageInput", err)
	}
	ref, err := r.reference(ctx, u.String(), model.VerbGet)
	if err != nil {
		return nil, err
	}
	return &StagedInput{Name: name, Reference: ref}, nil
}

// OutputReference 返回执行引擎写入结果用的 put 引用
func (r *Resolver) OutputReference(ctx context.Context, name string) (model.ArtifactReference, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return model.ArtifactReference{}, err
	}
	u, err := r.store.PresignedPutURL(ctx, r.bucket, name, r.uploadTTL)
	if err != nil {
		return model.ArtifactReference{}, apperr.ArtifactIOFailure("OutputReference", err)
	}
	return r.reference(ctx, u.String(), model.VerbPut)
}

// DownloadURL 生成短时有效的签名下载地址
func (r *Resolver) DownloadURL(ctx context.Context, name string) (string, error) {
	u, err := r.store.PresignedGetURL(ctx, r.bucket, name, r.downloadTTL)
	if err != nil {
		return "", apperr.ArtifactIOFailure("DownloadURL", err)
	}
	if r.cdn != nil {
		u.Scheme = r.cdn.Scheme
		u.Host = r.cdn.Host
		u.Path = strings.TrimRight(r.cdn.Path, "/") + u.Path
	}
	return u.String(), nil
}

func (r *Resolver) reference(ctx context.Context, rawURL string, verb model.Verb) (model.ArtifactReference, error) {
	ref := model.ArtifactReference{URL: rawURL, Verb: verb}
	if r.creds == nil {
		return ref, nil
	}
	cred, err := r.creds.Get(ctx)
	if err != nil {
		return model.ArtifactReference{}, err
	}
	ref.Headers = map[string]string{"Authorization": cred.AuthorizationHeader()}
	return ref, nil
}

// ensureBucket 首次成功后不再重复检查
func (r *Resolver) ensureBucket(ctx context.Context) error {
	r.ensureOnce.Lock()
	defer r.ensureOnce.Unlock()
	if r.ensured {
		return nil
	}
	if err := r.store.EnsureBucket(ctx, r.bucket); err != nil {
		return apperr.ArtifactIOFailure("EnsureBucket", err)
	}
	r.ensured = true
	return nil
}

func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
