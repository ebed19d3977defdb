// Package appbundle bundle 领域 - 版本化上传与别名维护
package appbundle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/containerd/errdefs"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/engine"
	"automation-bridge/internal/shared/model"
)

// EngineAPI Provisioner 所需的执行引擎接口（engine.Client 实现）
type EngineAPI interface {
	ListEngines(ctx context.Context) ([]string, error)
	ListAppBundles(ctx context.Context) ([]string, error)
	CreateAppBundle(ctx context.Context, spec *engine.AppBundle) (*engine.AppBundleVersion, error)
	CreateAppBundleVersion(ctx context.Context, id string, spec *engine.AppBundle) (*engine.AppBundleVersion, error)
	CreateAppBundleAlias(ctx context.Context, id string, alias engine.Alias) (*engine.Alias, error)
	ModifyAppBundleAlias(ctx context.Context, id, aliasID string, version int) (*engine.Alias, error)
}

// UploadFunc 把本地压缩包上传到预签名目标
type UploadFunc func(ctx context.Context, params engine.UploadParameters, archivePath string) error

// Result EnsureBundle 的结果
type Result struct {
	ID      string `json:"appBundle"` // owner.name+alias
	Version int    `json:"version"`
}

// Provisioner bundle 供应器
type Provisioner struct {
	engine     EngineAPI
	upload     UploadFunc
	owner      string
	alias      string
	bundlesDir string
}

// NewProvisioner 创建 Provisioner
//
// upload 为 nil 时使用 engine.UploadPackage 和默认 HTTP 客户端。
func NewProvisioner(api EngineAPI, upload UploadFunc, owner, alias, bundlesDir string) *Provisioner {
	if upload == nil {
		upload = func(ctx context.Context, params engine.UploadParameters, archivePath string) error {
			return engine.UploadPackage(ctx, nil, params, archivePath)
		}
	}
	if alias == "" {
		alias = model.DefaultAlias
	}
	return &Provisioner{
		engine:     api,
		upload:     upload,
		owner:      owner,
		alias:      alias,
		bundlesDir: bundlesDir,
	}
}

// EnsureBundle 上传本地压缩包为 bundle 的新版本，并把固定别名指向它
//
// 别名只在上传成功后创建或重定向；上传失败时新版本保持无别名，
// 已有别名仍指向上一个可用版本。
func (p *Provisioner) EnsureBundle(ctx context.Context, zipFileName, engineID string) (*Result, error) {
	const op = "EnsureBundle"

	pkg := model.BundlePackage{ZipName: zipFileName, Engine: engineID}
	archive := filepath.Join(p.bundlesDir, pkg.ArchiveFile())
	if _, err := os.Stat(archive); err != nil {
		return nil, apperr.Errorf(apperr.KindInvalidInput, op, "bundle archive %s not found", pkg.ArchiveFile())
	}

	bundles, err := p.engine.ListAppBundles(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEngineFailure, op, err)
	}
	qualified := pkg.QualifiedID(p.owner, p.alias)
	aliased := contains(bundles, qualified)

	spec := &engine.AppBundle{
		ID:          pkg.CanonicalName(),
		Engine:      engineID,
		Description: "Bundle " + pkg.CanonicalName(),
	}

	var created *engine.AppBundleVersion
	if aliased {
		created, err = p.newVersion(ctx, pkg, spec)
	} else {
		created, err = p.engine.CreateAppBundle(ctx, spec)
		if errdefs.IsConflict(err) || errdefs.IsAlreadyExists(err) {
			// bundle 已存在但别名缺失（上次上传失败）
			log.Printf("[AppBundle] %s exists without alias, creating new version", pkg.CanonicalName())
			created, err = p.newVersion(ctx, pkg, spec)
		} else if err != nil {
			err = apperr.Wrap(apperr.KindRemoteCreateFailure, op, err)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := p.upload(ctx, created.UploadParameters, archive); err != nil {
		return nil, apperr.ArtifactIOFailure(op, fmt.Errorf("upload %s v%d: %w", pkg.ArchiveFile(), created.Version, err))
	}

	if err := p.pointAlias(ctx, pkg, created.Version, aliased); err != nil {
		return nil, err
	}

	log.Printf("[AppBundle] %s now at version %d", qualified, created.Version)
	return &Result{ID: qualified, Version: created.Version}, nil
}

func (p *Provisioner) newVersion(ctx context.Context, pkg model.BundlePackage, spec *engine.AppBundle) (*engine.AppBundleVersion, error) {
	version := &engine.AppBundle{Engine: spec.Engine, Description: spec.Description}
	v, err := p.engine.CreateAppBundleVersion(ctx, pkg.CanonicalName(), version)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteCreateFailure, "CreateAppBundleVersion", err)
	}
	return v, nil
}

// pointAlias 创建别名；别名已存在时重定向到新版本
func (p *Provisioner) pointAlias(ctx context.Context, pkg model.BundlePackage, version int, exists bool) error {
	const op = "PointAlias"
	name := pkg.CanonicalName()
	if !exists {
		_, err := p.engine.CreateAppBundleAlias(ctx, name, engine.Alias{ID: p.alias, Version: version})
		if err == nil {
			return nil
		}
		if !errdefs.IsConflict(err) && !errdefs.IsAlreadyExists(err) {
			return apperr.Wrap(apperr.KindRemoteCreateFailure, op, err)
		}
	}
	if _, err := p.engine.ModifyAppBundleAlias(ctx, name, p.alias, version); err != nil {
		return apperr.Wrap(apperr.KindRemoteCreateFailure, op, err)
	}
	return nil
}

// ListLocalBundles 列出本地可用的 bundle 压缩包（不含扩展名）
func (p *Provisioner) ListLocalBundles() ([]string, error) {
	entries, err := os.ReadDir(p.bundlesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read bundles dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// ListEngines 列出全部执行引擎
func (p *Provisioner) ListEngines(ctx context.Context) ([]string, error) {
	engines, err := p.engine.ListEngines(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEngineFailure, "ListEngines", err)
	}
	sort.Strings(engines)
	return engines, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
