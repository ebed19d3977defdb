// Package activity activity 领域 - 作业模板构建
package activity

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/containerd/errdefs"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/engine"
	"automation-bridge/internal/shared/model"
)

// EngineAPI Builder 所需的执行引擎接口（engine.Client 实现）
type EngineAPI interface {
	ListActivities(ctx context.Context) ([]string, error)
	CreateActivity(ctx context.Context, def *model.ActivityDefinition) (*engine.ActivityVersion, error)
	CreateActivityAlias(ctx context.Context, id string, alias engine.Alias) (*engine.Alias, error)
}

// Result EnsureActivity 的结果
type Result struct {
	ID      string `json:"activity"` // owner.name+alias
	Created bool   `json:"created"`
}

// Builder activity 构建器
type Builder struct {
	engine EngineAPI
	owner  string
	alias  string
}

// NewBuilder 创建 Builder
func NewBuilder(api EngineAPI, owner, alias string) *Builder {
	if alias == "" {
		alias = model.DefaultAlias
	}
	return &Builder{engine: api, owner: owner, alias: alias}
}

// EnsureActivity 确保 bundle 对应的 activity 存在
//
// bundleName 可以是压缩包名（resize）或 bundle 规范名（resizeAppBundle），
// 两者都解析为 resizeActivity。已存在的 activity 原样返回，不会创建新版本；
// bundle 更新后仍沿用首次创建时的命令行与参数定义。
func (b *Builder) EnsureActivity(ctx context.Context, engineID, bundleName string) (*Result, error) {
	const op = "EnsureActivity"

	profile, err := model.LookupEngine(engineID)
	if err != nil {
		return nil, err
	}

	pkg := model.BundleFromCanonical(bundleName, engineID)
	qualified := model.QualifiedID(b.owner, pkg.ActivityName(), b.alias)

	existing, err := b.engine.ListActivities(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEngineFailure, op, err)
	}
	for _, id := range existing {
		if id == qualified {
			return &Result{ID: qualified, Created: false}, nil
		}
	}

	def := model.NewActivityDefinition(profile, pkg, b.owner, b.alias)
	created, err := b.engine.CreateActivity(ctx, def)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteCreateFailure, op, err)
	}

	_, err = b.engine.CreateActivityAlias(ctx, def.ID, engine.Alias{ID: b.alias, Version: created.Version})
	if err != nil && !errdefs.IsConflict(err) {
		return nil, apperr.Wrap(apperr.KindRemoteCreateFailure, op, err)
	}

	log.Printf("[Activity] created %s (engine %s, v%d)", qualified, engineID, created.Version)
	return &Result{ID: qualified, Created: true}, nil
}

// ListActivities 列出自有 activity（去掉所有者前缀，排除 $LATEST）
func (b *Builder) ListActivities(ctx context.Context) ([]string, error) {
	all, err := b.engine.ListActivities(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEngineFailure, "ListActivities", err)
	}
	prefix := b.owner + "."
	owned := make([]string, 0, len(all))
	for _, id := range all {
		if !strings.HasPrefix(id, prefix) || strings.HasSuffix(id, "+"+model.LatestAlias) {
			continue
		}
		owned = append(owned, strings.TrimPrefix(id, prefix))
	}
	sort.Strings(owned)
	return owned, nil
}
