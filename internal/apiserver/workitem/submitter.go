// Package workitem 作业领域 - 制品暂存与作业提交
package workitem

import (
	"context"
	"fmt"
	"strings"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/model"
)

// EngineAPI 提交作业所需的执行引擎接口（engine.Client 实现）
type EngineAPI interface {
	CreateWorkItem(ctx context.Context, wi *model.WorkItem) (*model.WorkItemStatus, error)
}

// SubmitRequest 一次作业提交的全部绑定
type SubmitRequest struct {
	ActivityID  string                  // owner.name+alias
	Input       model.ArtifactReference // get
	ParamsDoc   string                  // data:application/json, {...}
	Output      model.ArtifactReference // put
	CallbackURL string                  // onComplete，post
}

// JobHandle 作业句柄
type JobHandle struct {
	ID     string `json:"workItemId"`
	Status string `json:"status,omitempty"`
}

// Submitter 作业提交客户端
//
// 只负责提交，不轮询状态；完成通知走回调。
type Submitter struct {
	engine EngineAPI
}

// NewSubmitter 创建 Submitter
func NewSubmitter(api EngineAPI) *Submitter {
	return &Submitter{engine: api}
}

// Submit 按固定的四参数契约提交作业
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*JobHandle, error) {
	const op = "SubmitWorkItem"
	if req.ActivityID == "" {
		return nil, apperr.Errorf(apperr.KindInvalidInput, op, "activity id is required")
	}
	if req.Input.URL == "" || req.Output.URL == "" || req.CallbackURL == "" {
		return nil, apperr.Errorf(apperr.KindInvalidInput, op, "input, output and callback bindings are required")
	}

	wi := model.NewWorkItem(req.ActivityID, req.Input, req.ParamsDoc, req.Output, req.CallbackURL)
	status, err := s.engine.CreateWorkItem(ctx, wi)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteCreateFailure, op, err)
	}
	if status.ID == "" {
		return nil, apperr.Errorf(apperr.KindRemoteCreateFailure, op, "engine returned no work item id")
	}
	return &JobHandle{ID: status.ID, Status: status.Status}, nil
}

// QualifiedActivityID 为 activity 名补上所有者前缀，没有别名时补上 alias
//
// 列表接口返回的 X+dev 与裸名 X 都解析为 owner.X+dev。
func QualifiedActivityID(owner, alias, activityName string) string {
	if strings.Contains(activityName, "+") {
		return fmt.Sprintf("%s.%s", owner, activityName)
	}
	return model.QualifiedID(owner, activityName, alias)
}
