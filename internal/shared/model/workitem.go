package model

import (
	"encoding/json"
	"fmt"
)

// ArtifactReference 远端制品引用
//
// Verb 由参数角色决定（输入 get，输出 put）；Headers 通常携带 Bearer 凭据。
type ArtifactReference struct {
	URL     string            `json:"url"`
	Verb    Verb              `json:"verb,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// WorkItem 一次作业实例
type WorkItem struct {
	ActivityID string                       `json:"activityId"`
	Arguments  map[string]ArtifactReference `json:"arguments"`
}

// WorkItemStatus 执行引擎返回的作业状态（提交响应与完成回调共用）
type WorkItemStatus struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	ReportURL string          `json:"reportUrl,omitempty"`
	Progress  string          `json:"progress,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
}

// StatusSuccess 作业成功完成
const StatusSuccess = "success"

// Succeeded 作业是否成功
func (s *WorkItemStatus) Succeeded() bool {
	return s.Status == StatusSuccess
}

// JobParams 作业输入参数（以内联 JSON 文档传入 inputJson）
type JobParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// InlineDocument 把参数编码为 data URI 形式的内联文档
func InlineDocument(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return "data:application/json, " + string(b), nil
}

// NewWorkItem 构造四参数绑定的 WorkItem
func NewWorkItem(activityID string, input ArtifactReference, paramsDoc string, output ArtifactReference, callbackURL string) *WorkItem {
	input.Verb = VerbGet
	output.Verb = VerbPut
	return &WorkItem{
		ActivityID: activityID,
		Arguments: map[string]ArtifactReference{
			ParamInputFile:  input,
			ParamInputJSON:  {URL: paramsDoc},
			ParamOutputFile: output,
			ParamOnComplete: {URL: callbackURL, Verb: VerbPost},
		},
	}
}
