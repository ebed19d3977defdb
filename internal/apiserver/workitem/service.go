package workitem

import (
	"context"
	"io"
	"log"
	"strings"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/model"
	"automation-bridge/internal/shared/objstore"
)

// Stager 输入输出制品暂存（objstore.Resolver 实现）
type Stager interface {
	StageInput(ctx context.Context, fileName string, reader io.Reader, size int64) (*objstore.StagedInput, error)
	OutputName(inputFileName string) string
	OutputReference(ctx context.Context, name string) (model.ArtifactReference, error)
}

// CallbackURLs 生成带签名状态的回调地址（callback.URLBuilder 实现）
type CallbackURLs interface {
	Build(requesterID, outputFileName string) (string, error)
}

// Observer 作业提交指标
type Observer interface {
	RecordWorkItem(outcome string)
}

type noopObserver struct{}

func (noopObserver) RecordWorkItem(outcome string) {}

// JobData 浏览器随输入文件提交的参数
type JobData struct {
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	ActivityName        string `json:"activityName"`
	BrowserConnectionID string `json:"browserConnectionId"`
}

// JobRequest 一次完整的作业请求
type JobRequest struct {
	FileName string
	File     io.Reader
	Size     int64
	Data     JobData
}

// Service 作业服务：暂存制品、生成回调地址、提交作业
type Service struct {
	submitter *Submitter
	stager    Stager
	callbacks CallbackURLs
	owner     string
	alias     string
	observer  Observer
}

// NewService 创建 Service
func NewService(submitter *Submitter, stager Stager, callbacks CallbackURLs, owner, alias string, observer Observer) *Service {
	if alias == "" {
		alias = model.DefaultAlias
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Service{
		submitter: submitter,
		stager:    stager,
		callbacks: callbacks,
		owner:     owner,
		alias:     alias,
		observer:  observer,
	}
}

// SubmitJob 上传输入文件并提交作业
//
// 输出对象名为 {时间戳}_output_{输入文件名}，同时写入回调地址，
// 回调到达时据此签发下载地址。
func (s *Service) SubmitJob(ctx context.Context, req JobRequest) (*JobHandle, error) {
	handle, err := s.submitJob(ctx, req)
	if err != nil {
		s.observer.RecordWorkItem(string(apperr.KindOf(err)))
		return nil, err
	}
	s.observer.RecordWorkItem("submitted")
	return handle, nil
}

func (s *Service) submitJob(ctx context.Context, req JobRequest) (*JobHandle, error) {
	const op = "SubmitJob"
	if strings.TrimSpace(req.FileName) == "" {
		return nil, apperr.Errorf(apperr.KindInvalidInput, op, "input file name is required")
	}
	if req.Data.BrowserConnectionID == "" || req.Data.ActivityName == "" {
		return nil, apperr.Errorf(apperr.KindInvalidInput, op, "activityName and browserConnectionId are required")
	}

	input, err := s.stager.StageInput(ctx, req.FileName, req.File, req.Size)
	if err != nil {
		return nil, err
	}

	outputName := s.stager.OutputName(req.FileName)
	output, err := s.stager.OutputReference(ctx, outputName)
	if err != nil {
		return nil, err
	}

	paramsDoc, err := model.InlineDocument(model.JobParams{Width: req.Data.Width, Height: req.Data.Height})
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, err)
	}

	callbackURL, err := s.callbacks.Build(req.Data.BrowserConnectionID, outputName)
	if err != nil {
		return nil, apperr.New(apperr.KindEngineFailure, op, err)
	}

	handle, err := s.submitter.Submit(ctx, SubmitRequest{
		ActivityID:  QualifiedActivityID(s.owner, s.alias, req.Data.ActivityName),
		Input:       input.Reference,
		ParamsDoc:   paramsDoc,
		Output:      output,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WorkItem] submitted %s for %s (input %s, output %s)", handle.ID, req.Data.BrowserConnectionID, input.Name, outputName)
	return handle, nil
}
