// Package callback 执行引擎完成回调
//
// 回调到达后按固定顺序向请求方推送三条消息：
//  1. onComplete：原始回调正文
//  2. onComplete：执行报告正文
//  3. downloadResult：输出制品的短时签名下载地址（仅成功时）
//
// 任何一步失败都只分类记录，不影响后续步骤，也不会让回调本身失败。
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"automation-bridge/internal/apiserver/notify"
	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/model"
	"automation-bridge/internal/shared/schema"
	"automation-bridge/pkg/logging"
)

// 处理步骤
const (
	StepRawBody  = "raw_body"
	StepParse    = "parse"
	StepReport   = "report"
	StepDownload = "download"
)

// Sender 向请求方推送事件（notify.Registry 实现）
type Sender interface {
	Send(ctx context.Context, id, event string, payload any) error
}

// DownloadSigner 生成输出制品下载地址（objstore.Resolver 实现）
type DownloadSigner interface {
	DownloadURL(ctx context.Context, name string) (string, error)
}

// BodyValidator 校验回调正文（schema.Validator 实现）
type BodyValidator interface {
	Validate(name string, body []byte) error
}

// Observer 回调指标
type Observer interface {
	RecordCallback(outcome string)
	RecordCallbackFailure(step, kind string)
}

type noopObserver struct{}

func (noopObserver) RecordCallback(outcome string)           {}
func (noopObserver) RecordCallbackFailure(step, kind string) {}

// Completion 一次已验证的完成回调
type Completion struct {
	RequesterID    string
	OutputFileName string
	Body           []byte
}

// Dispatcher 回调分发器
type Dispatcher struct {
	sender    Sender
	downloads DownloadSigner
	validator BodyValidator
	http      *http.Client
	logger    *logging.Logger
	observer  Observer
}

// DispatcherOptions 可选依赖
type DispatcherOptions struct {
	Validator  BodyValidator
	HTTPClient *http.Client
	Logger     *logging.Logger
	Observer   Observer
}

// NewDispatcher 创建回调分发器
func NewDispatcher(sender Sender, downloads DownloadSigner, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		sender:    sender,
		downloads: downloads,
		validator: opts.Validator,
		http:      opts.HTTPClient,
		logger:    opts.Logger,
		observer:  opts.Observer,
	}
	if d.http == nil {
		d.http = &http.Client{Timeout: 30 * time.Second}
	}
	if d.logger == nil {
		d.logger = logging.Default("callback")
	}
	if d.observer == nil {
		d.observer = noopObserver{}
	}
	return d
}

// Dispatch 执行全部推送步骤，返回各步骤的分类错误（已记录日志）
//
// 请求方连接已不存在时直接结束，不再获取报告或签发下载地址。
func (d *Dispatcher) Dispatch(ctx context.Context, c Completion) error {
	log := d.logger.WithRequester(c.RequesterID)
	var errs []error

	// 1. 原始正文
	if err := d.sender.Send(ctx, c.RequesterID, notify.EventOnComplete, string(c.Body)); err != nil {
		if errors.Is(err, notify.ErrNoChannel) {
			log.Info("Requester no longer connected, dropping completion")
			return nil
		}
		errs = append(errs, d.fail(log, StepRawBody, apperr.KindEngineFailure, err))
	}

	// 2. 解析
	status, err := d.parse(c.Body)
	if err != nil {
		errs = append(errs, d.fail(log, StepParse, apperr.KindInvalidInput, err))
		return errors.Join(errs...)
	}
	log = log.WithWorkItem(status.ID)

	// 3. 执行报告
	if status.ReportURL != "" {
		report, err := d.fetchReport(ctx, status.ReportURL)
		if err == nil {
			err = d.sender.Send(ctx, c.RequesterID, notify.EventOnComplete, report)
		}
		if err != nil {
			errs = append(errs, d.fail(log, StepReport, apperr.KindArtifactIOFailure, err))
		}
	}

	// 4. 下载地址
	if !status.Succeeded() {
		log.Info("Work item did not succeed, no output to sign", "status", status.Status)
		return errors.Join(errs...)
	}
	signed, err := d.downloads.DownloadURL(ctx, c.OutputFileName)
	if err == nil {
		err = d.sender.Send(ctx, c.RequesterID, notify.EventDownloadResult, signed)
	}
	if err != nil {
		errs = append(errs, d.fail(log, StepDownload, apperr.KindArtifactIOFailure, err))
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) parse(body []byte) (*model.WorkItemStatus, error) {
	if d.validator != nil {
		if err := d.validator.Validate(schema.WorkItemStatus, body); err != nil {
			return nil, err
		}
	}
	var status model.WorkItemStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	return &status, nil
}

// fetchReport 下载执行报告正文（报告地址自带签名）
func (d *Dispatcher) fetchReport(ctx context.Context, reportURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("report status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fail 分类、记录并计数
func (d *Dispatcher) fail(log *logging.Logger, step string, cause apperr.Kind, err error) error {
	if k := apperr.KindOf(err); apperr.Is(err, k) {
		cause = k
	}
	wrapped := apperr.CallbackProcessingFailure(step, apperr.New(cause, step, err))
	log.WithErrorKind(string(cause)).CallbackStepLog(step, err)
	d.observer.RecordCallbackFailure(step, string(cause))
	return wrapped
}
