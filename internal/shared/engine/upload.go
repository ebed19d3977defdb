package engine

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UploadPackage 把本地压缩包上传到创建响应给出的预签名 multipart 目标
//
// 表单字段按原样写入（跳过空值），文件字段名固定为 "file" 且必须位于最后。
// 目标地址本身已签名，不附带 Bearer 凭据。
func UploadPackage(ctx context.Context, httpClient *http.Client, params UploadParameters, archivePath string) error {
	if params.EndpointURL == "" {
		return fmt.Errorf("upload endpoint missing in engine response")
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, params.FormData, filepath.Base(archivePath), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.EndpointURL, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload package: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func writeUploadForm(mw *multipart.Writer, fields map[string]string, fileName string, file io.Reader) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if fields[k] == "" {
			continue
		}
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
