package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-bridge/internal/shared/credential"
	"automation-bridge/internal/shared/model"
)

// staticCreds 固定凭据，记录失效次数
type staticCreds struct {
	token       string
	invalidated int32
}

func (s *staticCreds) Get(ctx context.Context) (credential.Credential, error) {
	return credential.Credential{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *staticCreds) Invalidate() { atomic.AddInt32(&s.invalidated, 1) }

// ============================================================================
// 分页
// ============================================================================

// TestListEngines_FollowsPagination 沿分页令牌遍历全部页
func TestListEngines_FollowsPagination(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/engines", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			json.NewEncoder(w).Encode(Page{PaginationToken: "p2", Data: []string{"Autodesk.AutoCAD+24"}})
		case "p2":
			json.NewEncoder(w).Encode(Page{PaginationToken: "p3", Data: []string{"Autodesk.Revit+2024"}})
		default:
			json.NewEncoder(w).Encode(Page{Data: []string{"Autodesk.Inventor+2024"}})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticCreds{token: "tok"}, srv.Client())
	engines, err := c.ListEngines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Autodesk.AutoCAD+24", "Autodesk.Revit+2024", "Autodesk.Inventor+2024"}, engines)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// ============================================================================
// 错误分类
// ============================================================================

// TestClient_StatusClassification 非 2xx 状态码转换为 errdefs 语义
func TestClient_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusConflict, errdefs.IsConflict},
		{http.StatusNotFound, errdefs.IsNotFound},
		{http.StatusBadRequest, errdefs.IsInvalidArgument},
		{http.StatusForbidden, errdefs.IsPermissionDenied},
		{http.StatusBadGateway, errdefs.IsUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"diagnostic":"rejected"}`, tc.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, &staticCreds{token: "tok"}, srv.Client())
			_, err := c.CreateAppBundle(context.Background(), &AppBundle{ID: "x", Engine: "e"})
			require.Error(t, err)
			assert.True(t, tc.check(err), "status %d classified as %v", tc.status, err)
			assert.Contains(t, err.Error(), "rejected")
		})
	}
}

// TestClient_UnauthorizedInvalidatesCredential 401 时丢弃缓存凭据
func TestClient_UnauthorizedInvalidatesCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &staticCreds{token: "stale"}
	c := NewClient(srv.URL, creds, srv.Client())
	_, err := c.ListActivities(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&creds.invalidated))
}

// ============================================================================
// 请求体
// ============================================================================

// TestCreateWorkItem_SendsBindings 提交作业时发送完整的参数绑定
func TestCreateWorkItem_SendsBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/workitems", r.URL.Path)

		var wi model.WorkItem
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&wi))
		assert.Equal(t, "owner.ResizeActivity+dev", wi.ActivityID)
		assert.Len(t, wi.Arguments, 4)
		assert.Equal(t, model.VerbPut, wi.Arguments[model.ParamOutputFile].Verb)
		assert.Equal(t, model.VerbPost, wi.Arguments[model.ParamOnComplete].Verb)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"wi-1","status":"pending"}`))
	}))
	defer srv.Close()

	wi := model.NewWorkItem("owner.ResizeActivity+dev",
		model.ArtifactReference{URL: "https://store/in"},
		`data:application/json, {"width":1,"height":2}`,
		model.ArtifactReference{URL: "https://store/out"},
		"https://hook/cb")

	c := NewClient(srv.URL, &staticCreds{token: "tok"}, srv.Client())
	st, err := c.CreateWorkItem(context.Background(), wi)
	require.NoError(t, err)
	assert.Equal(t, "wi-1", st.ID)
	assert.Equal(t, "pending", st.Status)
}

// TestModifyAppBundleAlias 别名重定向使用 PATCH
func TestModifyAppBundleAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/appbundles/UpdateParamAppBundle/aliases/dev", r.URL.Path)
		var patch AliasPatch
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Equal(t, 3, patch.Version)
		w.Write([]byte(`{"id":"dev","version":3}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticCreds{token: "tok"}, srv.Client())
	alias, err := c.ModifyAppBundleAlias(context.Background(), "UpdateParamAppBundle", "dev", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, alias.Version)
}

// ============================================================================
// 上传
// ============================================================================

// TestUploadPackage 表单字段在前，文件字段 "file" 在最后
func TestUploadPackage(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "UpdateParam.zip")
	require.NoError(t, os.WriteFile(archive, []byte("zip-bytes"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		var names []string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			names = append(names, part.FormName())
			if part.FormName() == "file" {
				b, _ := io.ReadAll(part)
				assert.Equal(t, "zip-bytes", string(b))
			}
		}
		assert.Equal(t, []string{"key", "policy", "file"}, names)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := UploadPackage(context.Background(), srv.Client(), UploadParameters{
		EndpointURL: srv.URL,
		FormData:    map[string]string{"policy": "p", "key": "k", "empty": ""},
	}, archive)
	require.NoError(t, err)
}

// TestUploadPackage_Rejected 上传目标拒绝时返回错误
func TestUploadPackage_Rejected(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()

	err := UploadPackage(context.Background(), srv.Client(), UploadParameters{EndpointURL: srv.URL}, archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
