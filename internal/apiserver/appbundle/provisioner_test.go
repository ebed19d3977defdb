package appbundle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/engine"
	"automation-bridge/internal/shared/schema"
)

// ============================================================================
// Mock 执行引擎
// ============================================================================

type fakeEngine struct {
	bundles     []string
	engines     []string
	createErr   error
	aliasErr    error
	nextVersion int
	calls       []string
}

func (f *fakeEngine) ListEngines(ctx context.Context) ([]string, error) {
	f.calls = append(f.calls, "ListEngines")
	return f.engines, nil
}

func (f *fakeEngine) ListAppBundles(ctx context.Context) ([]string, error) {
	f.calls = append(f.calls, "ListAppBundles")
	return f.bundles, nil
}

func (f *fakeEngine) CreateAppBundle(ctx context.Context, spec *engine.AppBundle) (*engine.AppBundleVersion, error) {
	f.calls = append(f.calls, "CreateAppBundle:"+spec.ID)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.version(spec), nil
}

func (f *fakeEngine) CreateAppBundleVersion(ctx context.Context, id string, spec *engine.AppBundle) (*engine.AppBundleVersion, error) {
	f.calls = append(f.calls, "CreateAppBundleVersion:"+id)
	return f.version(spec), nil
}

func (f *fakeEngine) CreateAppBundleAlias(ctx context.Context, id string, alias engine.Alias) (*engine.Alias, error) {
	f.calls = append(f.calls, fmt.Sprintf("CreateAppBundleAlias:%s:%s:%d", id, alias.ID, alias.Version))
	if f.aliasErr != nil {
		return nil, f.aliasErr
	}
	return &alias, nil
}

func (f *fakeEngine) ModifyAppBundleAlias(ctx context.Context, id, aliasID string, version int) (*engine.Alias, error) {
	f.calls = append(f.calls, fmt.Sprintf("ModifyAppBundleAlias:%s:%s:%d", id, aliasID, version))
	return &engine.Alias{ID: aliasID, Version: version}, nil
}

func (f *fakeEngine) version(spec *engine.AppBundle) *engine.AppBundleVersion {
	if f.nextVersion == 0 {
		f.nextVersion = 1
	}
	return &engine.AppBundleVersion{
		Engine:           spec.Engine,
		Version:          f.nextVersion,
		UploadParameters: engine.UploadParameters{EndpointURL: "https://upload.local", FormData: map[string]string{"key": "k"}},
	}
}

type recordingUpload struct {
	err   error
	paths []string
}

func (u *recordingUpload) Upload(ctx context.Context, params engine.UploadParameters, archivePath string) error {
	u.paths = append(u.paths, archivePath)
	return u.err
}

func bundlesDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("PK"), 0644))
	}
	return dir
}

const testEngine = "Autodesk.AutoCAD+24"

// ============================================================================
// EnsureBundle
// ============================================================================

func TestEnsureBundle_NewBundle(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	fe := &fakeEngine{}
	up := &recordingUpload{}
	p := NewProvisioner(fe, up.Upload, "owner", "", dir)

	res, err := p.EnsureBundle(context.Background(), "UpdateDWGParam", testEngine)
	require.NoError(t, err)
	assert.Equal(t, "owner.UpdateDWGParamAppBundle+dev", res.ID)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, []string{filepath.Join(dir, "UpdateDWGParam.zip")}, up.paths)
	assert.Equal(t, []string{
		"ListAppBundles",
		"CreateAppBundle:UpdateDWGParamAppBundle",
		"CreateAppBundleAlias:UpdateDWGParamAppBundle:dev:1",
	}, fe.calls)
}

func TestEnsureBundle_ExistingAliasRepointed(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	fe := &fakeEngine{bundles: []string{"owner.UpdateDWGParamAppBundle+dev"}, nextVersion: 4}
	p := NewProvisioner(fe, (&recordingUpload{}).Upload, "owner", "dev", dir)

	res, err := p.EnsureBundle(context.Background(), "UpdateDWGParam", testEngine)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Version)
	assert.Equal(t, []string{
		"ListAppBundles",
		"CreateAppBundleVersion:UpdateDWGParamAppBundle",
		"ModifyAppBundleAlias:UpdateDWGParamAppBundle:dev:4",
	}, fe.calls)
}

// TestEnsureBundle_ConflictWithoutAlias 上次上传失败留下无别名的 bundle
func TestEnsureBundle_ConflictWithoutAlias(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	fe := &fakeEngine{createErr: fmt.Errorf("%w: status 409", errdefs.ErrConflict), nextVersion: 2}
	p := NewProvisioner(fe, (&recordingUpload{}).Upload, "owner", "dev", dir)

	res, err := p.EnsureBundle(context.Background(), "UpdateDWGParam", testEngine)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Version)
	assert.Contains(t, fe.calls, "CreateAppBundleVersion:UpdateDWGParamAppBundle")
	assert.Contains(t, fe.calls, "CreateAppBundleAlias:UpdateDWGParamAppBundle:dev:2")
}

// TestEnsureBundle_AliasConflictFallsBackToModify 别名已存在但未出现在列表中
func TestEnsureBundle_AliasConflictFallsBackToModify(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	fe := &fakeEngine{aliasErr: fmt.Errorf("%w: status 409", errdefs.ErrConflict)}
	p := NewProvisioner(fe, (&recordingUpload{}).Upload, "owner", "dev", dir)

	_, err := p.EnsureBundle(context.Background(), "UpdateDWGParam", testEngine)
	require.NoError(t, err)
	assert.Equal(t, "ModifyAppBundleAlias:UpdateDWGParamAppBundle:dev:1", fe.calls[len(fe.calls)-1])
}

// TestEnsureBundle_UploadFailureLeavesAliasUntouched 上传失败时不创建也不移动别名
func TestEnsureBundle_UploadFailureLeavesAliasUntouched(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	fe := &fakeEngine{bundles: []string{"owner.UpdateDWGParamAppBundle+dev"}, nextVersion: 5}
	up := &recordingUpload{err: errors.New("status 403")}
	p := NewProvisioner(fe, up.Upload, "owner", "dev", dir)

	_, err := p.EnsureBundle(context.Background(), "UpdateDWGParam", testEngine)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindArtifactIOFailure))
	for _, c := range fe.calls {
		assert.False(t, strings.Contains(c, "Alias"), c)
	}
}

func TestEnsureBundle_MissingArchive(t *testing.T) {
	fe := &fakeEngine{}
	p := NewProvisioner(fe, (&recordingUpload{}).Upload, "owner", "dev", bundlesDir(t))

	_, err := p.EnsureBundle(context.Background(), "Nope", testEngine)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Empty(t, fe.calls)
}

func TestEnsureBundle_EngineRejects(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	fe := &fakeEngine{createErr: fmt.Errorf("%w: status 400: bad engine", errdefs.ErrInvalidArgument)}
	p := NewProvisioner(fe, (&recordingUpload{}).Upload, "owner", "dev", dir)

	_, err := p.EnsureBundle(context.Background(), "UpdateDWGParam", testEngine)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRemoteCreateFailure))
}

// ============================================================================
// 列表
// ============================================================================

func TestListLocalBundles(t *testing.T) {
	dir := bundlesDir(t, "b.zip", "a.ZIP", "readme.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.zip"), 0755))
	p := NewProvisioner(&fakeEngine{}, nil, "owner", "dev", dir)

	names, err := p.ListLocalBundles()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestListLocalBundles_MissingDir(t *testing.T) {
	p := NewProvisioner(&fakeEngine{}, nil, "owner", "dev", filepath.Join(t.TempDir(), "none"))
	names, err := p.ListLocalBundles()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListEngines_Sorted(t *testing.T) {
	p := NewProvisioner(&fakeEngine{engines: []string{"Autodesk.Revit+2024", "Autodesk.AutoCAD+24"}}, nil, "owner", "dev", "")
	engines, err := p.ListEngines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Autodesk.AutoCAD+24", "Autodesk.Revit+2024"}, engines)
}

// ============================================================================
// HTTP
// ============================================================================

func newMux(t *testing.T, p *Provisioner) *http.ServeMux {
	t.Helper()
	v, err := schema.Load()
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewHandler(p, v).RegisterRoutes(mux)
	return mux
}

func TestHandler_Create(t *testing.T) {
	dir := bundlesDir(t, "UpdateDWGParam.zip")
	mux := newMux(t, NewProvisioner(&fakeEngine{}, (&recordingUpload{}).Upload, "owner", "dev", dir))

	req := httptest.NewRequest(http.MethodPost, "/api/aps/designautomation/appbundles",
		strings.NewReader(`{"zipFileName":"UpdateDWGParam","engine":"Autodesk.AutoCAD+24"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"appBundle":"owner.UpdateDWGParamAppBundle+dev","version":1}`, rec.Body.String())
}

func TestHandler_CreateRejectsInvalidBody(t *testing.T) {
	fe := &fakeEngine{}
	mux := newMux(t, NewProvisioner(fe, nil, "owner", "dev", bundlesDir(t)))

	for _, body := range []string{`{}`, `{"zipFileName":"../etc","engine":"x"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/aps/designautomation/appbundles", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, fe.calls)
}

func TestHandler_ListLocal(t *testing.T) {
	mux := newMux(t, NewProvisioner(&fakeEngine{}, nil, "owner", "dev", bundlesDir(t, "UpdateDWGParam.zip")))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appbundles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["UpdateDWGParam"]`, rec.Body.String())
}
