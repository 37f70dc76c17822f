package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/qtc"
	"github.com/samcharles93/quantkit/pkg/tensorq"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()

	vals := make([]float32, 64)
	for i := range vals {
		vals[i] = float32(i) * 0.25
	}
	raw, err := blockq.Quantize(blockq.Q8_0, vals)
	require.NoError(t, err)
	tn, err := tensorq.New(tensorq.Info{
		Name:   "blk.0.attn_q.weight",
		Scheme: blockq.Q8_0,
		Dims:   []uint64{2, 32},
	}, raw)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.qtc")
	man, err := qtc.WriteFile(path, "test-model", []*tensorq.Tensor{tn}, map[string]string{"arch": "llama"})
	require.NoError(t, err)

	f, err := qtc.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	e := echo.New()
	NewServer(f, man).Register(e)
	return e
}

func doGet(t *testing.T, e *echo.Echo, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestManifestEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doGet(t, e, "/v1/manifest")
	require.Equal(t, http.StatusOK, rec.Code)

	var man qtc.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &man))
	require.Equal(t, "test-model", man.Model)
	require.Equal(t, uint32(1), man.TensorCount)
}

func TestListAndGetTensor(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)

	rec := doGet(t, e, "/v1/tensors")
	require.Equal(t, http.StatusOK, rec.Code)
	var list TensorListResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Tensors, 1)
	require.Equal(t, "blk.0.attn_q.weight", list.Tensors[0].Name)
	require.Equal(t, "Q8_0", list.Tensors[0].Scheme)
	require.Equal(t, 64, list.Tensors[0].Elements)

	rec = doGet(t, e, "/v1/tensors/blk.0.attn_q.weight")
	require.Equal(t, http.StatusOK, rec.Code)
	var tr TensorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	require.Equal(t, []uint64{2, 32}, tr.Shape)

	rec = doGet(t, e, "/v1/tensors/does.not.exist")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTensorDataEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doGet(t, e, "/v1/tensors/blk.0.attn_q.weight/data")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2*blockq.BlockQ8_0Bytes, rec.Body.Len())
}

func TestMetadataEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doGet(t, e, "/v1/metadata")
	require.Equal(t, http.StatusOK, rec.Code)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	require.Equal(t, "llama", meta["arch"])
}
