// Package api serves a read-only HTTP view of a tensor container: the
// manifest, the tensor directory, per-tensor info, and raw payload bytes.
package api

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/quantkit/pkg/qtc"
)

type Server struct {
	file     *qtc.File
	manifest *qtc.Manifest
}

// NewServer wraps an open container. The manifest may be nil when no
// sidecar exists. The server does not own the file; the caller closes it.
func NewServer(f *qtc.File, man *qtc.Manifest) *Server {
	return &Server{file: f, manifest: man}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/manifest", s.handleManifest)
	e.GET("/v1/metadata", s.handleMetadata)
	e.GET("/v1/tensors", s.handleListTensors)
	e.GET("/v1/tensors/:name", s.handleGetTensor)
	e.GET("/v1/tensors/:name/data", s.handleGetTensorData)
}

func (s *Server) handleManifest(c *echo.Context) error {
	if s.manifest == nil {
		return writeNotFound(c, "no manifest sidecar for this container")
	}
	return c.JSON(http.StatusOK, s.manifest)
}

func (s *Server) handleMetadata(c *echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, s.file.MetadataRaw())
}

func (s *Server) handleListTensors(c *echo.Context) error {
	out := TensorListResp{Tensors: make([]TensorResp, 0, s.file.Count())}
	for i := 0; i < s.file.Count(); i++ {
		tr, err := s.tensorResp(i)
		if err != nil {
			return writeServerError(c, err.Error())
		}
		out.Tensors = append(out.Tensors, tr)
	}
	sort.Slice(out.Tensors, func(i, j int) bool { return out.Tensors[i].Name < out.Tensors[j].Name })
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTensor(c *echo.Context) error {
	i, ok := s.file.Lookup(c.Param("name"))
	if !ok {
		return writeNotFound(c, "no such tensor")
	}
	tr, err := s.tensorResp(i)
	if err != nil {
		return writeServerError(c, err.Error())
	}
	return c.JSON(http.StatusOK, tr)
}

func (s *Server) handleGetTensorData(c *echo.Context) error {
	i, ok := s.file.Lookup(c.Param("name"))
	if !ok {
		return writeNotFound(c, "no such tensor")
	}
	data, err := s.file.Data(i)
	if err != nil {
		return writeServerError(c, err.Error())
	}
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
}

func (s *Server) tensorResp(i int) (TensorResp, error) {
	info, err := s.file.Info(i)
	if err != nil {
		return TensorResp{}, err
	}
	data, err := s.file.Data(i)
	if err != nil {
		return TensorResp{}, err
	}
	elems, err := info.Elements()
	if err != nil {
		return TensorResp{}, err
	}
	return TensorResp{
		Name:     info.Name,
		Scheme:   info.Scheme.String(),
		Shape:    info.Dims,
		Elements: elems,
		Bytes:    len(data),
	}, nil
}
