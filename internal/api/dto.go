package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

type TensorResp struct {
	Name     string   `json:"name"`
	Scheme   string   `json:"scheme"`
	Shape    []uint64 `json:"shape"`
	Elements int      `json:"elements"`
	Bytes    int      `json:"bytes"`
}

type TensorListResp struct {
	Tensors []TensorResp `json:"tensors"`
}

type ErrorResp struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeServerError(c *echo.Context, msg string) error {
	return writeError(c, http.StatusInternalServerError, "server_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorResp{Message: msg, Type: errType},
	})
}
