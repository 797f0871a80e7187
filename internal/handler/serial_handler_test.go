// internal/handler/serial_handler_test.go
package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/discovery"
	"superkey-service/internal/transport"
)

func testSerialConfig() *config.SerialConfig {
	return &config.SerialConfig{
		Port:     "/dev/ttyTEST0",
		BaudRate: 1000000,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}
}

func newSerialTestRouter(t *testing.T) (*gin.Engine, *transport.Transport) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testSerialConfig()
	link := transport.New(cfg, zap.NewNop())
	detector := discovery.NewDetector(cfg, zap.NewNop())
	h := NewSerialHandler(link, detector, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return router, link
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetStatusDisconnected(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/serial/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Connected     bool                       `json:"connected"`
			Config        transport.ConnectionConfig `json:"config"`
			AutoReconnect bool                       `json:"auto_reconnect"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.False(t, body.Data.Connected)
	assert.Equal(t, "/dev/ttyTEST0", body.Data.Config.Port)
}

func TestListBaudRates(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/serial/bauds", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1000000")
}

func TestSendWhileDisconnected(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/serial/send", `{"data":"hello"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not connected")
}

func TestSendRequiresData(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/serial/send", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigureRejectsUnsupportedBaud(t *testing.T) {
	router, link := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPut, "/api/v1/serial/config", `{"baud_rate":12345}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1000000, link.Config().BaudRate)
}

func TestConfigureUpdatesPort(t *testing.T) {
	router, link := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPut, "/api/v1/serial/config", `{"port":"/dev/ttyACM3","baud_rate":115200}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/dev/ttyACM3", link.Config().Port)
	assert.Equal(t, 115200, link.Config().BaudRate)
}

func TestSetOptionsRejectsUnknownFormat(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPut, "/api/v1/serial/options", `{"send_format":"base64"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetOptionsTogglesAutoReconnect(t *testing.T) {
	router, link := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPut, "/api/v1/serial/options", `{"auto_reconnect":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, link.AutoReconnectEnabled())

	w = doRequest(router, http.MethodPut, "/api/v1/serial/options", `{"auto_reconnect":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, link.AutoReconnectEnabled())
}

func TestToggleLinesWhileDisconnected(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/serial/rts", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/serial/dtr", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAutoSendValidation(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/serial/autosend", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/serial/autosend", `{"enabled":true,"data":"x","interval_ms":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/serial/autosend", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReceiveEmptyBuffer(t *testing.T) {
	router, _ := newSerialTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/serial/receive", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Data   string `json:"data"`
			Format string `json:"format"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Data.Data)
	assert.Equal(t, "ascii", body.Data.Format)
}
