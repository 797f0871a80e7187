// internal/handler/firmware_handler_test.go
package handler

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/firmware"
	"superkey-service/internal/transport"
)

func newFirmwareTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	link := transport.New(testSerialConfig(), zap.NewNop())
	cfg := &config.FirmwareConfig{
		Chip:              "SF32LB52",
		SpinnerThreshold:  500 * time.Millisecond,
		ReconnectAttempts: 1,
		ReconnectDelay:    time.Millisecond,
		PostFlashBaud:     1000000,
	}
	updater := firmware.NewUpdater(cfg, link, zap.NewNop())
	version := firmware.NewVersionChecker(link)
	h := NewFirmwareHandler(updater, version, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func writeTestBundle(t *testing.T, names []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "update.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("bin"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestFirmwareStatusIdle(t *testing.T) {
	router := newFirmwareTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/firmware/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "idle", body.Data.Status)
	assert.Zero(t, body.Data.Progress)
}

func TestFirmwareManifest(t *testing.T) {
	router := newFirmwareTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/firmware/manifest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bootloader.bin")
	assert.Contains(t, w.Body.String(), "ftab.bin")
}

func TestFirmwareValidateCompleteBundle(t *testing.T) {
	router := newFirmwareTestRouter(t)

	var names []string
	for _, entry := range firmware.DefaultManifest {
		names = append(names, entry.FileName)
	}
	bundle := writeTestBundle(t, names)

	w := doRequest(router, http.MethodPost, "/api/v1/firmware/validate",
		fmt.Sprintf(`{"bundle_path":%q}`, bundle))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message string `json:"message"`
		Data    struct {
			OK      bool     `json:"ok"`
			Missing []string `json:"missing_files"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.OK)
	assert.Empty(t, body.Data.Missing)
}

func TestFirmwareValidateIncompleteBundle(t *testing.T) {
	router := newFirmwareTestRouter(t)

	bundle := writeTestBundle(t, []string{"ftab.bin", "main.bin"})

	w := doRequest(router, http.MethodPost, "/api/v1/firmware/validate",
		fmt.Sprintf(`{"bundle_path":%q}`, bundle))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message string `json:"message"`
		Data    struct {
			OK      bool     `json:"ok"`
			Missing []string `json:"missing_files"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.OK)
	assert.Equal(t, "Bundle rejected", body.Message)
	assert.Contains(t, body.Data.Missing, "bootloader.bin")
}

func TestFirmwareValidateRequiresPath(t *testing.T) {
	router := newFirmwareTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/firmware/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFirmwareStartWithoutBundle(t *testing.T) {
	router := newFirmwareTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/firmware/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFirmwareVersionWhileDisconnected(t *testing.T) {
	router := newFirmwareTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/firmware/version", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFirmwareCancelResetsState(t *testing.T) {
	router := newFirmwareTestRouter(t)

	var names []string
	for _, entry := range firmware.DefaultManifest {
		names = append(names, entry.FileName)
	}
	bundle := writeTestBundle(t, names)

	w := doRequest(router, http.MethodPost, "/api/v1/firmware/validate",
		fmt.Sprintf(`{"bundle_path":%q}`, bundle))
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/firmware/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/firmware/status", "")
	assert.Contains(t, w.Body.String(), "idle")
}
