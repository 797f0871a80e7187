// internal/firmware/updater_test.go
package firmware

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/transport"
)

func testFirmwareConfig() *config.FirmwareConfig {
	return &config.FirmwareConfig{
		Chip:              "SF32LB52",
		SpinnerThreshold:  500 * time.Millisecond,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		PostFlashBaud:     1000000,
	}
}

func testLink(t *testing.T) *transport.Transport {
	t.Helper()
	return transport.New(&config.SerialConfig{
		Port:     "COM_TEST",
		BaudRate: 1000000,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}, zap.NewNop())
}

// writeBundle builds a ZIP at dir/bundle.zip containing the named
// entries, each with a little payload.
func writeBundle(t *testing.T, dir string, entries ...string) string {
	t.Helper()

	path := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func allManifestNames() []string {
	names := make([]string, 0, len(DefaultManifest))
	for _, e := range DefaultManifest {
		names = append(names, e.FileName)
	}
	return names
}

func TestValidateAcceptsCompleteBundle(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())
	t.Cleanup(u.Cancel)

	bundle := writeBundle(t, t.TempDir(), allManifestNames()...)
	result := u.Validate(bundle)

	assert.True(t, result.OK, result.Message)
	assert.Len(t, result.Found, len(DefaultManifest))

	status, _ := u.Status()
	assert.Equal(t, StatusValid, status)
}

func TestValidateAcceptsNestedEntries(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())
	t.Cleanup(u.Cancel)

	nested := make([]string, 0, len(DefaultManifest))
	for i, e := range DefaultManifest {
		if i%2 == 0 {
			nested = append(nested, "build/output/"+e.FileName)
		} else {
			nested = append(nested, e.FileName)
		}
	}

	bundle := writeBundle(t, t.TempDir(), nested...)
	result := u.Validate(bundle)
	assert.True(t, result.OK, result.Message)
}

func TestValidateReportsMissingEntry(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())

	names := allManifestNames()
	incomplete := make([]string, 0, len(names)-1)
	for _, n := range names {
		if n != "font.bin" {
			incomplete = append(incomplete, n)
		}
	}

	bundle := writeBundle(t, t.TempDir(), incomplete...)
	result := u.Validate(bundle)

	assert.False(t, result.OK)
	assert.Equal(t, []string{"font.bin"}, result.Missing)

	status, _ := u.Status()
	assert.Equal(t, StatusInvalid, status)
}

func TestValidateRejectsMissingPath(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())

	result := u.Validate(filepath.Join(t.TempDir(), "nope.zip"))
	assert.False(t, result.OK)

	status, _ := u.Status()
	assert.Equal(t, StatusInvalid, status)
}

func TestValidateRejectsNonArchive(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())

	path := filepath.Join(t.TempDir(), "notazip.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	result := u.Validate(path)
	assert.False(t, result.OK)
}

func TestStartRefusals(t *testing.T) {
	t.Run("without validated bundle", func(t *testing.T) {
		u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())

		err := u.Start()
		require.Error(t, err)

		status, _ := u.Status()
		assert.Equal(t, StatusIdle, status, "refusal leaves state untouched")
	})

	t.Run("tool not locatable", func(t *testing.T) {
		u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())
		t.Cleanup(u.Cancel)
		u.locateTool = func(string) (string, error) {
			return "", errors.New("not installed")
		}

		bundle := writeBundle(t, t.TempDir(), allManifestNames()...)
		require.True(t, u.Validate(bundle).OK)

		err := u.Start()
		require.Error(t, err)

		status, _ := u.Status()
		assert.Equal(t, StatusValid, status)
	})

	t.Run("link not connected", func(t *testing.T) {
		u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())
		t.Cleanup(u.Cancel)
		u.locateTool = func(string) (string, error) { return "/bin/true", nil }

		bundle := writeBundle(t, t.TempDir(), allManifestNames()...)
		require.True(t, u.Validate(bundle).OK)

		err := u.Start()
		require.Error(t, err)

		status, _ := u.Status()
		assert.Equal(t, StatusValid, status)
	})
}

func TestStartRejectsConcurrentAttempt(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())
	t.Cleanup(u.Cancel)

	entered := make(chan struct{})
	release := make(chan struct{})
	var lookups atomic.Int32
	u.locateTool = func(string) (string, error) {
		if lookups.Add(1) == 1 {
			close(entered)
		}
		<-release
		return "/bin/true", nil
	}

	bundle := writeBundle(t, t.TempDir(), allManifestNames()...)
	require.True(t, u.Validate(bundle).OK)

	firstErr := make(chan error, 1)
	go func() { firstErr <- u.Start() }()

	// The first attempt holds the in-flight slot while it sits in
	// the tool lookup; a second attempt must bounce off immediately.
	<-entered
	err := u.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")

	close(release)

	// The first attempt then fails alone on the disconnected link
	// and rolls the state back to valid.
	require.Error(t, <-firstErr)
	assert.Equal(t, int32(1), lookups.Load(), "only one attempt reaches the tool lookup")

	status, _ := u.Status()
	assert.Equal(t, StatusValid, status)
}

func TestCancelDiscardsSession(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())

	bundle := writeBundle(t, t.TempDir(), allManifestNames()...)
	require.True(t, u.Validate(bundle).OK)

	u.mu.Lock()
	dir := u.sessionDir
	u.mu.Unlock()
	require.DirExists(t, dir)

	// Cancel never kills a tool subprocess already in flight; it only
	// resets orchestrator state. Whether a mid-flash subprocess should
	// be terminated is an unresolved product decision.
	u.Cancel()

	assert.NoDirExists(t, dir)
	status, _ := u.Status()
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, 0, u.Progress())
}

func TestBuildArgsManifestOrder(t *testing.T) {
	u := NewUpdater(testFirmwareConfig(), testLink(t), zap.NewNop())
	t.Cleanup(u.Cancel)

	bundle := writeBundle(t, t.TempDir(), allManifestNames()...)
	require.True(t, u.Validate(bundle).OK)

	args := u.buildArgs("COM9")
	require.GreaterOrEqual(t, len(args), 5+len(DefaultManifest))

	assert.Equal(t, []string{"-c", "SF32LB52", "-p", "COM9", "write_flash"}, args[:5])
	for i, entry := range DefaultManifest {
		assert.Contains(t, args[5+i], entry.FileName+"@"+entry.Address)
	}
}

func TestVersionPattern(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"FW_VERSION:release1.1.2", "release1.1.2"},
		{"boot ok\r\nFW_VERSION:dev1.0.0\r\n", "dev1.0.0"},
		{"no version here", ""},
	}

	for _, tt := range tests {
		match := versionPattern.FindStringSubmatch(tt.input)
		if tt.want == "" {
			assert.Nil(t, match, tt.input)
			continue
		}
		require.NotNil(t, match, tt.input)
		assert.Equal(t, "FW_VERSION:"+tt.want, match[0])
	}
}
