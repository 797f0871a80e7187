// internal/firmware/updater.go
package firmware

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/transport"
	"superkey-service/internal/utils"
)

// Flashing progress is reported outward inside a fixed window so the
// pre-flash and reconnect phases have headroom on either side.
const (
	outwardProgressMin = 30
	outwardProgressMax = 95

	stderrCap = 200
)

// percentPattern matches the tool's bare progress markers.
var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// ValidationResult is the outcome of checking an update bundle.
type ValidationResult struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message"`
	Found   []string `json:"found_files"`
	Missing []string `json:"missing_files,omitempty"`
}

// Link is the transport surface the updater needs: the port is
// always owned by the transport, so the updater frees it with a
// disconnect before spawning the tool and reclaims it afterwards.
type Link interface {
	IsConnected() bool
	Config() transport.ConnectionConfig
	Configure(update transport.ConfigUpdate) error
	Connect() error
	Disconnect()
	AutoReconnectEnabled() bool
	EnableAutoReconnect(enabled bool)
}

// Updater drives the firmware flash sequence: bundle validation,
// external-tool execution with progress reconstruction, and the
// post-flash reconnection of the serial link.
type Updater struct {
	logger *zap.Logger
	base   *zap.Logger
	cfg    *config.FirmwareConfig
	link   Link

	manifest []ManifestEntry

	mu         sync.Mutex
	status     Status
	message    string
	progress   int
	sessionDir string
	found      map[string]string

	cbMu       sync.RWMutex
	onStatus   func(status Status, message string)
	onProgress func(progress int)

	// injectable for tests
	locateTool func(override string) (string, error)
	newCommand func(name string, args ...string) *exec.Cmd
}

// NewUpdater creates a firmware updater bound to the serial transport.
func NewUpdater(cfg *config.FirmwareConfig, link Link, logger *zap.Logger) *Updater {
	return &Updater{
		logger:     logger.With(zap.String("component", "firmware")),
		base:       logger,
		cfg:        cfg,
		link:       link,
		manifest:   DefaultManifest,
		status:     StatusIdle,
		locateTool: LocateTool,
		newCommand: exec.Command,
	}
}

// SetStatusHandler registers the status callback, invoked outside the
// updater lock.
func (u *Updater) SetStatusHandler(fn func(status Status, message string)) {
	u.cbMu.Lock()
	defer u.cbMu.Unlock()
	u.onStatus = fn
}

// SetProgressHandler registers the progress callback.
func (u *Updater) SetProgressHandler(fn func(progress int)) {
	u.cbMu.Lock()
	defer u.cbMu.Unlock()
	u.onProgress = fn
}

// Status returns the current state and message.
func (u *Updater) Status() (Status, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status, u.message
}

// Progress returns the outward 0-100 progress value.
func (u *Updater) Progress() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.progress
}

// Manifest returns the required-file manifest.
func (u *Updater) Manifest() []ManifestEntry {
	out := make([]ManifestEntry, len(u.manifest))
	copy(out, u.manifest)
	return out
}

// Validate checks an update bundle: the path must exist and be a ZIP
// archive containing every manifest binary somewhere in its tree.
// A previous validation session's extracted files are discarded first.
func (u *Updater) Validate(bundlePath string) ValidationResult {
	u.mu.Lock()
	if u.status.Busy() {
		u.mu.Unlock()
		return ValidationResult{OK: false, Message: "update already in progress"}
	}
	prevDir := u.sessionDir
	u.sessionDir = ""
	u.found = nil
	u.mu.Unlock()

	if prevDir != "" {
		os.RemoveAll(prevDir)
	}

	u.setStatus(StatusValidating, "validating firmware bundle")

	if info, err := os.Stat(bundlePath); err != nil || info.IsDir() {
		msg := fmt.Sprintf("bundle not found: %s", bundlePath)
		u.setStatus(StatusInvalid, msg)
		return ValidationResult{OK: false, Message: msg}
	}

	dir, err := os.MkdirTemp("", "superkey-firmware-")
	if err != nil {
		msg := fmt.Sprintf("create extraction directory: %v", err)
		u.setStatus(StatusInvalid, msg)
		return ValidationResult{OK: false, Message: msg}
	}

	if err := extractBundle(bundlePath, dir); err != nil {
		os.RemoveAll(dir)
		msg := fmt.Sprintf("invalid bundle: %v", err)
		u.setStatus(StatusInvalid, msg)
		return ValidationResult{OK: false, Message: msg}
	}

	found, missing := findManifestFiles(dir, u.manifest)
	if len(missing) > 0 {
		os.RemoveAll(dir)
		msg := fmt.Sprintf("bundle missing required files: %v", missing)
		u.setStatus(StatusInvalid, msg)
		return ValidationResult{OK: false, Message: msg, Missing: missing}
	}

	u.mu.Lock()
	u.sessionDir = dir
	u.found = found
	u.mu.Unlock()

	names := make([]string, 0, len(u.manifest))
	for _, entry := range u.manifest {
		names = append(names, entry.FileName)
	}

	msg := fmt.Sprintf("bundle valid, %d files ready", len(found))
	u.setStatus(StatusValid, msg)
	return ValidationResult{OK: true, Message: msg, Found: names}
}

// Start launches the flash sequence asynchronously. It refuses, with
// no state change and no subprocess spawned, unless a validated
// bundle is staged, the flashing tool is locatable, and the serial
// link is connected.
func (u *Updater) Start() error {
	u.mu.Lock()
	if u.status.Busy() {
		u.mu.Unlock()
		return fmt.Errorf("update already in progress")
	}
	if u.status != StatusValid {
		u.mu.Unlock()
		return fmt.Errorf("no validated bundle, current status %s", u.status)
	}
	if len(u.found) == 0 {
		u.mu.Unlock()
		return fmt.Errorf("no extracted firmware files")
	}
	// Claim the in-flight slot before the slow tool lookup so a
	// second Start hits the busy guard instead of racing past it.
	u.status = StatusPreparing
	u.message = "preparing firmware update"
	u.mu.Unlock()

	tool, err := u.locateTool(u.cfg.ToolPath)
	if err != nil {
		u.setStatus(StatusValid, "bundle valid, flashing tool unavailable")
		return fmt.Errorf("locate flashing tool: %w", err)
	}

	if !u.link.IsConnected() {
		u.setStatus(StatusValid, "bundle valid, serial link not connected")
		return fmt.Errorf("serial link not connected")
	}

	cfg := u.link.Config()

	u.setStatus(StatusPreparing, "preparing firmware update")
	u.setProgress(0)

	go u.runUpdate(tool, cfg.Port)
	return nil
}

// runUpdate is the update worker: release the port, run the tool
// while reconstructing progress from its output, then reconnect.
func (u *Updater) runUpdate(tool, port string) {
	wasAutoReconnect := u.link.AutoReconnectEnabled()
	u.link.EnableAutoReconnect(false)
	u.link.Disconnect()
	defer u.link.EnableAutoReconnect(wasAutoReconnect)

	args := u.buildArgs(port)
	opLog := utils.NewOperationLogger(u.base, "firmware_flash", uuid.New().String())
	opLog.Start(
		zap.String("tool", tool),
		zap.String("port", port),
		zap.Int("files", len(args)-4),
	)

	cmd := u.newCommand(tool, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		opLog.Error(err)
		u.failUpdate(fmt.Sprintf("attach tool output: %v", err))
		return
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		opLog.Error(err)
		u.failUpdate(fmt.Sprintf("start flashing tool: %v", err))
		return
	}

	u.setStatus(StatusFlashing, fmt.Sprintf("flashing (1/%d)", len(u.manifest)))
	u.setProgress(remapProgress(0))

	tracker := NewProgressTracker(len(u.manifest), u.cfg.SpinnerThreshold)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		match := percentPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		percent, err := strconv.Atoi(match[1])
		if err != nil || percent > 100 {
			continue
		}

		tracker.Observe(percent)
		u.setProgress(remapProgress(tracker.Overall()))
		opLog.Progress("flashing", float64(tracker.Overall()))

		if tracker.InBar() {
			u.setStatus(StatusFlashing, fmt.Sprintf("flashing (%d/%d) %d%%",
				tracker.CurrentUnit(), tracker.TotalUnits(), tracker.CurrentPercent()))
		} else {
			u.setStatus(StatusFlashing, fmt.Sprintf("flashing (%d/%d)",
				tracker.CurrentUnit(), tracker.TotalUnits()))
		}
	}

	if err := cmd.Wait(); err != nil {
		opLog.Error(err)
		u.failUpdate(fmt.Sprintf("flashing tool failed: %s", capString(stderr.String(), stderrCap)))
		return
	}

	opLog.Success()
	u.setProgress(outwardProgressMax)
	u.reconnect(port)
}

// reconnect reclaims the port with the device's post-flash parameters.
// The flash itself already succeeded, so the terminal status is
// Success whether or not the link comes back.
func (u *Updater) reconnect(port string) {
	u.setStatus(StatusReconnecting, "waiting for device to restart")

	baud := u.cfg.PostFlashBaud
	dataBits := 8
	stopBits := 1.0
	parity := "none"
	update := transport.ConfigUpdate{
		Port:     &port,
		BaudRate: &baud,
		DataBits: &dataBits,
		StopBits: &stopBits,
		Parity:   &parity,
	}
	if err := u.link.Configure(update); err != nil {
		u.logger.Warn("Post-flash reconfigure failed", zap.Error(err))
	}

	attempts := u.cfg.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := u.cfg.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	reconnected := false
	for i := 0; i < attempts; i++ {
		time.Sleep(delay)
		if err := u.link.Connect(); err == nil {
			reconnected = true
			break
		}
		u.logger.Debug("Post-flash reconnect attempt failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts),
		)
	}

	u.setProgress(100)
	if reconnected {
		u.setStatus(StatusSuccess, "firmware updated, device reconnected")
	} else {
		u.setStatus(StatusSuccess, "firmware updated, reconnect the device manually")
	}
}

// Cancel discards the extraction session and returns to Idle. A tool
// subprocess already in flight is left to finish on its own.
func (u *Updater) Cancel() {
	u.mu.Lock()
	dir := u.sessionDir
	u.sessionDir = ""
	u.found = nil
	u.progress = 0
	u.mu.Unlock()

	if dir != "" {
		os.RemoveAll(dir)
	}

	u.setStatus(StatusIdle, "update cancelled")
	u.notifyProgress(0)
}

// buildArgs assembles the tool command line with every staged file at
// its manifest address, in manifest order.
func (u *Updater) buildArgs(port string) []string {
	u.mu.Lock()
	found := u.found
	u.mu.Unlock()

	args := []string{"-c", u.cfg.Chip, "-p", port, "write_flash"}
	for _, entry := range u.manifest {
		if path, ok := found[entry.FileName]; ok {
			args = append(args, fmt.Sprintf("%s@%s", path, entry.Address))
		}
	}
	return args
}

func (u *Updater) failUpdate(message string) {
	u.setStatus(StatusFailed, message)
}

func (u *Updater) setStatus(status Status, message string) {
	u.mu.Lock()
	u.status = status
	u.message = message
	u.mu.Unlock()

	u.logger.Info("Firmware status changed",
		zap.String("status", string(status)),
		zap.String("message", message),
	)

	u.cbMu.RLock()
	fn := u.onStatus
	u.cbMu.RUnlock()
	if fn != nil {
		fn(status, message)
	}
}

func (u *Updater) setProgress(progress int) {
	u.mu.Lock()
	if progress == u.progress {
		u.mu.Unlock()
		return
	}
	u.progress = progress
	u.mu.Unlock()

	u.notifyProgress(progress)
}

func (u *Updater) notifyProgress(progress int) {
	u.cbMu.RLock()
	fn := u.onProgress
	u.cbMu.RUnlock()
	if fn != nil {
		fn(progress)
	}
}

// remapProgress maps tool-derived 0-100 progress into the outward
// flashing window.
func remapProgress(overall int) int {
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}
	span := outwardProgressMax - outwardProgressMin
	return outwardProgressMin + overall*span/100
}

func capString(s string, max int) string {
	s = string(bytes.TrimSpace([]byte(s)))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
