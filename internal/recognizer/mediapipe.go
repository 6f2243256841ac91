package recognizer

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// Wire opcodes understood by gesture_service.py.
const (
	opConfigure byte = 'C'
	opFrame     byte = 'F'
)

// ErrServiceNotFound is returned when gesture_service.py cannot be located.
var ErrServiceNotFound = errors.New("gesture_service.py not found")

// MediaPipeRecognizer implements Recognizer using a Python MediaPipe subprocess.
type MediaPipeRecognizer struct {
	opts    Options
	script  string
	model   string
	log     *logrus.Logger
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	mu      sync.Mutex
	started bool
	mode    gesture.RunningMode
	version string
}

// NewMediaPipeRecognizer creates a new MediaPipe recognizer.
// The Python process is started by Load.
func NewMediaPipeRecognizer(log *logrus.Logger, opts Options) (*MediaPipeRecognizer, error) {
	script := opts.Script
	if script == "" {
		script = FindScript()
	}
	if script == "" {
		return nil, ErrServiceNotFound
	}

	if opts.NumHands <= 0 {
		opts.NumHands = 1
	}
	if opts.Delegate == "" {
		opts.Delegate = DelegateGPU
	}

	return &MediaPipeRecognizer{
		opts:   opts,
		script: script,
		log:    log,
		mode:   gesture.ModeImage,
	}, nil
}

// Load starts the service and waits for the model to be ready.
func (d *MediaPipeRecognizer) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	model, err := ResolveModel(ctx, nil, d.opts.ModelPath, d.opts.CacheDir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(model); err != nil {
		return fmt.Errorf("model asset: %w", err)
	}
	d.model = model

	// Use virtual environment Python if available
	pythonPath := d.opts.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.script)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start gesture service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	if d.opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.InitTimeout)
		defer cancel()
	}

	resp, err := d.configure(ctx, gesture.ModeImage)
	if err != nil {
		d.kill()
		return err
	}

	d.version = resp.Version
	if d.opts.RuntimeVersion != "" && resp.Version != d.opts.RuntimeVersion {
		d.log.Warnf("mediapipe runtime %s differs from pinned %s", resp.Version, d.opts.RuntimeVersion)
	}
	d.log.Infof("gesture recognizer ready (mediapipe %s, delegate %s)", resp.Version, d.opts.Delegate)
	return nil
}

// SetRunningMode reconfigures the service for image or video input.
func (d *MediaPipeRecognizer) SetRunningMode(mode gesture.RunningMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotLoaded
	}
	if mode == d.mode {
		return nil
	}

	if _, err := d.configure(context.Background(), mode); err != nil {
		return err
	}
	return nil
}

// RecognizeForVideo sends one frame and returns the classification result.
func (d *MediaPipeRecognizer) RecognizeForVideo(frame *gocv.Mat, timestampMs int64) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, ErrNotLoaded
	}
	if d.mode != gesture.ModeVideo {
		return nil, fmt.Errorf("recognize for video: running mode is %s", d.mode)
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(timestampMs))

	if err := d.writeMessage(opFrame, ts, buf.GetBytes()); err != nil {
		return nil, err
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return decodeFrameResponse(line)
}

// Version returns the MediaPipe version reported by the service.
func (d *MediaPipeRecognizer) Version() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Close shuts down the Python process.
func (d *MediaPipeRecognizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

type configureRequest struct {
	ModelPath   string `json:"model_path"`
	Delegate    string `json:"delegate"`
	RunningMode string `json:"running_mode"`
	NumHands    int    `json:"num_hands"`
}

type configureResponse struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// configure sends the options for mode and waits for the ready reply.
func (d *MediaPipeRecognizer) configure(ctx context.Context, mode gesture.RunningMode) (*configureResponse, error) {
	payload, err := json.Marshal(configureRequest{
		ModelPath:   d.model,
		Delegate:    d.opts.Delegate,
		RunningMode: strings.ToUpper(string(mode)),
		NumHands:    d.opts.NumHands,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	if err := d.writeMessage(opConfigure, payload); err != nil {
		return nil, err
	}

	type lineResult struct {
		line []byte
		err  error
	}
	r := d.stdout
	ch := make(chan lineResult, 1)
	go func() {
		line, err := r.ReadBytes('\n')
		ch <- lineResult{line, err}
	}()

	var res lineResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for gesture service: %w", ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return nil, fmt.Errorf("read response: %w", res.err)
	}

	resp, err := decodeConfigureResponse(res.line)
	if err != nil {
		return nil, err
	}

	d.mode = mode
	return resp, nil
}

// writeMessage frames parts as opcode, 4-byte big-endian length, payload.
func (d *MediaPipeRecognizer) writeMessage(op byte, parts ...[]byte) error {
	var size int
	for _, p := range parts {
		size += len(p)
	}

	header := make([]byte, 5)
	header[0] = op
	binary.BigEndian.PutUint32(header[1:], uint32(size))

	if _, err := d.stdin.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range parts {
		if _, err := d.stdin.Write(p); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// kill stops a service that failed its handshake.
func (d *MediaPipeRecognizer) kill() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.shutdown()
}

func (d *MediaPipeRecognizer) shutdown() error {
	if !d.started {
		return nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.mode = gesture.ModeImage

	return err
}

func decodeConfigureResponse(line []byte) (*configureResponse, error) {
	var resp configureResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("gesture service: %s", resp.Error)
	}
	if !resp.Ready {
		return nil, errors.New("gesture service did not report ready")
	}
	return &resp, nil
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

type frameResponse struct {
	Hands    []jsonHand                 `json:"hands"`
	Gestures [][]gesture.Classification `json:"gestures"`
	Error    string                     `json:"error,omitempty"`
}

func decodeFrameResponse(line []byte) (*Result, error) {
	var resp frameResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("gesture service: %s", resp.Error)
	}

	result := &Result{
		Hands:    make([]Hand, len(resp.Hands)),
		Gestures: resp.Gestures,
	}
	for i, h := range resp.Hands {
		result.Hands[i] = h.toHand()
	}
	return result, nil
}

func (h jsonHand) toHand() Hand {
	hand := Hand{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		hand.Points[i] = h.Points[i]
	}
	return hand
}

// FindScript returns the path of gesture_service.py, or "" if missing.
func FindScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/gesture_service.py",
		"../scripts/gesture_service.py",
		filepath.Join(execDir, "scripts/gesture_service.py"),
		filepath.Join(os.Getenv("HOME"), ".gesturejump/scripts/gesture_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
// It checks for venv/bin/python relative to the project directory.
func findVenvPython() string {
	// Get executable directory to find project root
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".gesturejump/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
