package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/gesturejump/internal/app"
	"github.com/ayusman/gesturejump/internal/capture"
	"github.com/ayusman/gesturejump/internal/config"
	"github.com/ayusman/gesturejump/internal/recognizer"
)

// Command-line flags.
var (
	configPath string
	logLevel   string
	deviceID   int
	serverAddr string
	noServer   bool
	noTray     bool
)

var rootCmd = &cobra.Command{
	Use:           "gesturejump",
	Short:         "Jump a box around with hand gestures",
	Long:          `GestureJump reads the webcam, classifies hand gestures and makes the player box jump while you show a closed fist.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, false)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the game window (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, false)
	},
}

var headlessCmd = &cobra.Command{
	Use:   "headless",
	Short: "Run without a window, controlled from the system tray",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, true)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the camera, the recognizer script and the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}
		return doctor(cmd, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default ~/.gesturejump/config.yaml).")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error.")
	rootCmd.PersistentFlags().IntVar(&deviceID, "device", -1, "Camera device index.")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "Debug server listen address.")
	rootCmd.PersistentFlags().BoolVar(&noServer, "no-server", false, "Disable the debug server.")
	headlessCmd.Flags().BoolVar(&noTray, "no-tray", false, "Do not show the system tray menu.")

	rootCmd.AddCommand(runCmd, headlessCmd, doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads .env and the config file, applies flag overrides and builds
// the logger.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("device") {
		cfg.Camera.Device = deviceID
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = serverAddr
	}
	if noServer {
		cfg.Server.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{ForceColors: true}
	log.Level = cfg.LogLevel()
	return cfg, log, nil
}

func runApp(cmd *cobra.Command, headless bool) (err error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			log.Warnf("sentry disabled: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}
	defer recoverPanic(&err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(app.Options{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	if headless {
		return a.RunHeadless(ctx, !noTray)
	}
	return a.Run(ctx)
}

// recoverPanic reports a panic to Sentry and turns it into *err so the
// process exits non-zero. It must be deferred directly.
func recoverPanic(err *error) {
	p := recover()
	if p == nil {
		return
	}
	sentry.CurrentHub().Recover(p)
	sentry.Flush(2 * time.Second)
	*err = fmt.Errorf("panic: %v", p)
}

func doctor(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	ok := true

	check := func(name string, pass bool, detail string) {
		mark := "ok"
		if !pass {
			mark = "FAIL"
			ok = false
		}
		fmt.Fprintf(out, "%-12s %-4s %s\n", name, mark, detail)
	}

	check("camera", capture.HasCameraSupport(cfg.Camera.Device), fmt.Sprintf("device %d", cfg.Camera.Device))

	script := cfg.Recognizer.Script
	if script == "" {
		script = recognizer.FindScript()
	}
	check("script", script != "" && fileExists(script), script)

	model := cfg.Recognizer.Model
	if isURL(model) {
		check("model", true, model+" (downloaded on first run)")
	} else {
		check("model", fileExists(model), model)
	}

	if !ok {
		return errors.New("some checks failed")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
