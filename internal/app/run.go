package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/ayusman/gesturejump/internal/bridge"
	"github.com/ayusman/gesturejump/internal/game"
	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/scene"
	"github.com/ayusman/gesturejump/internal/tray"
)

// WindowTitle is the ebiten window title.
const WindowTitle = "GestureJump"

// Run opens the game window and blocks until it closes or ctx is done.
// Startup runs after the first frame so the window appears immediately.
// A fatal startup error is returned once its message has been shown.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := game.New(game.Options{
		Scene:   a.scene,
		Overlay: a.overlay,
		OnStart: func() {
			if err := a.Initialize(ctx); err != nil && !errors.Is(err, bridge.ErrRecognizerInit) {
				a.log.Errorf("startup: %v", err)
			}
		},
	})
	a.AddNotifier(g)
	a.OnFatal(g.Fail)

	go func() {
		<-ctx.Done()
		g.Stop()
	}()

	errCh := a.startServer(ctx)
	err := game.Run(g, WindowTitle)
	cancel()
	return errors.Join(err, <-errCh)
}

// trayMenu is the tray surface RunHeadless drives.
type trayMenu interface {
	bridge.Notifier
	SetLastGesture(c gesture.Change)
	OnQuit(fn func())
	OnOpen(fn func())
	Run()
	Quit()
}

func newTrayMenu(t tray.Toggler) trayMenu {
	return tray.New(t)
}

// RunHeadless runs the scene on a ticker without a window until ctx is
// done. With withTray it shows the tray menu, which must own the calling
// (main) goroutine.
func (a *App) RunHeadless(ctx context.Context, withTray bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatal error
	a.OnFatal(func(err error, msg string) {
		fatal = err
		cancel()
	})

	// The tray must be listening before startup can warn.
	var menu trayMenu
	if withTray {
		menu = a.newTray(a.gate)
		a.AddNotifier(menu)
		a.bridge.Subscribe(menu.SetLastGesture)
		menu.OnQuit(cancel)
		menu.OnOpen(a.openDebugPage)
	}

	errCh := a.startServer(ctx)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := a.Initialize(ctx); err != nil && !errors.Is(err, bridge.ErrRecognizerInit) {
			a.log.Errorf("startup: %v", err)
		}
		a.runScene(ctx)
	}()

	if menu != nil {
		go func() {
			<-ctx.Done()
			menu.Quit()
		}()
		menu.Run()
		cancel()
	}

	<-loopDone
	serverErr := <-errCh
	if fatal != nil {
		return fatal
	}
	return serverErr
}

// runScene advances the scene at scene.TPS until ctx is done.
func (a *App) runScene(ctx context.Context) {
	ticker := time.NewTicker(time.Second / scene.TPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scene.Tick(1.0 / scene.TPS)
		}
	}
}

// startServer serves the debug API until ctx is done. The returned
// channel yields the serve error, nil on clean shutdown.
func (a *App) startServer(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	if a.server == nil {
		errCh <- nil
		return errCh
	}

	addr := a.cfg.Server.Addr
	go func() {
		err := a.server.ListenAndServe(ctx, addr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			a.log.Errorf("debug server: %v", err)
		}
		errCh <- err
	}()
	return errCh
}

// DebugURL returns the address of the debug page.
func (a *App) DebugURL() string {
	addr := a.cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func (a *App) openDebugPage() {
	if a.server == nil {
		a.Warn("The debug server is disabled")
		return
	}
	if err := openBrowser(a.DebugURL()); err != nil {
		a.log.Warnf("open debug page: %v", err)
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	return cmd.Process.Release()
}
