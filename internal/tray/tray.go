// Package tray provides the system tray menu used in headless mode.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// Toggler switches gesture control on and off.
type Toggler interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Tray represents the system tray application.
type Tray struct {
	toggler Toggler
	onOpen  func()
	onQuit  func()
	mu      sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuStatus      *systray.MenuItem
	lastGesture     gesture.Label
	status          string
}

// New creates a new Tray that pauses and resumes gesture control through
// toggler.
func New(toggler Toggler) *Tray {
	return &Tray{
		toggler:     toggler,
		lastGesture: gesture.None,
	}
}

// OnOpen sets the callback function to be called when the debug page menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main thread.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit ends Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("GestureJump")
	systray.SetTooltip("GestureJump: jump with a rock gesture")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.toggler.Enabled()), "Toggle gesture control")
	systray.AddSeparator()

	t.menuLastGesture = systray.AddMenuItem(lastTitle(t.lastGesture), "Last detected gesture")
	t.menuLastGesture.Disable()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Camera and recognizer status")
	t.menuStatus.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuOpen := systray.AddMenuItem("Open Debug Page...", "Open the debug page in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit GestureJump")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Gesture control on"
	}
	return "○ Gesture control off"
}

func lastTitle(l gesture.Label) string {
	return "Last: " + string(l)
}

func statusTitle(s string) string {
	if s == "" {
		return "Status: starting"
	}
	return "Status: " + s
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	enabled := !t.toggler.Enabled()
	t.toggler.SetEnabled(enabled)

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// handleOpen handles the debug page menu item click.
func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastGesture updates the last gesture display in the menu.
// It has the signature of a bridge change listener.
func (t *Tray) SetLastGesture(c gesture.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastGesture = c.To
	if t.menuLastGesture != nil {
		t.menuLastGesture.SetTitle(lastTitle(c.To))
	}
}

// LastGesture returns the gesture shown in the menu.
func (t *Tray) LastGesture() gesture.Label {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGesture
}

// Warn shows msg as the tray status. It implements bridge.Notifier.
func (t *Tray) Warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = msg
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(msg))
	}
}

// Status returns the current status text.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	return t.toggler.Enabled()
}
