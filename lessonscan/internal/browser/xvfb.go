package browser

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	xvfbDepth       = 24
	xvfbReadyWait   = 5 * time.Second
	xvfbReadyPoll   = 50 * time.Millisecond
	xvfbSocketDir   = "/tmp/.X11-unix"
	xvfbMinDimPixel = 320
)

// xvfbScreen sizes the virtual framebuffer to the emulated viewport in
// device pixels, so headful screenshots and layout metrics match what the
// heuristics assume.
func xvfbScreen(vp Viewport) string {
	scale := vp.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	w := max(int(math.Ceil(float64(vp.Width)*scale)), xvfbMinDimPixel)
	h := max(int(math.Ceil(float64(vp.Height)*scale)), xvfbMinDimPixel)
	return fmt.Sprintf("%dx%dx%d", w, h, xvfbDepth)
}

func xvfbArgs(display string, vp Viewport) []string {
	return []string{display, "-screen", "0", xvfbScreen(vp), "-ac", "-nolisten", "tcp"}
}

// xvfbSocket is the unix socket Xvfb creates once it accepts clients.
func xvfbSocket(display string) string {
	return xvfbSocketDir + "/X" + strings.TrimPrefix(display, ":")
}

func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	args := xvfbArgs(display, m.cfg.Viewport)
	cmd := exec.Command("Xvfb", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	sock := xvfbSocket(display)
	deadline := time.Now().Add(xvfbReadyWait)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			m.stopXvfb()
			return fmt.Errorf("xvfb %s: no socket at %s after %s", display, sock, xvfbReadyWait)
		}
		time.Sleep(xvfbReadyPoll)
	}

	m.cfg.Logger.Info("browser: xvfb ready", "display", display, "screen", args[3], "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		p.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
}
