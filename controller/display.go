// Package controller - Frame displays.
package controller

import (
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/images"
)

// Window names.
const (
	WindowMain      = "Primary Window-Real Time Object Recognition"
	WindowThreshold = "Thresholding-Binary Image"
	WindowMorph     = "Morphology-Cleaned up image"
	WindowTraining  = "Training Image Display. 'p' - skip region / 'a' - add label"
	WindowEmbedding = "Embedding Training Display. 'p' - skip region / 'a' - add label"
)

// Display shows frames in named windows and reads key presses.
type Display interface {
	// Show displays img in window, opening it if needed.
	Show(window string, img gocv.Mat)
	// Hide closes window if it is open.
	Hide(window string)
	// WaitKey waits up to delay milliseconds for a key, forever when delay is 0.
	// It returns -1 when no key was pressed.
	WaitKey(delay int) int
	// Close closes every window.
	Close() error
}

// WindowDisplay is a Display backed by HighGUI windows.
type WindowDisplay struct {
	windows map[string]*gocv.Window
	last    *gocv.Window
}

// NewWindowDisplay creates a display with no open windows.
func NewWindowDisplay() *WindowDisplay {
	return &WindowDisplay{windows: make(map[string]*gocv.Window)}
}

// Show implements Display.
func (d *WindowDisplay) Show(window string, img gocv.Mat) {
	w, ok := d.windows[window]
	if !ok {
		w = gocv.NewWindow(window)
		d.windows[window] = w
	}
	w.IMShow(img)
	d.last = w
}

// Hide implements Display.
func (d *WindowDisplay) Hide(window string) {
	w, ok := d.windows[window]
	if !ok {
		return
	}
	if d.last == w {
		d.last = nil
	}
	w.Close()
	delete(d.windows, window)
}

// WaitKey implements Display. HighGUI only delivers keys to an open window, so
// with none open it sleeps for delay and reports no key.
func (d *WindowDisplay) WaitKey(delay int) int {
	w := d.last
	if w == nil {
		for _, open := range d.windows {
			w = open
			break
		}
	}
	if w == nil {
		time.Sleep(time.Duration(delay) * time.Millisecond)
		return -1
	}
	return w.WaitKey(delay)
}

// Close implements Display.
func (d *WindowDisplay) Close() error {
	for name, w := range d.windows {
		w.Close()
		delete(d.windows, name)
	}
	d.last = nil
	return nil
}

// HeadlessDisplay is a Display that draws nothing. Keys are replayed from a
// script, and the checksum of the last frame per window is kept for inspection.
type HeadlessDisplay struct {
	mu     sync.Mutex
	keys   []int
	open   map[string]bool
	shown  map[string]int
	last   map[string]string
	waited int
}

// NewHeadlessDisplay creates a display that returns keys in order, then -1.
func NewHeadlessDisplay(keys ...int) *HeadlessDisplay {
	return &HeadlessDisplay{
		keys:  keys,
		open:  make(map[string]bool),
		shown: make(map[string]int),
		last:  make(map[string]string),
	}
}

// Press appends keys to the script.
func (d *HeadlessDisplay) Press(keys ...int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, keys...)
}

// Show implements Display.
func (d *HeadlessDisplay) Show(window string, img gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[window] = true
	d.shown[window]++
	d.last[window] = images.ComputeMatChecksum(img)
}

// Hide implements Display.
func (d *HeadlessDisplay) Hide(window string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, window)
}

// WaitKey implements Display.
func (d *HeadlessDisplay) WaitKey(int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waited++
	if len(d.keys) == 0 {
		return -1
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

// Close implements Display.
func (d *HeadlessDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = make(map[string]bool)
	return nil
}

// IsOpen reports whether window is currently shown.
func (d *HeadlessDisplay) IsOpen(window string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open[window]
}

// Shown returns how many frames were shown in window.
func (d *HeadlessDisplay) Shown(window string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown[window]
}

// LastChecksum returns the checksum of the last frame shown in window.
func (d *HeadlessDisplay) LastChecksum(window string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[window]
}

// Waits returns the number of WaitKey calls.
func (d *HeadlessDisplay) Waits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waited
}

// Remaining returns the number of unread scripted keys.
func (d *HeadlessDisplay) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
