// Package fake provides an in-memory device driver for tests. Screens are
// uiautomator XML documents; dispatched actions may swap the current screen.
package fake

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/mj1618/mobile-mcp/internal/model"
	"golang.org/x/image/draw"
)

// Node describes one element of a generated screen.
type Node struct {
	Text      string
	ID        string
	Desc      string
	Class     string
	Bounds    model.Rect
	Clickable bool
	Children  []Node
}

// Screen renders nodes as a uiautomator hierarchy document.
func Screen(nodes ...Node) string {
	var b strings.Builder
	b.WriteString(`<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>` + "\n")
	b.WriteString(`<hierarchy rotation="0">` + "\n")
	for _, n := range nodes {
		writeNode(&b, n, 1)
	}
	b.WriteString("</hierarchy>\n")
	return b.String()
}

func writeNode(b *strings.Builder, n Node, indent int) {
	class := n.Class
	if class == "" {
		class = "android.widget.TextView"
	}
	r := n.Bounds
	fmt.Fprintf(b, `%s<node text="%s" resource-id="%s" content-desc="%s" class="%s" package="com.example" clickable="%t" enabled="true" focusable="false" bounds="[%d,%d][%d,%d]"`,
		strings.Repeat("  ", indent), html.EscapeString(n.Text), html.EscapeString(n.ID), html.EscapeString(n.Desc),
		class, n.Clickable, r.X(), r.Y(), r.X()+r.W(), r.Y()+r.H())
	if len(n.Children) == 0 {
		b.WriteString(" />\n")
		return
	}
	b.WriteString(">\n")
	for _, c := range n.Children {
		writeNode(b, c, indent+1)
	}
	fmt.Fprintf(b, "%s</node>\n", strings.Repeat("  ", indent))
}

// Reaction decides the screen shown after an action. Returning "" leaves the
// screen unchanged.
type Reaction func(a model.Action, current string) string

// Driver is a scripted, concurrency-safe driver.
type Driver struct {
	mu          sync.Mutex
	serial      string
	size        model.Size
	screen      string
	react       Reaction
	actions     []model.Action
	snapshots   int
	snapshotErr error
	dispatchErr error
	sizeErr     error
	packages    []string
	foreground  string
	orientation model.Orientation
}

// New returns a driver showing screen.
func New(serial string, size model.Size, screen string) *Driver {
	return &Driver{serial: serial, size: size, screen: screen}
}

// OnDispatch installs the reaction applied after each successful dispatch.
func (d *Driver) OnDispatch(fn Reaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.react = fn
}

// SetScreen replaces the current screen.
func (d *Driver) SetScreen(xml string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = xml
}

// SetPackages sets the installed package list.
func (d *Driver) SetPackages(pkgs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packages = append([]string(nil), pkgs...)
}

// FailSnapshot makes every later Snapshot call fail with err.
func (d *Driver) FailSnapshot(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshotErr = err
}

// FailScreenSize makes every later ScreenSize call fail with err.
func (d *Driver) FailScreenSize(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sizeErr = err
}

// FailDispatch makes every later Dispatch call fail with err.
func (d *Driver) FailDispatch(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatchErr = err
}

// Actions returns the dispatched actions in order.
func (d *Driver) Actions() []model.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Action(nil), d.actions...)
}

// Snapshots returns how many snapshots were taken.
func (d *Driver) Snapshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshots
}

func (d *Driver) Serial() string { return d.serial }

func (d *Driver) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots++
	if d.snapshotErr != nil {
		return nil, &model.DriverError{Device: d.serial, Op: "snapshot", Err: d.snapshotErr}
	}
	return []byte(d.screen), nil
}

func (d *Driver) Dispatch(ctx context.Context, a model.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.dispatchErr != nil {
		err := d.dispatchErr
		d.mu.Unlock()
		return &model.DriverError{Device: d.serial, Op: string(a.Kind), Err: err}
	}
	d.actions = append(d.actions, a)
	switch a.Kind {
	case model.ActionLaunch:
		d.foreground = a.Package
	case model.ActionTerminate:
		if d.foreground == a.Package {
			d.foreground = ""
		}
	}
	react, current := d.react, d.screen
	d.mu.Unlock()

	// The reaction runs unlocked so it may call back into the driver.
	if react != nil {
		if next := react(a, current); next != "" {
			d.SetScreen(next)
		}
	}
	return nil
}

// ScreenSize returns the configured size, swapped while in landscape.
func (d *Driver) ScreenSize(ctx context.Context) (model.Size, error) {
	if err := ctx.Err(); err != nil {
		return model.Size{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sizeErr != nil {
		return model.Size{}, &model.DriverError{Device: d.serial, Op: "screen_size", Err: d.sizeErr}
	}
	if d.orientation == model.OrientationLandscape {
		return model.Size{Width: d.size.Height, Height: d.size.Width}, nil
	}
	return d.size, nil
}

// Screenshot returns a solid PNG of the screen size.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, d.size.Width, d.size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0x20, G: 0x80, B: 0xc0, A: 0xff}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Driver) ListPackages(ctx context.Context, thirdPartyOnly bool) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.packages...), nil
}

func (d *Driver) CurrentPackage(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground, nil
}

// Install adds the APK file name, without extension, as a package.
func (d *Driver) Install(ctx context.Context, apkPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pkg := strings.TrimSuffix(filepath.Base(apkPath), filepath.Ext(apkPath))
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.packages, pkg) {
		d.packages = append(d.packages, pkg)
	}
	return nil
}

// Uninstall removes pkg. A missing package fails the way the package
// manager does.
func (d *Driver) Uninstall(ctx context.Context, pkg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i := slices.Index(d.packages, pkg)
	if i < 0 {
		return fmt.Errorf("uninstall: Failure [DELETE_FAILED_INTERNAL_ERROR]")
	}
	d.packages = slices.Delete(d.packages, i, i+1)
	if d.foreground == pkg {
		d.foreground = ""
	}
	return nil
}

func (d *Driver) Orientation(ctx context.Context) (model.Orientation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.orientation == "" {
		return model.OrientationPortrait, nil
	}
	return d.orientation, nil
}

func (d *Driver) SetOrientation(ctx context.Context, o model.Orientation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orientation = o
	return nil
}

// Lister reports a fixed device list.
type Lister []model.Device

func (l Lister) ListDevices(context.Context) ([]model.Device, error) {
	return append([]model.Device(nil), l...), nil
}
