package android

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"go.uber.org/zap"
)

const longPressMillis = 800

// Driver implements platform.Driver, platform.Screenshotter,
// platform.AppManager, platform.Installer and platform.Rotator for one device.
type Driver struct {
	serial   string
	run      Runner
	dumpPath string
}

// NewDriver returns a driver bound to serial that invokes adb through run.
func NewDriver(serial string, run Runner, dumpPath string) *Driver {
	if dumpPath == "" {
		dumpPath = "/sdcard/window_dump.xml"
	}
	return &Driver{serial: serial, run: run, dumpPath: dumpPath}
}

func (d *Driver) Serial() string { return d.serial }

func (d *Driver) adb(ctx context.Context, op string, args ...string) ([]byte, error) {
	full := append([]string{"-s", d.serial}, args...)
	out, err := d.run.Run(ctx, full...)
	if err != nil {
		// A cancelled caller is not a device fault.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, &model.DriverError{Device: d.serial, Op: op, Err: err}
	}
	return out, nil
}

func (d *Driver) shell(ctx context.Context, op string, args ...string) ([]byte, error) {
	return d.adb(ctx, op, append([]string{"shell"}, args...)...)
}

// Snapshot dumps the hierarchy to the device and reads it back.
func (d *Driver) Snapshot(ctx context.Context) ([]byte, error) {
	if _, err := d.shell(ctx, "snapshot", "uiautomator", "dump", "--compressed", d.dumpPath); err != nil {
		return nil, err
	}
	out, err := d.adb(ctx, "snapshot", "exec-out", "cat", d.dumpPath)
	if err != nil {
		return nil, err
	}
	return trimDump(out), nil
}

func (d *Driver) ScreenSize(ctx context.Context) (model.Size, error) {
	out, err := d.shell(ctx, "screen_size", "wm", "size")
	if err != nil {
		return model.Size{}, err
	}
	size, perr := parseWMSize(out)
	if perr != nil {
		return model.Size{}, &model.DriverError{Device: d.serial, Op: "screen_size", Err: perr}
	}
	// wm size reports the natural orientation.
	rot, err := d.rotation(ctx)
	if err != nil {
		return model.Size{}, err
	}
	if rot%2 == 1 {
		size.Width, size.Height = size.Height, size.Width
	}
	return size, nil
}

// rotation returns the current display rotation in quarter turns. Output
// without a rotation reads as 0.
func (d *Driver) rotation(ctx context.Context) (int, error) {
	out, err := d.shell(ctx, "orientation", "dumpsys", "input")
	if err != nil {
		return 0, err
	}
	rot, _ := parseRotation(out)
	return rot, nil
}

// Orientation reports whether the display is in portrait or landscape.
func (d *Driver) Orientation(ctx context.Context) (model.Orientation, error) {
	rot, err := d.rotation(ctx)
	if err != nil {
		return "", err
	}
	return orientationOf(rot), nil
}

// SetOrientation turns auto-rotate off and locks the display to o.
func (d *Driver) SetOrientation(ctx context.Context, o model.Orientation) error {
	rot := "0"
	if o == model.OrientationLandscape {
		rot = "1"
	}
	if _, err := d.shell(ctx, "set_orientation", "settings", "put", "system", "accelerometer_rotation", "0"); err != nil {
		return err
	}
	_, err := d.shell(ctx, "set_orientation", "settings", "put", "system", "user_rotation", rot)
	return err
}

// Dispatch translates an action into adb input commands.
func (d *Driver) Dispatch(ctx context.Context, a model.Action) error {
	logger := observability.GetLogger().With(zap.String("device", d.serial))
	logger.Debug("dispatch", zap.Stringer("action", a))

	op := string(a.Kind)
	itoa := strconv.Itoa
	var err error
	switch a.Kind {
	case model.ActionClick:
		_, err = d.shell(ctx, op, "input", "tap", itoa(a.Point.X), itoa(a.Point.Y))
	case model.ActionDoubleClick:
		x, y := itoa(a.Point.X), itoa(a.Point.Y)
		if _, err = d.shell(ctx, op, "input", "tap", x, y); err == nil {
			_, err = d.shell(ctx, op, "input", "tap", x, y)
		}
	case model.ActionLongClick:
		x, y := itoa(a.Point.X), itoa(a.Point.Y)
		_, err = d.shell(ctx, op, "input", "swipe", x, y, x, y, itoa(longPressMillis))
	case model.ActionSwipe:
		ms := a.Duration.Milliseconds()
		if ms <= 0 {
			ms = 300
		}
		_, err = d.shell(ctx, op, "input", "swipe",
			itoa(a.Point.X), itoa(a.Point.Y), itoa(a.To.X), itoa(a.To.Y), strconv.FormatInt(ms, 10))
	case model.ActionInput:
		err = d.inputText(ctx, a)
	case model.ActionKey:
		if a.KeyCode <= 0 {
			return fmt.Errorf("press_key: unresolved key %q", a.Key)
		}
		_, err = d.shell(ctx, op, "input", "keyevent", itoa(a.KeyCode))
	case model.ActionLaunch:
		_, err = d.shell(ctx, op, "monkey", "-p", a.Package, "-c", "android.intent.category.LAUNCHER", "1")
	case model.ActionTerminate:
		_, err = d.shell(ctx, op, "am", "force-stop", a.Package)
	case model.ActionOpenURL:
		if a.Text == "" {
			return fmt.Errorf("open_url: empty url")
		}
		_, err = d.shell(ctx, op, "am", "start", "-a", "android.intent.action.VIEW", "-d", a.Text)
	case model.ActionWait:
		t := time.NewTimer(a.Duration)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	default:
		return fmt.Errorf("unsupported action kind %q", a.Kind)
	}
	return err
}

// inputText taps the target field when a point is given, then types. Text
// outside ASCII goes through the ADBKeyboard IME broadcast.
func (d *Driver) inputText(ctx context.Context, a model.Action) error {
	if a.Point != (model.Point{}) {
		if _, err := d.shell(ctx, "input", "input", "tap", strconv.Itoa(a.Point.X), strconv.Itoa(a.Point.Y)); err != nil {
			return err
		}
	}
	if a.Text == "" {
		return nil
	}
	if isASCII(a.Text) {
		_, err := d.shell(ctx, "input", "input", "text", escapeInputText(a.Text))
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(a.Text))
	_, err := d.shell(ctx, "input", "am", "broadcast", "-a", "ADB_INPUT_B64", "--es", "msg", encoded)
	return err
}

// Screenshot returns the screen as PNG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.adb(ctx, "screenshot", "exec-out", "screencap", "-p")
}

func (d *Driver) ListPackages(ctx context.Context, thirdPartyOnly bool) ([]string, error) {
	args := []string{"pm", "list", "packages"}
	if thirdPartyOnly {
		args = append(args, "-3")
	}
	out, err := d.shell(ctx, "list_packages", args...)
	if err != nil {
		return nil, err
	}
	return parsePackages(out), nil
}

func (d *Driver) CurrentPackage(ctx context.Context) (string, error) {
	out, err := d.shell(ctx, "current_package", "dumpsys", "window", "windows")
	if err != nil {
		return "", err
	}
	return parseFocus(out), nil
}

// Install installs a local APK, replacing an existing version.
func (d *Driver) Install(ctx context.Context, apkPath string) error {
	if _, err := os.Stat(apkPath); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	return d.packageOp(ctx, "install", "install", "-r", apkPath)
}

// Uninstall removes pkg from the device.
func (d *Driver) Uninstall(ctx context.Context, pkg string) error {
	if pkg == "" {
		return fmt.Errorf("uninstall: package name is required")
	}
	return d.packageOp(ctx, "uninstall", "uninstall", pkg)
}

// packageOp runs an install or uninstall. A "Failure [...]" answer is the
// package manager refusing, which leaves the device usable.
func (d *Driver) packageOp(ctx context.Context, op string, args ...string) error {
	out, err := d.adb(ctx, op, args...)
	if err != nil {
		var de *model.DriverError
		if errors.As(err, &de) {
			if reason := pmFailure(de.Err.Error()); reason != "" {
				return fmt.Errorf("%s: %s", op, reason)
			}
		}
		return err
	}
	if reason := pmFailure(string(out)); reason != "" {
		return fmt.Errorf("%s: %s", op, reason)
	}
	return nil
}
