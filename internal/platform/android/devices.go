package android

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mj1618/mobile-mcp/internal/model"
)

// parseDevices parses "adb devices -l" output.
func parseDevices(out []byte) []model.Device {
	var devices []model.Device
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		d := model.Device{Serial: fields[0], State: fields[1]}
		for _, f := range fields[2:] {
			if v, ok := strings.CutPrefix(f, "model:"); ok {
				d.Model = v
			}
		}
		devices = append(devices, d)
	}
	return devices
}

var sizeRe = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)

// parseWMSize parses "wm size" output. An override size wins over the
// physical size.
func parseWMSize(out []byte) (model.Size, error) {
	var size model.Size
	for _, m := range sizeRe.FindAllStringSubmatch(string(out), -1) {
		w, _ := strconv.Atoi(m[2])
		h, _ := strconv.Atoi(m[3])
		if m[1] == "Override" || !size.Valid() {
			size = model.Size{Width: w, Height: h}
		}
	}
	if !size.Valid() {
		return model.Size{}, fmt.Errorf("unexpected wm size output %q", strings.TrimSpace(string(out)))
	}
	return size, nil
}

// parsePackages parses "pm list packages" output.
func parsePackages(out []byte) []string {
	var pkgs []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if p, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "package:"); ok && p != "" {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs
}

var focusRe = regexp.MustCompile(`mCurrentFocus=Window\{\S+ \S+ ([\w.]+)/`)

// parseFocus extracts the foreground package from "dumpsys window" output.
func parseFocus(out []byte) string {
	if m := focusRe.FindSubmatch(out); m != nil {
		return string(m[1])
	}
	return ""
}

// trimDump cuts adb chatter around the hierarchy document.
func trimDump(out []byte) []byte {
	start := bytes.Index(out, []byte("<?xml"))
	if start < 0 {
		start = bytes.Index(out, []byte("<hierarchy"))
	}
	if start < 0 {
		return out
	}
	out = out[start:]
	if end := bytes.LastIndex(out, []byte("</hierarchy>")); end >= 0 {
		out = out[:end+len("</hierarchy>")]
	}
	return out
}

var rotationRe = regexp.MustCompile(`(?:SurfaceOrientation:\s*|orientation=)(\d)`)

// parseRotation extracts the display rotation (0-3, quarter turns) from
// "dumpsys input" output.
func parseRotation(out []byte) (int, bool) {
	m := rotationRe.FindSubmatch(out)
	if m == nil {
		return 0, false
	}
	r, _ := strconv.Atoi(string(m[1]))
	return r % 4, true
}

// orientationOf maps a rotation to portrait or landscape relative to the
// natural orientation of a phone.
func orientationOf(rotation int) model.Orientation {
	if rotation%2 == 1 {
		return model.OrientationLandscape
	}
	return model.OrientationPortrait
}

// pmFailure returns the "Failure [...]" reason the package manager printed,
// or "".
func pmFailure(out string) string {
	i := strings.Index(out, "Failure")
	if i < 0 {
		return ""
	}
	reason, _, _ := strings.Cut(out[i:], "\n")
	return strings.TrimSpace(reason)
}
