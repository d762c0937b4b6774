// Package server exposes device sessions as Model Context Protocol tools.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/session"
	"github.com/mj1618/mobile-mcp/internal/version"
	"go.uber.org/zap"
)

// Name is the MCP server name announced to clients.
const Name = "mobile-mcp"

// Server wraps the MCP server with the per-device session manager.
type Server struct {
	sessions *session.Manager
	cfg      config.ServerConfig
	shotDir  string
	mcp      *mcpserver.MCPServer
}

// New creates a server with every mobile_* tool registered.
func New(sessions *session.Manager, cfg *config.Config) *Server {
	s := &Server{
		sessions: sessions,
		cfg:      cfg.Server,
		shotDir:  cfg.Screenshot.Dir,
	}
	s.mcp = mcpserver.NewMCPServer(
		Name,
		version.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcpserver.MCPServer { return s.mcp }

// Serve starts the MCP server with the configured transport. It blocks until
// the transport stops.
func (s *Server) Serve() error {
	log := observability.GetLogger()
	switch s.cfg.Transport {
	case "stdio":
		log.Info("serving MCP", zap.String("transport", "stdio"))
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		log.Info("serving MCP", zap.String("transport", "streamable-http"), zap.String("addr", addr))
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		return httpServer.Start(addr)
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", s.cfg.Transport)
	}
}

func deviceArg() mcp.ToolOption {
	return mcp.WithString("device", mcp.Description("Device serial; defaults to the only connected device"))
}

func expectArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("expect_text", mcp.Description("Text or toast that must appear after the action")),
		mcp.WithString("expect_id", mcp.Description("Resource-id that must appear after the action")),
		mcp.WithString("expect_gone", mcp.Description("Text that must disappear after the action")),
	}
}

func tool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description), deviceArg()}, opts...)
	return mcp.NewTool(name, all...)
}

func (s *Server) registerTools() {
	// devices
	s.mcp.AddTool(
		mcp.NewTool("mobile_list_devices",
			mcp.WithDescription("List attached Android devices and which have an open session"),
		),
		s.handleListDevices,
	)
	s.mcp.AddTool(
		tool("mobile_check_connection", "Check that a device answers and report its screen size and foreground app"),
		s.handleCheckConnection,
	)
	s.mcp.AddTool(
		tool("mobile_get_screen_size", "Get the device screen size in pixels"),
		s.handleScreenSize,
	)

	// reading
	s.mcp.AddTool(
		tool("mobile_list_elements", "List on-screen UI elements with text, resource-id, bounds and center point. Prefer this over screenshots.",
			mcp.WithString("text", mcp.Description("Only elements whose text or description contains this")),
			mcp.WithBoolean("interactive_only", mcp.Description("Only clickable, focusable or scrollable elements (default true)")),
			mcp.WithNumber("max_elements", mcp.Description("Max elements in output (0 = unlimited)")),
			mcp.WithBoolean("fresh", mcp.Description("Bypass the snapshot cache")),
		),
		s.handleListElements,
	)
	s.mcp.AddTool(
		tool("mobile_take_screenshot", "Capture a compressed JPEG screenshot. Use only when the element list is not enough.",
			mcp.WithBoolean("annotate", mcp.Description("Draw numbered boxes around interactive elements")),
			mcp.WithBoolean("save", mcp.Description("Also save the image under the configured screenshot directory")),
		),
		s.handleScreenshot,
	)

	// clicks
	s.mcp.AddTool(
		tool("mobile_click_by_text", "Click the element showing text. Falls back to content-desc and then to vision when a description is given.",
			append([]mcp.ToolOption{
				mcp.WithString("text", mcp.Required(), mcp.Description("Visible text of the element")),
				mcp.WithString("hint", mcp.Description("Disambiguate duplicates: top, bottom, left, right, first, last, or an index")),
				mcp.WithString("description", mcp.Description("Visual description used when no element matches")),
				mcp.WithNumber("wait", mcp.Description("Seconds to wait for the element to appear")),
				mcp.WithBoolean("long", mcp.Description("Long-press instead of tap")),
			}, expectArgs()...)...,
		),
		s.handleClickByText,
	)
	s.mcp.AddTool(
		tool("mobile_click_by_id", "Click the element with a resource-id such as com.app:id/login_btn or login_btn",
			append([]mcp.ToolOption{
				mcp.WithString("id", mcp.Required(), mcp.Description("Resource-id, full or bare")),
				mcp.WithString("hint", mcp.Description("Disambiguate duplicates: top, bottom, left, right, first, last, or an index")),
				mcp.WithNumber("wait", mcp.Description("Seconds to wait for the element to appear")),
				mcp.WithBoolean("long", mcp.Description("Long-press instead of tap")),
			}, expectArgs()...)...,
		),
		s.handleClickByID,
	)
	s.mcp.AddTool(
		tool("mobile_click_by_percent", "Click at a position given in percent of the screen, e.g. 50/90 for bottom center",
			append([]mcp.ToolOption{
				mcp.WithNumber("x_percent", mcp.Required(), mcp.Description("Horizontal position, 0-100")),
				mcp.WithNumber("y_percent", mcp.Required(), mcp.Description("Vertical position, 0-100")),
			}, expectArgs()...)...,
		),
		s.handleClickByPercent,
	)
	s.mcp.AddTool(
		tool("mobile_double_click", "Double-tap an element by text or resource-id, or pixel coordinates when x and y are given",
			append([]mcp.ToolOption{
				mcp.WithString("text", mcp.Description("Visible text of the element")),
				mcp.WithString("id", mcp.Description("Resource-id, full or bare")),
				mcp.WithNumber("x", mcp.Description("X coordinate")),
				mcp.WithNumber("y", mcp.Description("Y coordinate")),
				mcp.WithNumber("image_width", mcp.Description("Width of the screenshot the coordinates were read from")),
				mcp.WithNumber("image_height", mcp.Description("Height of the screenshot the coordinates were read from")),
				mcp.WithString("hint", mcp.Description("Disambiguate duplicates: top, bottom, left, right, first, last, or an index")),
				mcp.WithNumber("wait", mcp.Description("Seconds to wait for the element to appear")),
			}, expectArgs()...)...,
		),
		s.handleDoubleClick,
	)
	s.mcp.AddTool(
		tool("mobile_click_at_coords", "Click at pixel coordinates. Pass image_width/image_height when the coordinates come from a scaled screenshot.",
			append([]mcp.ToolOption{
				mcp.WithNumber("x", mcp.Required(), mcp.Description("X coordinate")),
				mcp.WithNumber("y", mcp.Required(), mcp.Description("Y coordinate")),
				mcp.WithNumber("image_width", mcp.Description("Width of the screenshot the coordinates were read from")),
				mcp.WithNumber("image_height", mcp.Description("Height of the screenshot the coordinates were read from")),
			}, expectArgs()...)...,
		),
		s.handleClickAtCoords,
	)

	// input
	s.mcp.AddTool(
		tool("mobile_input_text_by_id", "Tap the input field with a resource-id and type text. Omit id to type into the focused field.",
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to type")),
			mcp.WithString("id", mcp.Description("Resource-id of the input field")),
			mcp.WithNumber("wait", mcp.Description("Seconds to wait for the field to appear")),
		),
		s.handleInputByID,
	)
	s.mcp.AddTool(
		tool("mobile_input_at_coords", "Tap pixel coordinates and type text",
			mcp.WithNumber("x", mcp.Required(), mcp.Description("X coordinate")),
			mcp.WithNumber("y", mcp.Required(), mcp.Description("Y coordinate")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to type")),
		),
		s.handleInputAtCoords,
	)

	// gestures and keys
	s.mcp.AddTool(
		tool("mobile_swipe", "Swipe across the screen",
			mcp.WithString("direction", mcp.Required(), mcp.Description("up, down, left, or right"), mcp.Enum("up", "down", "left", "right")),
		),
		s.handleSwipe,
	)
	s.mcp.AddTool(
		tool("mobile_press_key", "Press a key by name (back, home, enter, search, ...) or key code. An unverified search falls back to enter once.",
			mcp.WithString("key", mcp.Required(), mcp.Description("Key name, alias, or numeric key code")),
		),
		s.handlePressKey,
	)
	s.mcp.AddTool(
		tool("mobile_wait", "Wait a number of seconds, or until an element with text or id appears",
			mcp.WithNumber("seconds", mcp.Description("Seconds to wait when no text or id is given (default 1)")),
			mcp.WithString("text", mcp.Description("Wait for an element showing this text")),
			mcp.WithString("id", mcp.Description("Wait for an element with this resource-id")),
			mcp.WithNumber("timeout", mcp.Description("Seconds before giving up on text or id")),
		),
		s.handleWait,
	)

	// apps
	s.mcp.AddTool(
		tool("mobile_launch_app", "Launch an application by package name",
			mcp.WithString("package_name", mcp.Required(), mcp.Description("Package name, e.g. com.example.app")),
		),
		s.handleLaunchApp,
	)
	s.mcp.AddTool(
		tool("mobile_terminate_app", "Force-stop an application by package name",
			mcp.WithString("package_name", mcp.Required(), mcp.Description("Package name, e.g. com.example.app")),
		),
		s.handleTerminateApp,
	)
	s.mcp.AddTool(
		tool("mobile_get_current_package", "Get the package name of the foreground application"),
		s.handleCurrentPackage,
	)
	s.mcp.AddTool(
		tool("mobile_open_url", "Open a URL with the device's default handler, usually the browser",
			mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL, e.g. https://example.com")),
		),
		s.handleOpenURL,
	)
	s.mcp.AddTool(
		tool("mobile_install_app", "Install an APK file from the host, replacing an existing version",
			mcp.WithString("apk_path", mcp.Required(), mcp.Description("Path of the APK file on this machine")),
		),
		s.handleInstallApp,
	)
	s.mcp.AddTool(
		tool("mobile_uninstall_app", "Uninstall an application by package name",
			mcp.WithString("package_name", mcp.Required(), mcp.Description("Package name, e.g. com.example.app")),
		),
		s.handleUninstallApp,
	)
	s.mcp.AddTool(
		tool("mobile_list_apps", "List installed application packages",
			mcp.WithBoolean("all", mcp.Description("Include system packages")),
		),
		s.handleListApps,
	)

	// orientation
	s.mcp.AddTool(
		tool("mobile_get_orientation", "Get the display orientation: portrait or landscape"),
		s.handleGetOrientation,
	)
	s.mcp.AddTool(
		tool("mobile_set_orientation", "Lock the display to portrait or landscape. Turns auto-rotate off.",
			mcp.WithString("orientation", mcp.Required(), mcp.Description("portrait or landscape"), mcp.Enum("portrait", "landscape")),
		),
		s.handleSetOrientation,
	)

	// assertions and popups
	s.mcp.AddTool(
		tool("mobile_assert_text", "Check whether text is on screen. Fails the call when the expectation does not hold.",
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to look for, exact or as a substring")),
			mcp.WithBoolean("absent", mcp.Description("Expect the text to be absent")),
		),
		s.handleAssertText,
	)
	s.mcp.AddTool(
		tool("mobile_detect_popup", "Report dismissal controls of a popup, ad, or guide overlay. Never taps."),
		s.handleDetectPopup,
	)
	s.mcp.AddTool(
		tool("mobile_close_popup", "Tap the best dismissal control of the top-most popup and verify the screen changed"),
		s.handleClosePopup,
	)

	// recording
	s.mcp.AddTool(
		tool("mobile_get_operation_history", "List the verified actions recorded on a device"),
		s.handleHistory,
	)
	s.mcp.AddTool(
		tool("mobile_clear_operation_history", "Clear the recorded actions on a device"),
		s.handleClearHistory,
	)
	s.mcp.AddTool(
		tool("mobile_generate_test_script", "Render the recorded actions as a replayable script using percent coordinates. The history is kept.",
			mcp.WithString("template", mcp.Description("pytest (default), maestro, or json"), mcp.Enum("pytest", "maestro", "json")),
			mcp.WithString("name", mcp.Description("Test name")),
			mcp.WithString("package_name", mcp.Description("Application package the script targets")),
			mcp.WithString("output", mcp.Description("Write the script to this file as well")),
		),
		s.handleGenerateScript,
	)

	// flows
	s.mcp.AddTool(
		tool("mobile_run_steps", "Run several steps in one call, given as a YAML step list or as Chinese instructions separated by commas",
			mcp.WithString("steps", mcp.Required(), mcp.Description("YAML list such as '- click: {text: 登录}' or '启动应用com.example，点击登录'")),
			mcp.WithBoolean("continue_on_error", mcp.Description("Keep going after a failed step")),
		),
		s.handleRunSteps,
	)
}
