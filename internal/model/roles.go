package model

import "strings"

// RoleMap maps Android widget class names (without package) to compact role codes.
var RoleMap = map[string]string{
	"Button":               "btn",
	"ImageButton":          "btn",
	"TextView":             "txt",
	"CheckedTextView":      "txt",
	"ImageView":            "img",
	"EditText":             "input",
	"AutoCompleteTextView": "input",
	"CheckBox":             "chk",
	"Switch":               "toggle",
	"ToggleButton":         "toggle",
	"RadioButton":          "radio",
	"Spinner":              "menu",
	"TabWidget":            "tab",
	"TabLayout":            "tab",
	"ListView":             "list",
	"RecyclerView":         "list",
	"GridView":             "list",
	"ScrollView":           "scroll",
	"HorizontalScrollView": "scroll",
	"ViewPager":            "scroll",
	"WebView":              "web",
	"Toolbar":              "toolbar",
	"FrameLayout":          "group",
	"LinearLayout":         "group",
	"RelativeLayout":       "group",
	"ConstraintLayout":     "group",
	"ViewGroup":            "group",
	"View":                 "group",
	"Dialog":               "dialog",
	"AlertDialog":          "dialog",
}

// MetaRoles maps meta-role names to the concrete roles they expand to.
var MetaRoles = map[string][]string{
	"interactive": {"btn", "input", "chk", "toggle", "radio", "menu", "tab"},
}

// ExpandRoles expands any meta-roles in the given list to their concrete roles.
// Non-meta roles are passed through unchanged. Duplicates are removed.
func ExpandRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	var expanded []string
	for _, r := range roles {
		if concrete, ok := MetaRoles[r]; ok {
			for _, c := range concrete {
				if !seen[c] {
					seen[c] = true
					expanded = append(expanded, c)
				}
			}
		} else if !seen[r] {
			seen[r] = true
			expanded = append(expanded, r)
		}
	}
	return expanded
}

// MapRole converts a fully qualified widget class to a compact code.
// Custom subclasses such as "com.app.widget.FancyButton" fall back to a
// suffix match against the known class names.
func MapRole(class string) string {
	short := class
	if i := strings.LastIndex(class, "."); i >= 0 {
		short = class[i+1:]
	}
	if r, ok := RoleMap[short]; ok {
		return r
	}
	for _, suffix := range []string{"Button", "EditText", "TextView", "ImageView", "Layout", "Dialog"} {
		if strings.HasSuffix(short, suffix) {
			return RoleMap[suffixBase[suffix]]
		}
	}
	return "other"
}

var suffixBase = map[string]string{
	"Button":    "Button",
	"EditText":  "EditText",
	"TextView":  "TextView",
	"ImageView": "ImageView",
	"Layout":    "FrameLayout",
	"Dialog":    "Dialog",
}
