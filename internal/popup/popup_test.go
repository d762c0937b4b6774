package popup

import (
	"testing"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/index"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/platform/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var screen = model.Size{Width: 1080, Height: 2400}

func parse(t *testing.T, nodes ...fake.Node) *index.Index {
	t.Helper()
	idx, err := index.Parse([]byte(fake.Screen(nodes...)), index.Options{Screen: screen})
	require.NoError(t, err)
	return idx
}

func detector() *Detector {
	return New(config.DefaultTables(), 0.12)
}

// mainContent is a page with a bottom bar that includes a "Cancel" tab.
func mainContent() fake.Node {
	return fake.Node{ID: "com.example:id/content", Class: "android.widget.LinearLayout", Bounds: model.Rect{0, 0, 1080, 2400}, Children: []fake.Node{
		{Text: "首页", Bounds: model.Rect{0, 2300, 200, 100}, Clickable: true},
		{Text: "Cancel", Bounds: model.Rect{880, 2300, 200, 100}, Clickable: true},
	}}
}

func screenWith(overlay fake.Node) []fake.Node {
	return []fake.Node{{Class: "android.widget.FrameLayout", Bounds: model.Rect{0, 0, 1080, 2400}, Children: []fake.Node{
		mainContent(), overlay,
	}}}
}

func TestScan_NoOverlayIgnoresCancel(t *testing.T) {
	idx := parse(t, mainContent())
	_, ok := detector().Scan(idx)
	assert.False(t, ok)
	assert.Empty(t, detector().Candidates(idx))
}

func TestScan_CenteredFormInPageIsNotPopup(t *testing.T) {
	idx := parse(t, fake.Node{Class: "android.widget.FrameLayout", Bounds: model.Rect{0, 0, 1080, 2400}, Children: []fake.Node{
		{Class: "android.widget.LinearLayout", Bounds: model.Rect{0, 0, 1080, 2200}, Children: []fake.Node{
			{Class: "android.widget.LinearLayout", Bounds: model.Rect{140, 800, 800, 800}, Children: []fake.Node{
				{ID: "com.example:id/name", Class: "android.widget.EditText", Bounds: model.Rect{180, 850, 720, 100}, Clickable: true},
				{Text: "取消", Class: "android.widget.Button", Bounds: model.Rect{200, 1450, 300, 100}, Clickable: true},
				{Text: "确定", Class: "android.widget.Button", Bounds: model.Rect{580, 1450, 300, 100}, Clickable: true},
			}},
		}},
		{Class: "android.widget.LinearLayout", Bounds: model.Rect{0, 2200, 1080, 200}, Children: []fake.Node{
			{Text: "首页", Bounds: model.Rect{0, 2200, 540, 200}, Clickable: true},
			{Text: "我的", Bounds: model.Rect{540, 2200, 540, 200}, Clickable: true},
		}},
	}})

	_, ok := detector().Scan(idx)
	assert.False(t, ok)
	assert.Empty(t, detector().Candidates(idx))
}

func TestScan_NoVocabularyNoCandidate(t *testing.T) {
	idx := parse(t, fake.Node{Text: "Welcome", Bounds: model.Rect{0, 0, 1080, 200}})
	_, ok := detector().Scan(idx)
	assert.False(t, ok)
}

func TestScan_DialogVocabulary(t *testing.T) {
	idx := parse(t, screenWith(fake.Node{Class: "android.app.AlertDialog", Bounds: model.Rect{140, 800, 800, 800}, Children: []fake.Node{
		{Text: "发现新版本", Bounds: model.Rect{180, 850, 720, 100}},
		{Text: "立即更新", Bounds: model.Rect{580, 1450, 300, 100}, Clickable: true},
		{Text: "关闭", Bounds: model.Rect{200, 1450, 300, 100}, Clickable: true},
	}})...)

	el, ok := detector().Scan(idx)
	require.True(t, ok)
	assert.Equal(t, "关闭", el.Text)

	cands := detector().Candidates(idx)
	require.Len(t, cands, 1)
	assert.Equal(t, ReasonVocabulary, cands[0].Reason)
	assert.Equal(t, "class", cands[0].Layer.Strategy)
}

func TestScan_CornerIconInScoredOverlay(t *testing.T) {
	idx := parse(t, screenWith(fake.Node{ID: "com.example:id/ad_container", Class: "android.widget.FrameLayout", Bounds: model.Rect{140, 600, 800, 1200}, Children: []fake.Node{
		{Desc: "广告", Class: "android.widget.ImageView", Bounds: model.Rect{140, 600, 800, 1000}, Clickable: true},
		{ID: "com.example:id/iv_x", Class: "android.widget.ImageView", Bounds: model.Rect{860, 620, 60, 60}, Clickable: true},
	}})...)

	cands := detector().Candidates(idx)
	require.Len(t, cands, 1)
	assert.Equal(t, ReasonIcon, cands[0].Reason)
	assert.Equal(t, "com.example:id/iv_x", cands[0].Element.ResourceID)
	assert.Equal(t, "bounds", cands[0].Layer.Strategy)
}

func TestScan_VocabularyBeatsIconThenSmallerArea(t *testing.T) {
	idx := parse(t, screenWith(fake.Node{Class: "android.app.Dialog", Bounds: model.Rect{140, 600, 800, 1200}, Children: []fake.Node{
		{ID: "com.example:id/iv_x", Class: "android.widget.ImageView", Bounds: model.Rect{860, 620, 60, 60}, Clickable: true},
		{Text: "跳过", Bounds: model.Rect{200, 1600, 400, 120}, Clickable: true},
		{Text: "Skip", Bounds: model.Rect{700, 1600, 200, 100}, Clickable: true},
	}})...)

	cands := detector().Candidates(idx)
	require.Len(t, cands, 3)
	assert.Equal(t, "Skip", cands[0].Element.Text)
	assert.Equal(t, "跳过", cands[1].Element.Text)
	assert.Equal(t, ReasonIcon, cands[2].Reason)
}

func TestScan_ResourceIDTail(t *testing.T) {
	idx := parse(t, screenWith(fake.Node{Class: "android.app.Dialog", Bounds: model.Rect{140, 600, 800, 1200}, Children: []fake.Node{
		{Text: "限时优惠", Bounds: model.Rect{200, 700, 600, 100}},
		{ID: "com.example:id/btn_close", Class: "android.widget.ImageView", Bounds: model.Rect{440, 1700, 200, 80}, Clickable: true},
	}})...)

	el, ok := detector().Scan(idx)
	require.True(t, ok)
	assert.Equal(t, "com.example:id/btn_close", el.ResourceID)
}

func TestNew_VocabularyFolding(t *testing.T) {
	d := detector()
	assert.True(t, d.vocab["skip"])
	assert.True(t, d.vocab["not now"])
	assert.True(t, d.matchesVocabulary(model.Element{Text: " SKIP "}))
	assert.False(t, d.matchesVocabulary(model.Element{Text: "Skipping ahead"}))
}
