// Package locator resolves a query to a concrete element of an indexed
// snapshot. Strategies run in a fixed order: resource-id, exact text,
// percent position, then an external vision recognizer.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/index"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/platform"
	"github.com/mj1618/mobile-mcp/internal/shot"
	"go.uber.org/zap"
)

// Locator resolves queries. It holds no per-snapshot state and is safe for
// concurrent use.
type Locator struct {
	tables     config.Tables
	recognizer platform.Recognizer
	shooter    platform.Screenshotter
	newID      func() string
}

// Option configures a Locator.
type Option func(*Locator)

// WithRecognizer sets the recognizer used for the vision strategy.
func WithRecognizer(r platform.Recognizer) Option {
	return func(l *Locator) { l.recognizer = r }
}

// WithScreenshotter sets the source of the image attached to vision requests.
func WithScreenshotter(s platform.Screenshotter) Option {
	return func(l *Locator) { l.shooter = s }
}

// New returns a Locator using tables for text cleanup.
func New(tables config.Tables, opts ...Option) *Locator {
	l := &Locator{tables: tables, newID: func() string { return uuid.New().String() }}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// candidates holds an ambiguous match set kept for the final tie-break.
type candidates struct {
	strategy model.Strategy
	matches  []model.Element
}

// Resolve runs the strategy chain. A strategy is skipped when its query field
// is empty; the next one runs when it finds nothing, or finds several
// elements and no hint was given. When every later strategy also fails, the
// first ambiguous set is settled by tie-break. Otherwise the result is a
// *model.NotFoundError listing every attempt.
func (l *Locator) Resolve(ctx context.Context, q model.Query, idx *index.Index) (model.Resolution, error) {
	if err := q.Validate(); err != nil {
		return model.Resolution{}, err
	}
	logger := observability.GetLogger().With(zap.String("query", q.String()))

	var (
		attempts  []model.Attempt
		ambiguous *candidates
	)
	try := func(strategy model.Strategy, value string, matches []model.Element) (model.Resolution, bool) {
		picked, note := applyHint(matches, q.Hint)
		attempt := model.Attempt{Strategy: strategy, Value: value, Matches: len(matches), Note: note}
		switch {
		case picked != nil:
			attempts = append(attempts, attempt)
			return resolution(*picked, strategy, len(matches)), true
		case len(matches) > 1 && q.Hint == model.HintNone:
			attempt.Note = "ambiguous"
			if ambiguous == nil {
				ambiguous = &candidates{strategy: strategy, matches: matches}
			}
		}
		attempts = append(attempts, attempt)
		return model.Resolution{}, false
	}

	if q.ID != "" {
		if res, ok := try(model.StrategyID, q.ID, idx.ByID(q.ID)); ok {
			logger.Debug("resolved", zap.String("strategy", string(res.Strategy)), zap.Int("index", res.Element.Index))
			return res, nil
		}
	}

	if q.Text != "" {
		for _, term := range l.textTerms(q.Text) {
			if res, ok := try(model.StrategyText, term, idx.ByText(term)); ok {
				logger.Debug("resolved", zap.String("strategy", string(res.Strategy)), zap.Int("index", res.Element.Index))
				return res, nil
			}
		}
	}

	if q.Percent != nil {
		screen := idx.Screen()
		value := fmt.Sprintf("%.1f,%.1f", q.Percent.X, q.Percent.Y)
		if screen.Valid() {
			return percentResolution(*q.Percent, screen), nil
		}
		attempts = append(attempts, model.Attempt{Strategy: model.StrategyPercent, Value: value, Note: "screen size unknown"})
	}

	var vision *model.VisionRequest
	if q.Description != "" {
		req, err := l.visionRequest(ctx, q.Description, idx.Screen())
		if err != nil {
			return model.Resolution{}, err
		}
		if l.recognizer != nil {
			pt, err := l.recognizer.Locate(ctx, req)
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return model.Resolution{}, err
			case err != nil:
				attempts = append(attempts, model.Attempt{Strategy: model.StrategyVision, Value: q.Description, Note: err.Error()})
			case !onScreen(pt, idx.Screen()):
				attempts = append(attempts, model.Attempt{Strategy: model.StrategyVision, Value: q.Description, Note: "point off screen"})
			default:
				return visionResolution(pt), nil
			}
		} else {
			attempts = append(attempts, model.Attempt{Strategy: model.StrategyVision, Value: q.Description, Note: "no recognizer configured"})
			vision = &req
		}
	}

	if ambiguous != nil {
		el := tieBreak(ambiguous.matches)
		logger.Debug("resolved by tie-break",
			zap.String("strategy", string(ambiguous.strategy)),
			zap.Int("matches", len(ambiguous.matches)),
			zap.Int("index", el.Index))
		return resolution(el, ambiguous.strategy, len(ambiguous.matches)), nil
	}

	return model.Resolution{}, &model.NotFoundError{Query: q, Attempts: attempts, Vision: vision}
}

// textTerms returns the exact query text, then its cleaned form when that
// differs: filler words removed and synonyms applied.
func (l *Locator) textTerms(text string) []string {
	exact := index.Normalize(text)
	terms := []string{exact}
	cleaned := index.Normalize(l.tables.Synonym(l.tables.StripFillers(exact)))
	if cleaned != "" && cleaned != exact {
		terms = append(terms, cleaned)
	}
	return terms
}

func (l *Locator) visionRequest(ctx context.Context, description string, screen model.Size) (model.VisionRequest, error) {
	req := model.VisionRequest{
		ID:          l.newID(),
		Purpose:     "locate",
		Description: description,
		Region:      model.Rect{0, 0, screen.Width, screen.Height},
		Screen:      screen,
	}
	if l.shooter == nil {
		return req, nil
	}
	raw, err := l.shooter.Screenshot(ctx)
	if err != nil {
		return req, err
	}
	img, err := shot.Decode(raw)
	if err != nil {
		return req, err
	}
	if req.Region.Empty() {
		b := img.Bounds()
		req.Region = model.Rect{0, 0, b.Dx(), b.Dy()}
	}
	png, err := shot.Crop(img, req.Region)
	if err != nil {
		return req, err
	}
	req.ImagePNG = png
	return req, nil
}

// applyHint picks one element from matches. Without a hint only a single
// match is picked. The note explains a hint that selected nothing.
func applyHint(matches []model.Element, hint model.Hint) (*model.Element, string) {
	if len(matches) == 0 {
		return nil, ""
	}
	if hint == model.HintNone {
		if len(matches) == 1 {
			return &matches[0], ""
		}
		return nil, ""
	}
	if n, ok := hint.Ordinal(); ok {
		if n >= len(matches) {
			return nil, fmt.Sprintf("hint %d out of range", n)
		}
		return &matches[n], ""
	}

	best := 0
	for i := 1; i < len(matches); i++ {
		a, b := matches[i].Center(), matches[best].Center()
		var better bool
		switch hint {
		case model.HintTop:
			better = a.Y < b.Y
		case model.HintBottom:
			better = a.Y > b.Y
		case model.HintLeft:
			better = a.X < b.X
		case model.HintRight:
			better = a.X > b.X
		case model.HintLast:
			better = true
		}
		if better {
			best = i
		}
	}
	return &matches[best], ""
}

// tieBreak prefers the shallowest element, then document order.
func tieBreak(matches []model.Element) model.Element {
	best := matches[0]
	for _, el := range matches[1:] {
		if el.Depth < best.Depth || (el.Depth == best.Depth && el.Index < best.Index) {
			best = el
		}
	}
	return best
}

func resolution(el model.Element, strategy model.Strategy, matches int) model.Resolution {
	return model.Resolution{Element: el, Point: el.Center(), Strategy: strategy, Matches: matches}
}

func percentResolution(p model.PercentPoint, screen model.Size) model.Resolution {
	pt := p.ToPoint(screen)
	return model.Resolution{
		Element:   syntheticElement(pt),
		Point:     pt,
		Strategy:  model.StrategyPercent,
		Matches:   1,
		Synthetic: true,
	}
}

func visionResolution(pt model.Point) model.Resolution {
	return model.Resolution{
		Element:   syntheticElement(pt),
		Point:     pt,
		Strategy:  model.StrategyVision,
		Matches:   1,
		Synthetic: true,
	}
}

func onScreen(pt model.Point, screen model.Size) bool {
	if !screen.Valid() {
		return pt.X >= 0 && pt.Y >= 0
	}
	return model.Rect{0, 0, screen.Width, screen.Height}.Contains(pt)
}

func syntheticElement(pt model.Point) model.Element {
	return model.Element{Index: -1, Role: "point", Bounds: model.Rect{pt.X, pt.Y, 1, 1}, Parent: -1}
}
