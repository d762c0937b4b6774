package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Columns maps case fields to Bitable column names.
type Columns struct {
	ID, Name, Device, Package, Steps, Expect, Status, Reason string
}

// DefaultColumns are the column names of the shared test-case table.
var DefaultColumns = Columns{
	ID:      "用例编号",
	Name:    "用例名称",
	Device:  "设备",
	Package: "应用包名",
	Steps:   "操作步骤",
	Expect:  "预期结果",
	Status:  "执行结果",
	Reason:  "失败原因",
}

// tokenSkew renews the tenant token this long before it expires.
const tokenSkew = 5 * time.Minute

// Feishu reads and updates records of a Feishu Bitable table.
type Feishu struct {
	cfg     config.FeishuConfig
	client  *http.Client
	limiter *rate.Limiter
	columns Columns

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewFeishu validates cfg and returns a client. A nil httpClient uses a
// client with a 30s timeout.
func NewFeishu(cfg config.FeishuConfig, httpClient *http.Client) (*Feishu, error) {
	var missing []string
	for name, v := range map[string]string{
		"app_id": cfg.AppID, "app_secret": cfg.AppSecret, "app_token": cfg.AppToken, "table_id": cfg.TableID,
	} {
		if v == "" {
			missing = append(missing, "sheet.feishu."+name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("feishu backend needs %s", strings.Join(missing, ", "))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Feishu{
		cfg:     cfg,
		client:  httpClient,
		limiter: rate.NewLimiter(limit, 1),
		columns: DefaultColumns,
	}, nil
}

// ReadCases pages through every record of the table.
func (f *Feishu) ReadCases(ctx context.Context) ([]Case, error) {
	var cases []Case
	pageToken := ""
	for {
		q := url.Values{"page_size": {fmt.Sprint(f.cfg.PageSize)}}
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}
		body, err := f.call(ctx, http.MethodGet, f.recordsURL("")+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}

		for _, item := range gjson.GetBytes(body, "data.items").Array() {
			fields := item.Get("fields")
			c := Case{
				Ref:     item.Get("record_id").String(),
				ID:      cellText(fields, f.columns.ID),
				Name:    cellText(fields, f.columns.Name),
				Device:  cellText(fields, f.columns.Device),
				Package: cellText(fields, f.columns.Package),
				Steps:   cellText(fields, f.columns.Steps),
				Expect:  cellText(fields, f.columns.Expect),
				Status:  Status(cellText(fields, f.columns.Status)),
				Reason:  cellText(fields, f.columns.Reason),
			}
			if c.ID == "" {
				c.ID = c.Ref
			}
			cases = append(cases, c)
		}

		if !gjson.GetBytes(body, "data.has_more").Bool() {
			return cases, nil
		}
		pageToken = gjson.GetBytes(body, "data.page_token").String()
		if pageToken == "" {
			return cases, nil
		}
	}
}

// WriteResult updates the status and reason cells of the case's record.
func (f *Feishu) WriteResult(ctx context.Context, r Result) error {
	if r.Ref == "" {
		return fmt.Errorf("case %s: no record id", r.CaseID)
	}
	payload, err := json.Marshal(map[string]any{"fields": map[string]string{
		f.columns.Status: string(r.Status),
		f.columns.Reason: r.Reason,
	}})
	if err != nil {
		return err
	}
	if _, err := f.call(ctx, http.MethodPut, f.recordsURL(r.Ref), payload); err != nil {
		return fmt.Errorf("update record %s: %w", r.Ref, err)
	}
	return nil
}

func (f *Feishu) recordsURL(recordID string) string {
	u := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records",
		strings.TrimRight(f.cfg.BaseURL, "/"), url.PathEscape(f.cfg.AppToken), url.PathEscape(f.cfg.TableID))
	if recordID != "" {
		u += "/" + url.PathEscape(recordID)
	}
	return u
}

// call performs an authorized, rate-limited request and checks the API code.
func (f *Feishu) call(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	token, err := f.tenantToken(ctx)
	if err != nil {
		return nil, err
	}
	return f.do(ctx, method, u, payload, token)
}

func (f *Feishu) do(ctx context.Context, method, u string, payload []byte, token string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	observability.GetLogger().Debug("feishu request",
		zap.String("method", method),
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if code := gjson.GetBytes(data, "code"); code.Exists() && code.Int() != 0 {
		return nil, fmt.Errorf("feishu error %d: %s", code.Int(), gjson.GetBytes(data, "msg").String())
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feishu http %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

// tenantToken returns a cached tenant access token, fetching a new one when
// it is missing or about to expire.
func (f *Feishu) tenantToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token != "" && time.Now().Before(f.expires) {
		return f.token, nil
	}

	payload, _ := json.Marshal(map[string]string{"app_id": f.cfg.AppID, "app_secret": f.cfg.AppSecret})
	u := strings.TrimRight(f.cfg.BaseURL, "/") + "/open-apis/auth/v3/tenant_access_token/internal"
	data, err := f.do(ctx, http.MethodPost, u, payload, "")
	if err != nil {
		return "", fmt.Errorf("tenant token: %w", err)
	}
	token := gjson.GetBytes(data, "tenant_access_token").String()
	if token == "" {
		return "", errors.New("tenant token: empty token in response")
	}
	ttl := time.Duration(gjson.GetBytes(data, "expire").Int()) * time.Second
	f.token, f.expires = token, time.Now().Add(ttl-tokenSkew)
	return token, nil
}

// cellText flattens a Bitable cell. Text cells arrive either as a plain
// string or as a list of rich-text segments.
func cellText(fields gjson.Result, column string) string {
	cell := fields.Get(gjson.Escape(column))
	switch {
	case !cell.Exists():
		return ""
	case cell.IsArray():
		var b strings.Builder
		for _, seg := range cell.Array() {
			if t := seg.Get("text"); t.Exists() {
				b.WriteString(t.String())
			} else {
				b.WriteString(seg.String())
			}
		}
		return strings.TrimSpace(b.String())
	case cell.IsObject():
		return strings.TrimSpace(cell.Get("text").String())
	default:
		return strings.TrimSpace(cell.String())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
