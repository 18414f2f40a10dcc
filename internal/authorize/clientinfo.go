package authorize

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/validate"
)

const (
	clientInfoMaxDepth = 3
	clientInfoMaxBody  = 64 << 10
)

// ClientInfo is the display metadata a client publishes at its client_id URL.
type ClientInfo struct {
	Name   string
	Logo   string
	URI    string
	TOS    string
	Policy string
}

// MetadataFetcher looks up client display metadata. A nil result means none
// could be obtained.
type MetadataFetcher interface {
	Fetch(ctx context.Context, clientID string) *ClientInfo
}

// HTTPMetadataFetcher fetches client metadata with a plain GET. The client
// should be built with redirects disabled.
type HTTPMetadataFetcher struct {
	Client *http.Client
	Log    *zap.Logger
}

func (f *HTTPMetadataFetcher) Fetch(ctx context.Context, clientID string) *ClientInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clientID, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		f.Log.Debug("client metadata fetch failed", zap.String("client_id", clientID), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.Log.Debug("client metadata unavailable", zap.String("client_id", clientID), zap.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, clientInfoMaxBody))
	if err != nil {
		return nil
	}
	doc, ok := validate.JSONObject(body, clientInfoMaxDepth)
	if !ok {
		f.Log.Debug("client metadata is not a JSON object", zap.String("client_id", clientID))
		return nil
	}

	str := func(key string) string {
		if v := doc.Get(key); v.Type == gjson.String {
			return v.Str
		}
		return ""
	}
	return &ClientInfo{
		Name:   str("client_name"),
		Logo:   str("client_logo"),
		URI:    str("client_uri"),
		TOS:    str("client_tos"),
		Policy: str("client_policy"),
	}
}
