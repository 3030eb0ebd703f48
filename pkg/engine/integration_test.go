package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrodev1/telegram-gift-parser/pkg/provider"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ratelimit"
	"github.com/nitrodev1/telegram-gift-parser/pkg/resolver"
	"github.com/nitrodev1/telegram-gift-parser/pkg/scheduler"
)

// gateway fakes the provider gateway and the public gift pages
type gateway struct {
	mu       sync.Mutex
	limited  bool
	requests map[string]int
}

func (g *gateway) count(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[path]
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.requests == nil {
		g.requests = make(map[string]int)
	}
	g.requests[r.URL.Path]++
	g.mu.Unlock()

	writeJSON := func(status int, body map[string]interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	switch {
	case r.URL.Path == "/me":
		writeJSON(http.StatusOK, map[string]interface{}{"ok": true, "result": map[string]interface{}{"id": 1}})

	case r.URL.Path == "/channels/nft/messages/7":
		g.mu.Lock()
		first := !g.limited
		g.limited = true
		g.mu.Unlock()
		if first {
			writeJSON(http.StatusTooManyRequests, map[string]interface{}{
				"ok":          false,
				"error_code":  429,
				"description": "Too Many Requests",
				"parameters":  map[string]interface{}{"retry_after": 5},
			})
			return
		}
		writeJSON(http.StatusOK, map[string]interface{}{"ok": false})

	case r.URL.Path == "/channels/nft/messages/3":
		writeJSON(http.StatusOK, map[string]interface{}{
			"ok":     true,
			"result": map[string]interface{}{"id": 3, "sender": map[string]interface{}{"username": "alice"}},
		})

	case strings.HasPrefix(r.URL.Path, "/channels/"):
		writeJSON(http.StatusOK, map[string]interface{}{"ok": false})

	case r.URL.Path == "/nft/LolPop-8":
		fmt.Fprint(w, `<html><body><div class="tgme_gift_owner">Owner: Bob</div></body></html>`)

	case strings.HasPrefix(r.URL.Path, "/nft/"):
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)

	default:
		http.NotFound(w, r)
	}
}

func TestScanAgainstGateway(t *testing.T) {
	gw := &gateway{}
	server := httptest.NewServer(gw)
	defer server.Close()

	client := provider.NewClient(provider.Options{
		BaseURL:      server.URL,
		Channel:      "nft",
		SessionToken: "token",
		Timeout:      5 * time.Second,
	}, nil)
	pages := provider.NewPageFetcher(provider.PageOptions{Timeout: 5 * time.Second}, nil)
	res := resolver.New(client, pages, resolver.Options{
		PageBaseURL: server.URL + "/nft",
		Collection:  "LolPop",
	}, nil)

	dir := t.TempDir()
	ownersPath, linksPath := filepath.Join(dir, "owners.csv"), filepath.Join(dir, "links.csv")
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))
	e, err := New(baseConfig(1, 10), client, scheduler.New(res, 5, nil), csvOpener(ownersPath, linksPath, false),
		ratelimit.NewController(clock, 0, time.Minute))
	require.NoError(t, err)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	owners, err := os.ReadFile(ownersPath)
	require.NoError(t, err)
	assert.Equal(t, "Gift ID,Owner\n3,@alice\n8,Bob\n", string(owners))

	links, err := os.ReadFile(linksPath)
	require.NoError(t, err)
	assert.Contains(t, string(links), "3,"+server.URL+"/nft/LolPop-3\n")
	assert.Contains(t, string(links), "8,"+server.URL+"/nft/LolPop-8\n")

	assert.Equal(t, 1, stats.RateLimitWaits)
	assert.Contains(t, clock.Sleeps(), 5*time.Second)
	assert.Equal(t, 1, gw.count("/channels/nft/messages/1"), "first batch dispatched once")
	assert.Equal(t, 2, gw.count("/channels/nft/messages/7"))
}
