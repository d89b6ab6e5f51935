package zones

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/zones/county/CAC073":
			fmt.Fprint(w, `{"properties":{"name":"San Diego","state":"CA"}}`)
		case "/zones/forecast/CAZ050":
			fmt.Fprint(w, `{"properties":{"name":"Alpine Mountains"}}`)
		case "/zones/forecast/ORZ011":
			http.NotFound(w, r)
		case "/zones/fire/ORZ011":
			fmt.Fprint(w, `{"properties":{"name":"Umatilla Fire Zone"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestResolveCounty(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	r := NewResolverWithBase(srv.URL, srv.Client())
	assert.Equal(t, "San Diego, CA", r.Resolve(context.Background(), "CAC073"))
}

func TestResolveForecastZone(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	r := NewResolverWithBase(srv.URL, srv.Client())
	assert.Equal(t, "Alpine Mountains", r.Resolve(context.Background(), "CAZ050"))
}

func TestResolveFireFallback(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	r := NewResolverWithBase(srv.URL, srv.Client())
	assert.Equal(t, "Umatilla Fire Zone", r.Resolve(context.Background(), "ORZ011"))
}

func TestResolveMemoizesNegatives(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	r := NewResolverWithBase(srv.URL, srv.Client())
	assert.Empty(t, r.Resolve(context.Background(), "WAZ999"))
	after := hits.Load()
	assert.Empty(t, r.Resolve(context.Background(), "WAZ999"))
	assert.Equal(t, after, hits.Load(), "second lookup must come from cache")
}

func TestResolveAll(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	r := NewResolverWithBase(srv.URL, srv.Client())
	got := r.ResolveAll(context.Background(), []string{"CAC073", "WAZ999", "CAZ050"})
	assert.Equal(t, "San Diego, CA; Alpine Mountains", got)
}

func TestResolveServerDown(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.Close()

	r := NewResolverWithBase(srv.URL, srv.Client())
	assert.Empty(t, r.Resolve(context.Background(), "CAC073"))
}
