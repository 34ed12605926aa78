package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"DealsIngestor/internal/domain"
)

func TestResolveFollowsRedirectChain(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s/abc":
			http.Redirect(w, r, "/track?id=1", http.StatusMovedPermanently)
		case "/track":
			http.Redirect(w, r, server.URL+"/dp/B0ABCDEFGH", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	res, err := New(Options{}, nil, nil).Resolve(context.Background(), domain.ExtractedURL{Raw: server.URL + "/s/abc"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Final != server.URL+"/dp/B0ABCDEFGH" || res.Hops != 2 || !res.Resolved {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolveFallsBackToGETWhenHEADRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/short" {
			http.Redirect(w, r, "/product", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	res, err := New(Options{}, nil, nil).Resolve(context.Background(), domain.ExtractedURL{Raw: server.URL + "/short"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasSuffix(res.Final, "/product") {
		t.Fatalf("final = %s", res.Final)
	}
}

func TestResolveEnforcesHopLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
		http.Redirect(w, r, "/"+strconv.Itoa(n+1), http.StatusFound)
	}))
	defer server.Close()

	_, err := New(Options{MaxHops: 3}, nil, nil).Resolve(context.Background(), domain.ExtractedURL{Raw: server.URL + "/0"})
	var rerr *domain.ResolutionError
	if !errors.As(err, &rerr) || !errors.Is(err, errTooManyHops) {
		t.Fatalf("expected hop limit error, got %v", err)
	}
}

func TestResolveDetectsLoops(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a" {
			http.Redirect(w, r, "/b", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/a", http.StatusFound)
	}))
	defer server.Close()

	_, err := New(Options{}, nil, nil).Resolve(context.Background(), domain.ExtractedURL{Raw: server.URL + "/a"})
	if !errors.Is(err, errRedirectLoop) {
		t.Fatalf("expected loop error, got %v", err)
	}
}

func TestResolveTimesOut(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	_, err := New(Options{Timeout: 20 * time.Millisecond}, nil, nil).Resolve(context.Background(), domain.ExtractedURL{Raw: server.URL})
	if domain.StageOf(err) != domain.StageResolve {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestResolveRecordsShortenerDomain(t *testing.T) {
	t.Parallel()

	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		if r.URL.Host == "amzn.to" {
			rec.Header().Set("Location", "https://www.amazon.in/dp/B0ABCDEFGH?tag=x")
			rec.WriteHeader(http.StatusMovedPermanently)
		} else {
			rec.WriteHeader(http.StatusOK)
		}
		resp := rec.Result()
		resp.Request = r
		return resp, nil
	})

	res, err := New(Options{Transport: transport}, nil, nil).Resolve(context.Background(), domain.ExtractedURL{Raw: "https://amzn.to/abc"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ShortenerDomain != "amzn.to" || res.Host() != "amazon.in" || res.Hops != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}
