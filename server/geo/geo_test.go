// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivate(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"", true},
		{"not-an-ip", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"10.1.2.3", true},
		{"192.168.0.42", true},
		{"172.16.5.5", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"fd00::1", true},
		{" 203.0.113.5 ", false},
		{"203.0.113.5", false},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.private, Private(tt.ip), "ip %q", tt.ip)
	}
}

func TestClientAddr(t *testing.T) {
	req := func(remoteAddr string, headers map[string]string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remoteAddr
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		return r
	}

	t.Run("forwarded header wins", func(t *testing.T) {
		r := req("10.0.0.1:443", map[string]string{"X-Forwarded-For": "203.0.113.5"})
		assert.Equal(t, "203.0.113.5", ClientAddr(r))
	})

	t.Run("first value of the chain", func(t *testing.T) {
		r := req("10.0.0.1:443", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2, 10.0.0.3"})
		assert.Equal(t, "203.0.113.5", ClientAddr(r))
	})

	t.Run("header priority", func(t *testing.T) {
		r := req("10.0.0.1:443", map[string]string{
			"X-Real-IP":        "198.51.100.7",
			"CF-Connecting-IP": "203.0.113.5",
		})
		assert.Equal(t, "198.51.100.7", ClientAddr(r))
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		r := req("203.0.113.5:51234", nil)
		assert.Equal(t, "203.0.113.5", ClientAddr(r))
	})

	t.Run("portless remote addr", func(t *testing.T) {
		r := req("203.0.113.5", nil)
		assert.Equal(t, "203.0.113.5", ClientAddr(r))
	})
}

func TestHTTPResolverSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"success","country":"Estonia","countryCode":"EE","city":"Tallinn","regionName":"Harjumaa"}`))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, time.Second)
	loc, err := resolver.Resolve(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, "/203.0.113.5", gotPath)
	assert.Equal(t, Location{Country: "Estonia", CountryCode: "EE", City: "Tallinn", Region: "Harjumaa"}, loc)
}

func TestHTTPResolverLookupFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, time.Second)
	loc, err := resolver.Resolve(context.Background(), "203.0.113.5")
	assert.Error(t, err)
	assert.Equal(t, Unknown, loc)
}

func TestHTTPResolverBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, time.Second)
	loc, err := resolver.Resolve(context.Background(), "203.0.113.5")
	assert.Error(t, err)
	assert.Equal(t, Unknown, loc)
}

func TestHTTPResolverTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, 20*time.Millisecond)
	loc, err := resolver.Resolve(context.Background(), "203.0.113.5")
	assert.Error(t, err)
	assert.Equal(t, Unknown, loc)
}
