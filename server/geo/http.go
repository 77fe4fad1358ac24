// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const DefaultEndpoint = "http://ip-api.com/json"

// DefaultTimeout bounds one lookup. Ingestion must never block on geo.
const DefaultTimeout = 3 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPResolver queries an ip-api style JSON endpoint:
// GET {endpoint}/{ip} -> {"status":"success","country":...,"countryCode":...}.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
}

func NewHTTPResolver(endpoint string, timeout time.Duration) *HTTPResolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (Location, error) {
	url := r.endpoint + "/" + ip + "?fields=status,country,countryCode,city,regionName"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Unknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf("geo: status %d", resp.StatusCode)
	}

	var body struct {
		Status      string `json:"status"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
		City        string `json:"city"`
		RegionName  string `json:"regionName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Unknown, err
	}

	if body.Status != "success" || body.Country == "" {
		return Unknown, errors.New("geo: lookup failed for " + ip)
	}

	return Location{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		City:        body.City,
		Region:      body.RegionName,
	}, nil
}
