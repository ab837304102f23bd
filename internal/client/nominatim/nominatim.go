// Package nominatim reverse-geocodes coordinates with OpenStreetMap Nominatim.
package nominatim

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/acaidelivery/checkout/pkg/httpclient"
)

// DefaultBaseURL is the public Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const upstreamName = "nominatim"

// AddressDetails holds the place components Nominatim may return. Which of
// the city-like fields is set depends on the size of the settlement.
type AddressDetails struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	County       string `json:"county"`
	Suburb       string `json:"suburb"`
	State        string `json:"state"`
}

// EffectiveCity picks the first non-empty of city, town, village,
// municipality, county and suburb.
func (a AddressDetails) EffectiveCity() string {
	for _, v := range []string{a.City, a.Town, a.Village, a.Municipality, a.County, a.Suburb} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Place is a reverse geocoding result.
type Place struct {
	DisplayName string         `json:"display_name"`
	Address     AddressDetails `json:"address"`
}

// Client queries Nominatim. The doer should send an identifying User-Agent,
// which Nominatim's usage policy requires.
type Client struct {
	doer    httpclient.Doer
	baseURL string
}

// New creates a Client. An empty baseURL uses DefaultBaseURL.
func New(doer httpclient.Doer, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Reverse returns the place at the given coordinates, in Portuguese.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")
	q.Set("accept-language", "pt-BR")

	var place Place
	if err := httpclient.GetJSON(ctx, c.doer, c.baseURL+"/reverse?"+q.Encode(), upstreamName, &place); err != nil {
		return nil, err
	}
	return &place, nil
}
