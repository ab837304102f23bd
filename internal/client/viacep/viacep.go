// Package viacep looks up Brazilian postal codes on the ViaCEP service.
package viacep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/pkg/httpclient"
)

// DefaultBaseURL is the public ViaCEP endpoint.
const DefaultBaseURL = "https://viacep.com.br"

// ErrNotFound is returned when ViaCEP has no address for the code.
var ErrNotFound = errors.New("postal code not found")

const upstreamName = "viacep"

var _ json.Unmarshaler = (*flag)(nil)

// flag decodes ViaCEP's "erro" marker, sent as true or as "true".
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	*f = flag(string(b) == "true")
	return nil
}

type response struct {
	CEP        string `json:"cep"`
	Street     string `json:"logradouro"`
	Complement string `json:"complemento"`
	District   string `json:"bairro"`
	City       string `json:"localidade"`
	State      string `json:"uf"`
	Erro       flag   `json:"erro"`
}

// Client queries ViaCEP.
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

// Lookup resolves an 8-digit code to street, neighborhood, city and state.
// Number and complement are left empty.
func (c *Client) Lookup(ctx context.Context, cep string) (domain.Address, error) {
	var resp response
	url := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, cep)
	if err := httpclient.GetJSON(ctx, c.doer, url, upstreamName, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusBadRequest {
			return domain.Address{}, ErrNotFound
		}
		return domain.Address{}, err
	}
	if resp.Erro {
		return domain.Address{}, ErrNotFound
	}
	return domain.Address{
		PostalCode:   cep,
		Street:       resp.Street,
		Neighborhood: resp.District,
		City:         resp.City,
		State:        resp.State,
	}, nil
}
