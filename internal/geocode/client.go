// Package geocode fornece o cliente do provedor externo de
// geocodificação de endereços.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

// ErrNotFound indica que o provedor não resolveu o endereço.
var ErrNotFound = errors.New("address not found")

// Client encapsula a comunicação HTTP com o provedor de geocodificação.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// Result é a resposta do provedor para um endereço resolvido.
type Result struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address"`
}

// NewClient cria o cliente de geocodificação para o endereço base
// informado. Requisições transitoriamente falhas são repetidas.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// Resolve consulta o provedor pelo texto de endereço e retorna as
// coordenadas e o endereço formatado, ou ErrNotFound.
func (c *Client) Resolve(ctx context.Context, address string) (*model.Point, string, error) {
	if c == nil || c.baseURL == "" {
		return nil, "", fmt.Errorf("geocode client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	endpoint := fmt.Sprintf("%s/api/geocode?q=%s", base, url.QueryEscape(address))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, "", ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}

	return &model.Point{Lat: result.Lat, Lng: result.Lng}, result.FormattedAddress, nil
}
