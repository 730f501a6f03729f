package languages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRuntimesURL is the public runtime catalog of the execution backend.
	DefaultRuntimesURL    = "https://emkc.org/api/v2/piston/runtimes"
	defaultCatalogTimeout = 15 * time.Second
	catalogErrorBodyLimit = 8 * 1024
)

var (
	// ErrCatalogNotConfigured is returned when Load is called without a catalog client.
	ErrCatalogNotConfigured = errors.New("runtime catalog not configured")

	// ErrCatalogUnavailable indicates that the catalog answered with a non-200 status.
	ErrCatalogUnavailable = errors.New("runtime catalog unavailable")
)

type httpClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// CatalogClient lists the runtimes supported by the execution backend.
type CatalogClient interface {
	Runtimes(ctx context.Context) ([]Runtime, error)
}

// HTTPCatalog fetches the runtime catalog over HTTP.
type HTTPCatalog struct {
	client   httpClient
	endpoint string
}

// NewHTTPCatalog builds a catalog client for endpoint. A nil client gets a default http.Client.
func NewHTTPCatalog(endpoint string, client httpClient) HTTPCatalog {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultRuntimesURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultCatalogTimeout}
	}
	return HTTPCatalog{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
	}
}

// Endpoint reports the configured catalog URL.
func (catalog HTTPCatalog) Endpoint() string {
	return catalog.endpoint
}

// Runtimes performs GET on the catalog endpoint and decodes the record list.
func (catalog HTTPCatalog) Runtimes(ctx context.Context) ([]Runtime, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, catalog.endpoint, nil)
	if requestErr != nil {
		return nil, fmt.Errorf("build runtime catalog request: %w", requestErr)
	}
	request.Header.Set("Accept", "application/json")
	response, responseErr := catalog.client.Do(request)
	if responseErr != nil {
		return nil, fmt.Errorf("fetch runtime catalog: %w", responseErr)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, catalogErrorBodyLimit))
		return nil, fmt.Errorf("%w: status %d: %s", ErrCatalogUnavailable, response.StatusCode, strings.TrimSpace(string(body)))
	}
	var runtimes []Runtime
	if decodeErr := json.NewDecoder(response.Body).Decode(&runtimes); decodeErr != nil {
		return nil, fmt.Errorf("decode runtime catalog: %w", decodeErr)
	}
	return runtimes, nil
}

var _ CatalogClient = HTTPCatalog{}
