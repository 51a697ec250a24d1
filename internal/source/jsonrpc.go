package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/goccy/go-json"

	"routeconv/internal/config"
	"routeconv/internal/series"
)

const maxJSONRPCBody = 4 << 20

type jsonRPCCommand struct {
	Path      string `json:"path"`
	Datastore string `json:"datastore"`
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Commands []jsonRPCCommand `json:"commands"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	ID     uint64            `json:"id"`
	Result []json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// JSONRPCSource fetches afi-safi state through the SR Linux JSON-RPC `get` method.
// Params: credentials, port and TLS selection.
// Returns: Source implementation.
type JSONRPCSource struct {
	cfg    config.SourceConfig
	query  Query
	client *http.Client
	nextID atomic.Uint64
}

// NewJSONRPCSource creates a JSON-RPC source.
// Params: cfg source config; query protocol/family selection.
// Returns: source with its own HTTP client.
func NewJSONRPCSource(cfg config.SourceConfig, query Query) *JSONRPCSource {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.SkipVerify} //nolint:gosec

	return &JSONRPCSource{
		cfg:    cfg,
		query:  query,
		client: &http.Client{Transport: transport},
	}
}

// Name returns source kind.
// Params: none.
// Returns: "jsonrpc".
func (s *JSONRPCSource) Name() string {
	return config.SourceJSONRPC
}

// Close releases idle HTTP connections.
// Params: none.
// Returns: nil.
func (s *JSONRPCSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Fetch posts one `get` request for the afi-safi state path.
// Params: ctx carries the fetch timeout; device host or host:port.
// Returns: reading or *FetchError.
func (s *JSONRPCSource) Fetch(ctx context.Context, device string) (series.Reading, error) {
	request := jsonRPCRequest{JSONRPC: "2.0", ID: s.nextID.Add(1), Method: "get"}
	request.Params.Commands = []jsonRPCCommand{{Path: s.query.Path(), Datastore: "state"}}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Device: device, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(device), bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Device: device, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.Username != "" {
		httpReq.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, device, fmt.Errorf("post jsonrpc: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONRPCBody))
	if err != nil {
		return nil, classify(ctx, device, fmt.Errorf("read jsonrpc body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: KindTransport, Device: device, Err: fmt.Errorf("jsonrpc status %d", resp.StatusCode)}
	}

	var decoded jsonRPCResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, decodeError(device, fmt.Errorf("decode jsonrpc response: %w", err))
	}
	if decoded.Error != nil {
		return nil, &FetchError{
			Kind:   KindTransport,
			Device: device,
			Err:    fmt.Errorf("jsonrpc error %d: %s", decoded.Error.Code, decoded.Error.Message),
		}
	}
	if len(decoded.Result) == 0 {
		return nil, decodeError(device, errNoAFISAFI)
	}

	reading, err := DecodeAFISAFI(s.query.Families, decoded.Result[0])
	if err != nil {
		return nil, decodeError(device, err)
	}
	return reading, nil
}

// endpoint builds the JSON-RPC URL of device.
// Params: device host or host:port.
// Returns: http(s)://host:port/jsonrpc.
func (s *JSONRPCSource) endpoint(device string) string {
	scheme := "http"
	if s.cfg.TLS {
		scheme = "https"
	}
	return scheme + "://" + deviceAddress(device, s.cfg.Port) + "/jsonrpc"
}
