package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"sync"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	gpath "github.com/openconfig/gnmic/pkg/api/path"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"routeconv/internal/config"
	"routeconv/internal/series"
)

// GNMISource fetches afi-safi state with a native gNMI Get call.
// Params: credentials, transport security and one cached connection per device.
// Returns: Source implementation.
type GNMISource struct {
	cfg   config.SourceConfig
	query Query

	dialOptions []grpc.DialOption

	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
}

// NewGNMISource creates a gNMI source.
// Params: cfg source config; query protocol/family selection.
// Returns: source with empty connection cache.
func NewGNMISource(cfg config.SourceConfig, query Query) *GNMISource {
	return &GNMISource{
		cfg:   cfg,
		query: query,
		conns: make(map[string]*grpc.ClientConn),
	}
}

// Name returns source kind.
// Params: none.
// Returns: "gnmi".
func (s *GNMISource) Name() string {
	return config.SourceGNMI
}

// Fetch runs one Get for the afi-safi path and decodes the JSON_IETF payload.
// Params: ctx carries the fetch timeout; device host or host:port.
// Returns: reading or *FetchError.
func (s *GNMISource) Fetch(ctx context.Context, device string) (series.Reading, error) {
	request, err := newGetRequest(s.query.Path())
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Device: device, Err: err}
	}

	conn, err := s.connFor(ctx, device)
	if err != nil {
		return nil, classify(ctx, device, err)
	}

	if s.cfg.Username != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "username", s.cfg.Username, "password", s.cfg.Password)
	}

	response, err := gnmipb.NewGNMIClient(conn).Get(ctx, request)
	if err != nil {
		s.drop(device)
		return nil, classify(ctx, device, fmt.Errorf("gnmi get: %w", err))
	}

	updates, err := responseUpdates(response)
	if err != nil {
		return nil, decodeError(device, err)
	}

	decoder := newAFISAFIDecoder(s.query.Families)
	for _, update := range updates {
		if err := decoder.add(update.value, update.path); err != nil {
			return nil, decodeError(device, err)
		}
	}
	reading, err := decoder.result()
	if err != nil {
		return nil, decodeError(device, err)
	}
	return reading, nil
}

// Close closes all cached connections.
// Params: none.
// Returns: first close error when present.
func (s *GNMISource) Close() error {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*grpc.ClientConn)
	s.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// connFor returns cached connection or dials a new one.
// Params: ctx dial deadline; device host or host:port.
// Returns: client connection or dial error.
func (s *GNMISource) connFor(ctx context.Context, device string) (*grpc.ClientConn, error) {
	s.mu.RLock()
	if conn, ok := s.conns[device]; ok {
		s.mu.RUnlock()
		return conn, nil
	}
	s.mu.RUnlock()

	options := append([]grpc.DialOption{
		grpc.WithTransportCredentials(s.transportCredentials()),
		grpc.WithBlock(),
	}, s.dialOptions...)

	address := deviceAddress(device, s.cfg.Port)
	conn, err := grpc.DialContext(ctx, address, options...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conns[device]; ok {
		_ = conn.Close()
		return existing, nil
	}
	s.conns[device] = conn
	return conn, nil
}

// drop closes and forgets the cached connection of device.
// Params: device id.
// Returns: none.
func (s *GNMISource) drop(device string) {
	s.mu.Lock()
	conn, ok := s.conns[device]
	delete(s.conns, device)
	s.mu.Unlock()

	if ok {
		_ = conn.Close()
	}
}

// transportCredentials selects plaintext or TLS credentials.
// Params: none.
// Returns: gRPC transport credentials.
func (s *GNMISource) transportCredentials() credentials.TransportCredentials {
	if s.cfg.Insecure {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(&tls.Config{InsecureSkipVerify: s.cfg.SkipVerify}) //nolint:gosec
}

// newGetRequest builds a STATE Get for path with JSON_IETF encoding.
// Params: path xpath-like string, e.g. /network-instance[name=default]/protocols/bgp/afi-safi.
// Returns: request or path parse error.
func newGetRequest(path string) (*gnmipb.GetRequest, error) {
	parsed, err := gpath.ParsePath(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	return &gnmipb.GetRequest{
		Path:     []*gnmipb.Path{parsed},
		Type:     gnmipb.GetRequest_STATE,
		Encoding: gnmipb.Encoding_JSON_IETF,
	}, nil
}

// gnmiUpdate is one decoded update value with its textual path.
type gnmiUpdate struct {
	path  string
	value []byte
}

// responseUpdates flattens GetResponse notifications into JSON update values.
// Params: response Get response.
// Returns: updates or error for non-JSON typed values.
func responseUpdates(response *gnmipb.GetResponse) ([]gnmiUpdate, error) {
	var out []gnmiUpdate
	for _, notification := range response.GetNotification() {
		prefix := pathString(notification.GetPrefix())
		for _, update := range notification.GetUpdate() {
			path := prefix + pathString(update.GetPath())
			value, err := typedValueJSON(update.GetVal())
			if err != nil {
				return nil, fmt.Errorf("update %s: %w", path, err)
			}
			out = append(out, gnmiUpdate{path: path, value: value})
		}
	}
	return out, nil
}

// typedValueJSON extracts JSON bytes from a TypedValue.
// Params: typed update value.
// Returns: JSON payload or error for other encodings.
func typedValueJSON(typed *gnmipb.TypedValue) ([]byte, error) {
	switch value := typed.GetValue().(type) {
	case *gnmipb.TypedValue_JsonIetfVal:
		return value.JsonIetfVal, nil
	case *gnmipb.TypedValue_JsonVal:
		return value.JsonVal, nil
	case nil:
		return nil, fmt.Errorf("empty typed value")
	default:
		return nil, fmt.Errorf("unsupported typed value %T", value)
	}
}

// pathString renders a Path as /elem[k=v]/... with sorted keys.
// Params: path gNMI path, may be nil.
// Returns: textual path or empty string.
func pathString(path *gnmipb.Path) string {
	var builder strings.Builder
	for _, elem := range path.GetElem() {
		builder.WriteByte('/')
		builder.WriteString(elem.GetName())

		keys := elem.GetKey()
		names := make([]string, 0, len(keys))
		for name := range keys {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			builder.WriteString("[" + name + "=" + keys[name] + "]")
		}
	}
	return builder.String()
}
