package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"routeconv/internal/config"
	"routeconv/internal/series"
)

var (
	// ErrFetchTimeout matches fetches that exceeded the per-call timeout.
	ErrFetchTimeout = errors.New("fetch timeout")
	// ErrFetchTransport matches connection, RPC and process failures.
	ErrFetchTransport = errors.New("fetch transport failure")
	// ErrFetchDecode matches responses that could not be decoded into route counts.
	ErrFetchDecode = errors.New("fetch decode failure")
)

// ErrorKind classifies one failed fetch.
type ErrorKind uint8

const (
	// KindTimeout means the call did not finish within the fetch timeout.
	KindTimeout ErrorKind = iota + 1
	// KindTransport means the device could not be reached or rejected the call.
	KindTransport
	// KindDecode means the response shape was not understood.
	KindDecode
)

// String returns lower-case kind name.
// Params: none.
// Returns: kind label.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is the only error type returned by Source.Fetch.
// Params: failure kind, device id and wrapped cause.
// Returns: error matching one of ErrFetchTimeout/ErrFetchTransport/ErrFetchDecode.
type FetchError struct {
	Kind   ErrorKind
	Device string
	Err    error
}

// Error formats fetch failure.
// Params: none.
// Returns: error text.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Device, e.Kind, e.Err)
}

// Unwrap exposes the cause.
// Params: none.
// Returns: wrapped error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is maps the kind onto package sentinels.
// Params: target error compared by errors.Is.
// Returns: true when target is the sentinel of this kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrFetchTimeout:
		return e.Kind == KindTimeout
	case ErrFetchTransport:
		return e.Kind == KindTransport
	case ErrFetchDecode:
		return e.Kind == KindDecode
	default:
		return false
	}
}

// Source fetches one route-count reading from one device.
// Params: implementations are safe for concurrent Fetch calls on different devices.
// Returns: typed reading or *FetchError.
type Source interface {
	Name() string
	Fetch(ctx context.Context, device string) (series.Reading, error)
	Close() error
}

// Query describes what every fetch asks the device for.
// Params: protocol, network instance and ordered family list.
// Returns: request parameters shared by all sources.
type Query struct {
	Protocol        string
	NetworkInstance string
	Families        []string
}

// Path returns the device path for the queried protocol.
// Params: none.
// Returns: afi-safi container path.
func (q Query) Path() string {
	return AFISAFIPath(q.Protocol, q.NetworkInstance)
}

// AFISAFIPath builds the afi-safi container path for protocol in network instance.
// Params: protocol lower-case protocol name; networkInstance instance name.
// Returns: path like /network-instance[name=default]/protocols/bgp/afi-safi.
func AFISAFIPath(protocol, networkInstance string) string {
	return fmt.Sprintf("/network-instance[name=%s]/protocols/%s/afi-safi", networkInstance, protocol)
}

// New builds the metric source selected by cfg.Kind.
// Params: cfg validated source config; query protocol/family selection.
// Returns: source or error for unsupported kind/protocol.
func New(cfg config.SourceConfig, query Query) (Source, error) {
	if query.Protocol != "bgp" {
		return nil, fmt.Errorf("protocol %q not implemented", query.Protocol)
	}
	if len(query.Families) == 0 {
		return nil, fmt.Errorf("query requires at least one family")
	}

	switch cfg.Kind {
	case config.SourceGNMI:
		return NewGNMISource(cfg, query), nil
	case config.SourceGNMIC:
		return NewGNMICSource(cfg, query), nil
	case config.SourceJSONRPC:
		return NewJSONRPCSource(cfg, query), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// deviceAddress appends port unless device already carries one.
// Params: device host, IP or host:port; port default port.
// Returns: host:port address.
func deviceAddress(device string, port int) string {
	device = strings.TrimSpace(device)
	if _, _, err := net.SplitHostPort(device); err == nil {
		return device
	}
	return net.JoinHostPort(device, strconv.Itoa(port))
}

// classify wraps err into FetchError with a kind derived from ctx and gRPC status.
// Params: ctx fetch context; device id; err cause.
// Returns: *FetchError with timeout or transport kind.
func classify(ctx context.Context, device string, err error) error {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}

	kind := KindTransport
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		status.Code(err) == codes.DeadlineExceeded:
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, Device: device, Err: err}
}

// decodeError wraps err as a decode failure.
// Params: device id; err cause.
// Returns: *FetchError with decode kind.
func decodeError(device string, err error) error {
	return &FetchError{Kind: KindDecode, Device: device, Err: err}
}
