package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"routeconv/internal/config"
	"routeconv/internal/series"
)

const (
	maxGNMICOutput = 4 << 20
	maxGNMICStderr = 8 * 1024
)

// cappedBuffer keeps at most max bytes and drops the rest.
type cappedBuffer struct {
	buffer bytes.Buffer
	max    int
}

// Write appends data up to configured cap and silently drops the rest.
// Params: payload chunk bytes.
// Returns: consumed input size to keep writer contract for command pipes.
func (b *cappedBuffer) Write(payload []byte) (int, error) {
	consumed := len(payload)
	remaining := b.max - b.buffer.Len()
	if remaining <= 0 {
		return consumed, nil
	}
	if len(payload) > remaining {
		payload = payload[:remaining]
	}
	_, _ = b.buffer.Write(payload)
	return consumed, nil
}

// gnmicResponse is one element of `gnmic get --format json` output.
type gnmicResponse struct {
	Source  string `json:"source"`
	Updates []struct {
		Path   string                     `json:"Path"`
		Values map[string]json.RawMessage `json:"values"`
	} `json:"updates"`
}

// GNMICSource fetches afi-safi state by running the gnmic CLI.
// Params: gnmic binary path, credentials and TLS flags.
// Returns: Source implementation.
type GNMICSource struct {
	cfg   config.SourceConfig
	query Query
}

// NewGNMICSource creates a gnmic-backed source.
// Params: cfg source config; query protocol/family selection.
// Returns: source.
func NewGNMICSource(cfg config.SourceConfig, query Query) *GNMICSource {
	return &GNMICSource{cfg: cfg, query: query}
}

// Name returns source kind.
// Params: none.
// Returns: "gnmic".
func (s *GNMICSource) Name() string {
	return config.SourceGNMIC
}

// Close is a no-op; every fetch runs its own process.
// Params: none.
// Returns: nil.
func (s *GNMICSource) Close() error {
	return nil
}

// Fetch runs `gnmic get` once and decodes its JSON output.
// Params: ctx carries the fetch timeout and kills the process on expiry; device host or host:port.
// Returns: reading or *FetchError.
func (s *GNMICSource) Fetch(ctx context.Context, device string) (series.Reading, error) {
	command := exec.CommandContext(ctx, s.cfg.GNMICPath, s.args(device)...)

	stdout := &cappedBuffer{max: maxGNMICOutput}
	stderr := &cappedBuffer{max: maxGNMICStderr}
	command.Stdout = stdout
	command.Stderr = stderr
	command.WaitDelay = time.Second

	if err := command.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &FetchError{Kind: KindTimeout, Device: device, Err: fmt.Errorf("gnmic: %w", ctx.Err())}
		}
		stderrText := strings.TrimSpace(stderr.buffer.String())
		if stderrText != "" {
			err = fmt.Errorf("%w (stderr: %s)", err, stderrText)
		}
		return nil, classify(ctx, device, fmt.Errorf("run gnmic: %w", err))
	}

	reading, err := decodeGNMICOutput(s.query.Families, stdout.buffer.Bytes())
	if err != nil {
		return nil, decodeError(device, err)
	}
	return reading, nil
}

// args builds gnmic command line for device.
// Params: device host or host:port.
// Returns: argument list.
func (s *GNMICSource) args(device string) []string {
	args := []string{"-a", deviceAddress(device, s.cfg.Port)}
	switch {
	case s.cfg.Insecure:
		args = append(args, "--insecure")
	case s.cfg.SkipVerify:
		args = append(args, "--skip-verify")
	}
	if s.cfg.Username != "" {
		args = append(args, "-u", s.cfg.Username, "-p", s.cfg.Password)
	}
	return append(args,
		"--encoding", "json_ietf",
		"get",
		"--type", "state",
		"--path", s.query.Path(),
		"--format", "json",
	)
}

// decodeGNMICOutput folds every update value of gnmic output into one reading.
// Params: families configured family names; payload gnmic stdout.
// Returns: reading or decode error.
func decodeGNMICOutput(families []string, payload []byte) (series.Reading, error) {
	var responses []gnmicResponse
	if err := json.Unmarshal(payload, &responses); err != nil {
		return nil, fmt.Errorf("decode gnmic output: %w", err)
	}

	decoder := newAFISAFIDecoder(families)
	for _, response := range responses {
		for _, update := range response.Updates {
			for path, value := range update.Values {
				if err := decoder.add(value, update.Path+"/"+path); err != nil {
					return nil, err
				}
			}
		}
	}
	return decoder.result()
}
