package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"clipscope/internal/metrics"
	"clipscope/internal/model"
)

const (
	// DefaultGateway serves ipfs:// URIs.
	DefaultGateway  = "https://ipfs.io/ipfs/"
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 1 << 20

	keyImage     = "image"
	keyAnimation = "animation_url"

	ipfsScheme = "ipfs://"
	dataScheme = "data:"
)

// Resolver turns a metadata URI into metadata. A false result means the
// metadata is absent; the reason is never reported to the caller.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (model.ResolvedMetadata, bool)
}

// ResolverConfig configures HTTPResolver.
type ResolverConfig struct {
	Gateway  string
	Timeout  time.Duration
	MaxBytes int64
}

// HTTPResolver fetches metadata documents with plain HTTP GET requests.
type HTTPResolver struct {
	cfg    ResolverConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPResolver builds an HTTPResolver. A nil client uses http.DefaultClient.
func NewHTTPResolver(cfg ResolverConfig, client *http.Client, logger *zap.Logger) *HTTPResolver {
	if cfg.Gateway == "" {
		cfg.Gateway = DefaultGateway
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPResolver{cfg: cfg, client: client, logger: logger}
}

// Resolve fetches and parses uri. Every failure yields false.
func (r *HTTPResolver) Resolve(ctx context.Context, uri string) (model.ResolvedMetadata, bool) {
	meta, err := r.Fetch(ctx, uri)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			metrics.ObserveResolution(metrics.OutcomeParseError)
		} else {
			metrics.ObserveResolution(metrics.OutcomeFetchError)
		}
		r.logger.Warn("metadata unavailable", zap.String("uri", uri), zap.Error(err))
		return model.ResolvedMetadata{}, false
	}

	metrics.ObserveResolution(metrics.OutcomeOK)
	return meta, true
}

// Fetch performs the request and returns a *FetchError or *ParseError on failure.
// data: URIs are decoded inline without a request.
func (r *HTTPResolver) Fetch(ctx context.Context, uri string) (model.ResolvedMetadata, error) {
	if strings.HasPrefix(strings.TrimSpace(uri), dataScheme) {
		return r.fetchData(uri)
	}

	target, err := GatewayURL(uri, r.cfg.Gateway)
	if err != nil {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, r.cfg.MaxBytes)); err != nil {
			r.logger.Debug("drain metadata response", zap.String("uri", uri), zap.Error(err))
		}
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes+1))
	if err != nil {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: err}
	}
	if int64(len(body)) > r.cfg.MaxBytes {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: fmt.Errorf("body exceeds %d bytes", r.cfg.MaxBytes)}
	}

	meta, err := ParseDocument(body)
	if err != nil {
		return model.ResolvedMetadata{}, &ParseError{URI: uri, Err: err}
	}
	return meta, nil
}

func (r *HTTPResolver) fetchData(uri string) (model.ResolvedMetadata, error) {
	body, err := DecodeDataURI(uri)
	if err != nil {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: err}
	}
	if int64(len(body)) > r.cfg.MaxBytes {
		return model.ResolvedMetadata{}, &FetchError{URI: uri, Err: fmt.Errorf("body exceeds %d bytes", r.cfg.MaxBytes)}
	}

	meta, err := ParseDocument(body)
	if err != nil {
		return model.ResolvedMetadata{}, &ParseError{URI: uri, Err: err}
	}
	return meta, nil
}

// DecodeDataURI returns the payload of a data: URI
// ("data:[<mediatype>][;base64],<data>").
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), dataScheme)
	if !ok {
		return nil, fmt.Errorf("not a data uri")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data uri has no payload separator")
	}

	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		body, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			body, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return body, nil
	}

	body, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("unescape payload: %w", err)
	}
	return []byte(body), nil
}

// ParseDocument parses a metadata JSON object. "image" and "animation_url"
// are read when they are strings; every other key lands in Extra.
func ParseDocument(body []byte) (model.ResolvedMetadata, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.ResolvedMetadata{}, err
	}
	if doc == nil {
		return model.ResolvedMetadata{}, fmt.Errorf("document is not an object")
	}

	var meta model.ResolvedMetadata
	meta.ImageURI, _ = doc[keyImage].(string)
	meta.AnimationURI, _ = doc[keyAnimation].(string)

	for key, value := range doc {
		if key == keyImage || key == keyAnimation {
			continue
		}
		if meta.Extra == nil {
			meta.Extra = make(map[string]interface{}, len(doc))
		}
		meta.Extra[key] = value
	}
	return meta, nil
}

// GatewayURL maps uri to an HTTP(S) URL, rewriting ipfs:// through gateway.
func GatewayURL(uri, gateway string) (string, error) {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, ipfsScheme); ok {
		rest = strings.TrimPrefix(rest, "ipfs/")
		if rest == "" {
			return "", fmt.Errorf("empty ipfs path")
		}
		return strings.TrimSuffix(gateway, "/") + "/" + rest, nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http", "https":
		return uri, nil
	default:
		return "", fmt.Errorf("unsupported uri scheme %q", parsed.Scheme)
	}
}
