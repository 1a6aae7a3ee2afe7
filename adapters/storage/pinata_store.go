package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/ports"
)

var _ ports.BlobStore = (*PinataStore)(nil)

const (
	DefaultPinataAPIURL    = "https://api.pinata.cloud"
	DefaultPinataUploadURL = "https://uploads.pinata.cloud"
)

// PinataStore talks to the Pinata pinning service over its HTTP API
type PinataStore struct {
	jwt        string
	gateway    string
	apiURL     string
	uploadURL  string
	httpClient *http.Client
	now        func() time.Time
}

// PinataOption configures a PinataStore
type PinataOption func(*PinataStore)

// WithPinataEndpoints overrides the API hosts, used against test servers
func WithPinataEndpoints(apiURL, uploadURL string) PinataOption {
	return func(s *PinataStore) {
		s.apiURL = strings.TrimRight(apiURL, "/")
		s.uploadURL = strings.TrimRight(uploadURL, "/")
	}
}

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) PinataOption {
	return func(s *PinataStore) {
		s.httpClient = c
	}
}

// NewPinataStore creates a store authenticated with a Pinata JWT
func NewPinataStore(jwt, gateway string, opts ...PinataOption) *PinataStore {
	s := &PinataStore{
		jwt:        jwt,
		gateway:    strings.TrimRight(gateway, "/"),
		apiURL:     DefaultPinataAPIURL,
		uploadURL:  DefaultPinataUploadURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type signRequest struct {
	Date     int64  `json:"date"`
	Expires  int64  `json:"expires"`
	Filename string `json:"filename"`
	Network  string `json:"network"`
}

type signResponse struct {
	Data string `json:"data"`
}

// CreateSignedUploadURL asks Pinata for a direct-upload URL
func (s *PinataStore) CreateSignedUploadURL(ctx context.Context, fileName string, ttl time.Duration) (string, error) {
	var resp signResponse
	err := s.post(ctx, s.uploadURL+"/v3/files/sign", signRequest{
		Date:     s.now().Unix(),
		Expires:  int64(ttl / time.Second),
		Filename: fileName,
		Network:  "public",
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data == "" {
		return "", fmt.Errorf("%w: empty signed url", core.ErrUpstreamStorage)
	}

	return resp.Data, nil
}

type pinJSONRequest struct {
	PinataContent  any               `json:"pinataContent"`
	PinataMetadata map[string]string `json:"pinataMetadata"`
}

type pinJSONResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// UploadJSON pins a JSON document publicly
func (s *PinataStore) UploadJSON(ctx context.Context, name string, document any) (string, error) {
	var resp pinJSONResponse
	err := s.post(ctx, s.apiURL+"/pinning/pinJSONToIPFS", pinJSONRequest{
		PinataContent:  document,
		PinataMetadata: map[string]string{"name": name},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.IpfsHash == "" {
		return "", fmt.Errorf("%w: empty cid", core.ErrUpstreamStorage)
	}

	return resp.IpfsHash, nil
}

// GatewayURL returns the public gateway URL of cid
func (s *PinataStore) GatewayURL(cid string) string {
	if s.gateway == "" {
		return "https://ipfs.io/ipfs/" + cid
	}
	if strings.HasPrefix(s.gateway, "http://") || strings.HasPrefix(s.gateway, "https://") {
		return s.gateway + "/ipfs/" + cid
	}
	return "https://" + s.gateway + "/ipfs/" + cid
}

func (s *PinataStore) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", core.ErrUpstreamStorage, url, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", core.ErrUpstreamStorage, err)
	}

	return nil
}
