// Package client talks to a handshake server: wallet sign-in, catalog reads
// and the client half of the upload flow.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/internal/eth"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status          int
	Message         string
	ExistingModelID string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Message)
}

// Is maps status codes back onto the core error taxonomy
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusBadRequest:
		return target == core.ErrValidation
	case http.StatusUnauthorized:
		return target == core.ErrUnauthenticated
	case http.StatusNotFound:
		return target == core.ErrNotFound
	case http.StatusConflict:
		return target == core.ErrConflict
	}
	return false
}

// Identity is the answer of /auth/me
type Identity struct {
	Authenticated bool   `json:"authenticated"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// UploadedFile is what the storage collaborator returns for a signed upload
type UploadedFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

// ConfirmRequest is the body of POST /models/confirm
type ConfirmRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Description  string   `json:"description,omitempty"`
	ModelFileCID string   `json:"modelFileCid"`
	Size         int64    `json:"size"`
	Hash         string   `json:"hash"`
	Version      string   `json:"version,omitempty"`
	Parents      []string `json:"parents,omitempty"`
}

// API is a thin client over the HTTP endpoints.
// The session cookie lives in the client's cookie jar.
type API struct {
	baseURL *url.URL
	http    *http.Client
}

// NewAPI creates a client for baseURL; a nil httpClient gets a default with a fresh cookie jar
func NewAPI(baseURL string, httpClient *http.Client) (*API, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}

	return &API{baseURL: u, http: httpClient}, nil
}

// Nonce fetches a sign-in challenge
func (a *API) Nonce(ctx context.Context) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := a.call(ctx, http.MethodGet, "/auth/nonce", nil, &out); err != nil {
		return "", err
	}
	return out.Nonce, nil
}

// Verify submits a signed sign-in message and returns the session's wallet
func (a *API) Verify(ctx context.Context, message, signature string) (string, error) {
	var out struct {
		WalletAddress string `json:"walletAddress"`
	}
	body := map[string]string{"message": message, "signature": signature}
	if err := a.call(ctx, http.MethodPost, "/auth/verify", body, &out); err != nil {
		return "", err
	}
	return out.WalletAddress, nil
}

// SignIn runs the full challenge flow with a local key, the way a browser
// wallet would. domain must be the origin the server is configured to accept,
// usually the web app's host; an empty domain falls back to the API host.
func (a *API) SignIn(ctx context.Context, key *ecdsa.PrivateKey, domain string, chainID int64) (string, error) {
	if domain == "" {
		domain = a.baseURL.Host
	}

	nonce, err := a.Nonce(ctx)
	if err != nil {
		return "", err
	}

	msg := &eth.SIWEMessage{
		Domain:    domain,
		Address:   crypto.PubkeyToAddress(key.PublicKey),
		Statement: "Sign in to Handshake",
		URI:       a.baseURL.String(),
		Version:   eth.SIWEVersion,
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  time.Now().UTC(),
	}
	message := msg.String()

	signature, err := eth.SignPersonal([]byte(message), key)
	if err != nil {
		return "", err
	}
	return a.Verify(ctx, message, signature)
}

// Logout ends the session held in the cookie jar
func (a *API) Logout(ctx context.Context) error {
	return a.call(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Me reports whether the client holds a live session
func (a *API) Me(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := a.call(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models lists the catalog; a non-empty owner filters by wallet
func (a *API) Models(ctx context.Context, owner string) ([]core.Model, error) {
	path := "/models"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}

	var out []core.Model
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Model fetches one model by id
func (a *API) Model(ctx context.Context, id string) (*core.Model, error) {
	var out core.Model
	if err := a.call(ctx, http.MethodGet, "/models/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckHash reports whether a content hash is already registered
func (a *API) CheckHash(ctx context.Context, hash string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := a.call(ctx, http.MethodGet, "/models/check/"+url.PathEscape(hash), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// SignedURL asks for a direct-upload URL; requires a session
func (a *API) SignedURL(ctx context.Context, fileName string) (string, error) {
	var out struct {
		SignedURL string `json:"signedUrl"`
	}
	path := "/pinata-auth/signed-url?fileName=" + url.QueryEscape(fileName)
	if err := a.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.SignedURL, nil
}

// UploadFile streams the file at path to a signed upload URL as multipart "file"
func (a *API) UploadFile(ctx context.Context, signedURL, path string) (*UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signedURL, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Data UploadedFile `json:"data"`
	}
	if err := a.send(req, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamStorage, err)
	}
	if out.Data.CID == "" {
		return nil, fmt.Errorf("%w: upload response without cid", core.ErrUpstreamStorage)
	}
	return &out.Data, nil
}

// Confirm registers an uploaded artifact; a duplicate hash yields an *APIError
// matching core.ErrConflict with ExistingModelID set
func (a *API) Confirm(ctx context.Context, in ConfirmRequest) (*core.Model, error) {
	var out core.Model
	if err := a.call(ctx, http.MethodPost, "/models/confirm", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) call(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL.String()+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return a.send(req, out)
}

func (a *API) send(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error           string `json:"error"`
			Message         string `json:"message"`
			ExistingModelID string `json:"existingModelId"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)

		apiErr := &APIError{Status: resp.StatusCode, Message: payload.Error, ExistingModelID: payload.ExistingModelID}
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsConflict extracts the registered model id from a duplicate-hash error
func IsConflict(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return apiErr.ExistingModelID, true
	}
	return "", false
}
