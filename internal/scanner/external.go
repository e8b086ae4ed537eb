package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-file-quarantine/internal/verifier"
)

// ExternalAPIStrategy asks a third-party scanning API for a verdict.
//
// Content already known to the API by hash is not uploaded again.
type ExternalAPIStrategy struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewExternalAPIStrategy constructs the API client, or returns nil when no endpoint is configured.
func NewExternalAPIStrategy(settings ExternalSettings) *ExternalAPIStrategy {
	if !settings.Configured() {
		return nil
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ExternalAPIStrategy{
		baseURL: strings.TrimRight(settings.BaseURL, "/"),
		apiKey:  settings.APIKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Type returns TypeExternalAPI.
func (*ExternalAPIStrategy) Type() Type { return TypeExternalAPI }

// apiVerdict is the response body of both the hash lookup and the scan submission.
type apiVerdict struct {
	Found     *bool    `json:"found,omitempty"`
	Malicious bool     `json:"malicious"`
	Threat    string   `json:"threat,omitempty"`
	Threats   []string `json:"threats,omitempty"`
}

// Scan looks the content up by hash and submits it when the API has not seen it.
func (s *ExternalAPIStrategy) Scan(ctx context.Context, content []byte) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hash := verifier.SHA256Hex(content)
	verdict, err := s.lookup(ctx, hash)
	if err != nil {
		return errorOutcome(TypeExternalAPI, err)
	}
	if verdict == nil {
		if verdict, err = s.submit(ctx, hash, content); err != nil {
			return errorOutcome(TypeExternalAPI, err)
		}
	}

	return verdict.outcome()
}

// lookup returns nil when the API does not know hash.
func (s *ExternalAPIStrategy) lookup(ctx context.Context, hash string) (*apiVerdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/hash/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build hash lookup request")
	}
	resp, err := s.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call hash lookup")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	verdict, err := decodeVerdict(resp, "hash lookup")
	if err != nil {
		return nil, err
	}
	if verdict.Found != nil && !*verdict.Found {
		return nil, nil
	}
	return verdict, nil
}

// submit uploads content as multipart form field "file".
func (s *ExternalAPIStrategy) submit(ctx context.Context, hash string, content []byte) (*apiVerdict, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", hash)
	if err != nil {
		return nil, errors.Wrap(err, "create multipart file")
	}
	if _, err = part.Write(content); err != nil {
		return nil, errors.Wrap(err, "write multipart file")
	}
	if err = writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/scan", &body)
	if err != nil {
		return nil, errors.Wrap(err, "build scan request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call scan endpoint")
	}
	defer resp.Body.Close() //nolint:errcheck

	return decodeVerdict(resp, "scan")
}

func (s *ExternalAPIStrategy) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	return s.client.Do(req)
}

// maxVerdictBytes bounds a verdict body read from the scanning API.
const maxVerdictBytes = 1 << 20

// decodeVerdict rejects non-2xx responses and parses the verdict body.
func decodeVerdict(resp *http.Response, op string) (*apiVerdict, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("%s endpoint status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	verdict := new(apiVerdict)
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerdictBytes)).Decode(verdict); err != nil {
		return nil, errors.Wrapf(err, "decode %s response", op)
	}
	return verdict, nil
}

func (v *apiVerdict) outcome() Outcome {
	threats := make([]string, 0, len(v.Threats)+1)
	if v.Threat != "" {
		threats = append(threats, v.Threat)
	}
	for _, t := range v.Threats {
		if t != "" && t != v.Threat {
			threats = append(threats, t)
		}
	}
	if v.Malicious && len(threats) == 0 {
		threats = append(threats, UnknownThreatName)
	}
	return threatOutcome(TypeExternalAPI, threats)
}
