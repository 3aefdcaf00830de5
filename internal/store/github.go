package store

import (
	"bytes"
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

	logx "maptap/pkg/logx"
)

// githubStore keeps each document as a file in a GitHub repository,
// using the contents API. The blob sha doubles as the version token,
// which gives conditional writes for free: a PUT carrying a stale sha
// is rejected by GitHub.
type githubStore struct {
	log     logx.Logger
	http    *http.Client
	baseURL string
	repo    string
	token   string
	timeout time.Duration
}

func openGitHub(cfg Config, log logx.Logger) (Store, error) {
	repo := strings.TrimSpace(cfg.Repo)
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, errors.New(`store.repo must be "owner/repo" for the github driver`)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("store.token is required for the github driver")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.github.com"
	}
	return &githubStore{
		log:     log,
		http:    &http.Client{Timeout: cfg.timeout()},
		baseURL: base,
		repo:    repo,
		token:   cfg.Token,
		timeout: cfg.timeout(),
	}, nil
}

func (s *githubStore) contentsURL(path string) string {
	return s.baseURL + "/repos/" + s.repo + "/contents/" + url.PathEscape(path)
}

type ghContent struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type ghPutBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type ghPutResp struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (s *githubStore) Load(ctx context.Context, path string) ([]byte, Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.contentsURL(path), nil)
	if err != nil {
		return nil, "", err
	}
	s.setHeaders(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("github load %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("github load %s: unexpected status %s", path, resp.Status)
	}

	var payload ghContent
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("github load %s: decode: %w", path, err)
	}
	// The API wraps base64 content at 60 columns.
	raw := strings.ReplaceAll(payload.Content, "\n", "")
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("github load %s: content: %w", path, err)
	}
	return data, Version(payload.SHA), nil
}

func (s *githubStore) Save(ctx context.Context, path string, data []byte, ver Version, note string) (Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body := ghPutBody{
		Message: note,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     string(ver),
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(path), bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("github save %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// Stale sha (or create over an existing file).
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", ErrConflict
	default:
		return "", fmt.Errorf("github save %s: unexpected status %s", path, resp.Status)
	}

	var out ghPutResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("github save %s: decode: %w", path, err)
	}
	if out.Content.SHA == "" {
		return ver, nil
	}
	return Version(out.Content.SHA), nil
}

func (s *githubStore) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}

func (s *githubStore) Close() error { return nil }
