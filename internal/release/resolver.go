package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrInvalidTagFormat indicates a tag that does not match v<major>.<minor>.<patch>.
	ErrInvalidTagFormat = errors.New("invalid tag format")
	// ErrMissingTagName indicates release metadata without a usable tag_name field.
	ErrMissingTagName = errors.New("release metadata has no tag_name")
	// errBadHTTPStatus is returned for non-OK responses from the metadata endpoint.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// tagPattern is the only accepted release tag shape.
var tagPattern = regexp.MustCompile(`^v\d+\.\d+\.\d+$`)

// Release is a validated (tag, version) pair. Version is the tag without the
// leading "v".
type Release struct {
	Tag     string
	Version string
}

// Overrides carries explicit resolution inputs. When Tag is set it is used
// verbatim; otherwise a set Version synthesizes the tag; otherwise the
// mirror's latest-release metadata endpoint is queried.
type Overrides struct {
	Tag     string
	Version string
}

// HTTPClient is the capability the resolver needs from an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver determines the release to install.
type Resolver struct {
	client    HTTPClient
	apiBase   string
	repo      string
	userAgent string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient overrides the HTTP client used for metadata queries.
func WithHTTPClient(client HTTPClient) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithTimeout bounds the metadata query when the default client is in use.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if client, ok := r.client.(*http.Client); ok && timeout > 0 {
			client.Timeout = timeout
		}
	}
}

// NewResolver creates a Resolver for the given metadata API base URL and
// "owner/repo" release repository.
func NewResolver(apiBase, repo, userAgent string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:    &http.Client{Timeout: 30 * time.Second},
		apiBase:   strings.TrimSuffix(apiBase, "/"),
		repo:      repo,
		userAgent: userAgent,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve produces a validated release, consulting overrides first and the
// latest-release metadata endpoint last. Every failure is terminal.
func (r *Resolver) Resolve(ctx context.Context, overrides Overrides) (Release, error) {
	tag := strings.TrimSpace(overrides.Tag)

	switch {
	case tag != "":
		// Use verbatim.
	case strings.TrimSpace(overrides.Version) != "":
		tag = "v" + strings.TrimSpace(overrides.Version)
	default:
		latest, err := r.latestTag(ctx)
		if err != nil {
			return Release{}, fmt.Errorf("resolve latest release: %w", err)
		}

		tag = latest
	}

	return Validate(tag)
}

// Validate checks the tag shape and derives the version from it.
func Validate(tag string) (Release, error) {
	if !tagPattern.MatchString(tag) {
		return Release{}, fmt.Errorf("%w: %q", ErrInvalidTagFormat, tag)
	}

	return Release{
		Tag:     tag,
		Version: strings.TrimPrefix(tag, "v"),
	}, nil
}

// latestMetadata is the subset of the release metadata document we consume.
type latestMetadata struct {
	TagName string `json:"tag_name"`
}

// latestTag queries the mirror's latest-release endpoint and extracts tag_name.
func (r *Resolver) latestTag(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", r.apiBase, r.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s, %s: %w", endpoint, resp.Status, errBadHTTPStatus)
	}

	var meta latestMetadata
	if err = json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode release metadata: %w", err)
	}

	if strings.TrimSpace(meta.TagName) == "" {
		return "", ErrMissingTagName
	}

	return strings.TrimSpace(meta.TagName), nil
}
