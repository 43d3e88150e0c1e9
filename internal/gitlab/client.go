// Package gitlab implements the GitLab REST API client used by the poller.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	"gitlab_notify/internal/cache"
	"gitlab_notify/internal/config"
	"gitlab_notify/internal/model"
)

// maxConcurrentLookups bounds the avatar lookup fan-out.
const maxConcurrentLookups = 5

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrNotConfigured is returned by single-resource operations when no API
// path is configured. List operations treat the same condition as offline
// mode and return empty results instead.
var ErrNotConfigured = errors.New("gitlab: no API path configured")

// StatusError is a non-200 response from the GitLab API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitlab: unexpected status %d: %s", e.Code, e.Body)
}

var apiVersionRe = regexp.MustCompile(`/api/v([0-9]+)$`)

// Client talks to one GitLab instance. The API version is derived once
// from the configured API path suffix; 0 means no recognizable version.
type Client struct {
	apiPath    string
	gitlabPath string
	token      string
	perPage    int
	apiVersion int
	client     HTTPClient
	avatars    *cache.AvatarCache
}

// New creates a Client from the application configuration.
func New(cfg *config.Config, httpClient HTTPClient, avatars *cache.AvatarCache) *Client {
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	return &Client{
		apiPath:    cfg.APIPath,
		gitlabPath: cfg.GitLabPath,
		token:      cfg.PrivateToken,
		perPage:    perPage,
		apiVersion: parseAPIVersion(cfg.APIPath),
		client:     httpClient,
		avatars:    avatars,
	}
}

func parseAPIVersion(apiPath string) int {
	m := apiVersionRe.FindStringSubmatch(apiPath)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// APIVersion returns the API version derived from the configured path.
func (c *Client) APIVersion() int {
	return c.apiVersion
}

// LoadProjects fetches all projects visible to the token, ordered by name.
// On v4+ only projects the user is a member of are requested, matching the
// pre-v4 default semantics. Without an API path it returns empty without
// touching the network.
func (c *Client) LoadProjects(ctx context.Context) ([]model.Project, error) {
	if c.apiPath == "" {
		return []model.Project{}, nil
	}

	var all []model.Project
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(c.perPage))
		params.Set("order_by", "name")
		params.Set("sort", "asc")
		if c.apiVersion >= 4 {
			params.Set("membership", "true")
		}

		var projects []model.Project
		if err := c.doGet(ctx, c.apiPath+"/projects", params, &projects); err != nil {
			return nil, fmt.Errorf("load projects page %d: %w", page, err)
		}
		all = append(all, projects...)

		if len(projects) < c.perPage {
			return all, nil
		}
	}
}

// LoadBranches fetches all repository branches of one project.
func (c *Client) LoadBranches(ctx context.Context, projectName string) ([]model.Branch, error) {
	if c.apiPath == "" {
		return []model.Branch{}, nil
	}

	endpoint := fmt.Sprintf("%s/projects/%s/repository/branches", c.apiPath, url.PathEscape(projectName))

	var all []model.Branch
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(c.perPage))

		var branches []model.Branch
		if err := c.doGet(ctx, endpoint, params, &branches); err != nil {
			return nil, fmt.Errorf("load branches page %d: %w", page, err)
		}
		all = append(all, branches...)

		if len(branches) < c.perPage {
			return all, nil
		}
	}
}

// LoadTriggers fetches the CI pipeline trigger tokens of one project.
func (c *Client) LoadTriggers(ctx context.Context, projectName string) ([]model.Trigger, error) {
	if c.apiPath == "" {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/projects/%s/triggers", c.apiPath, url.PathEscape(projectName))

	var triggers []model.Trigger
	if err := c.doGet(ctx, endpoint, nil, &triggers); err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}
	return triggers, nil
}

// GetProjectEvents fetches a project's visible events, most recent first.
// A single page bounded by per_page; older activity is not walked.
func (c *Client) GetProjectEvents(ctx context.Context, projectID int64) ([]model.ProjectEvent, error) {
	if c.apiPath == "" {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/projects/%d/events", c.apiPath, projectID)
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(c.perPage))

	var events []model.ProjectEvent
	if err := c.doGet(ctx, endpoint, params, &events); err != nil {
		return nil, fmt.Errorf("get project events: %w", err)
	}
	return events, nil
}

// TargetRef identifies the entity an event points at.
type TargetRef struct {
	TargetType  string
	TargetID    int64
	ProjectID   int64
	ProjectName string
}

// ResolveTarget resolves an event's internal target id to its
// project-scoped IID and browsable URL. Merge requests use the legacy
// singular endpoint below API v4. Milestones expose no iid; their id is
// used directly.
func (c *Client) ResolveTarget(ctx context.Context, ref TargetRef) (*model.ResolvedTarget, error) {
	if c.apiPath == "" {
		return nil, ErrNotConfigured
	}

	var endpoint, segment string
	switch ref.TargetType {
	case "Issue":
		endpoint = fmt.Sprintf("%s/projects/%d/issues/%d", c.apiPath, ref.ProjectID, ref.TargetID)
		segment = "issues"
	case "MergeRequest":
		if c.apiVersion >= 4 {
			endpoint = fmt.Sprintf("%s/projects/%d/merge_requests/%d", c.apiPath, ref.ProjectID, ref.TargetID)
		} else {
			endpoint = fmt.Sprintf("%s/projects/%d/merge_request/%d", c.apiPath, ref.ProjectID, ref.TargetID)
		}
		segment = "merge_requests"
	case "Milestone":
		endpoint = fmt.Sprintf("%s/projects/%d/milestones/%d", c.apiPath, ref.ProjectID, ref.TargetID)
		segment = "milestones"
	default:
		return nil, fmt.Errorf("resolve target: unsupported target type %q", ref.TargetType)
	}

	var res struct {
		ID  int64 `json:"id"`
		IID int64 `json:"iid"`
	}
	if err := c.doGet(ctx, endpoint, nil, &res); err != nil {
		return nil, fmt.Errorf("resolve %s %d: %w", ref.TargetType, ref.TargetID, err)
	}

	id := res.IID
	if id == 0 {
		id = res.ID
	}

	return &model.ResolvedTarget{
		TargetID:  id,
		TargetURL: fmt.Sprintf("%s/%s/%s/%d", c.gitlabPath, ref.ProjectName, segment, id),
	}, nil
}

// LoadAvatarURLs returns avatar URLs for the given users, serving hits from
// the avatar cache and fetching misses concurrently. Failed lookups are
// skipped; they will be retried on a later cycle. The returned map is
// complete when the call returns.
func (c *Client) LoadAvatarURLs(ctx context.Context, userIDs []int64) map[int64]string {
	urls := make(map[int64]string, len(userIDs))
	if c.apiPath == "" {
		return urls
	}

	seen := make(map[int64]bool, len(userIDs))
	var misses []int64
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u, ok := c.avatars.Get(id); ok {
			urls[id] = u
		} else {
			misses = append(misses, id)
		}
	}

	fetched := make(map[int64]string, len(misses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentLookups)

	for _, id := range misses {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			user, err := c.getUser(ctx, id)
			if err != nil {
				return
			}
			mu.Lock()
			fetched[id] = user.AvatarURL
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// Write-through after the fan-out settles; cache persistence is not
	// safe to call from multiple goroutines.
	for id, u := range fetched {
		urls[id] = u
		_ = c.avatars.Set(ctx, id, u)
	}
	return urls
}

func (c *Client) getUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	endpoint := fmt.Sprintf("%s/users/%d", c.apiPath, userID)
	if err := c.doGet(ctx, endpoint, nil, &user); err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &user, nil
}

// CurrentUser fetches the user the configured token authenticates as.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	return c.currentUser(ctx, c.apiPath, c.token)
}

// VerifyCredentials fetches the authenticated user through the given
// endpoint and token, independent of the active configuration. Empty
// arguments fall back to the configured values.
func (c *Client) VerifyCredentials(ctx context.Context, apiPath, token string) (*model.User, error) {
	if apiPath == "" {
		apiPath = c.apiPath
	}
	if token == "" {
		token = c.token
	}
	return c.currentUser(ctx, apiPath, token)
}

func (c *Client) currentUser(ctx context.Context, apiPath, token string) (*model.User, error) {
	if apiPath == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiPath+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", token)
	req.Header.Set("Accept", "application/json")

	var user model.User
	if err := c.do(req, &user); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &user, nil
}

// Version probes the instance version via the metadata endpoint, falling
// back to the pre-15.5 version endpoint on 404.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.apiPath == "" {
		return "", ErrNotConfigured
	}

	var meta struct {
		Version string `json:"version"`
	}
	err := c.doGet(ctx, c.apiPath+"/metadata", nil, &meta)
	if err == nil {
		return meta.Version, nil
	}

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		return "", fmt.Errorf("get metadata: %w", err)
	}

	if err := c.doGet(ctx, c.apiPath+"/version", nil, &meta); err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	return meta.Version, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
