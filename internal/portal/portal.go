package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/chmdznr/lms-to-minio-syncer/pkg/models"
)

var (
	// ErrAuthFailed means the portal rejected the supplied credentials.
	ErrAuthFailed = errors.New("portal login failed")

	// ErrUnexpectedStructure means a page did not contain an element the
	// scraper relies on, usually a theme or portal version mismatch.
	ErrUnexpectedStructure = errors.New("unexpected page structure")
)

// Client is a cookie-session scraper for a Moodle-style portal. The
// selectors match the stock theme; customized themes may need different
// ones.
type Client struct {
	http     *http.Client
	loginURL string
	username string
	password string
}

// New creates a portal client for the given login page and credentials.
func New(loginURL, username, password string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:     &http.Client{Jar: jar},
		loginURL: loginURL,
		username: username,
		password: password,
	}, nil
}

// Login establishes a portal session. Moodle login forms carry a
// one-time logintoken, so the form is fetched first and the token
// posted back with the credentials.
func (c *Client) Login(ctx context.Context) error {
	doc, _, err := c.get(ctx, c.loginURL)
	if err != nil {
		return fmt.Errorf("fetching login page: %w", err)
	}

	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}
	if token := inputValue(doc, "logintoken"); token != "" {
		form.Set("logintoken", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Status)
	}

	doc, err = html.Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing login response: %w", err)
	}
	// A rejected login lands back on the form.
	if findOne(doc, byID("loginbtn")) != nil {
		return ErrAuthFailed
	}
	return nil
}

// Courses lists the URLs of the courses visible on the dashboard.
func (c *Client) Courses(ctx context.Context) ([]string, error) {
	dash, err := c.dashboardURL()
	if err != nil {
		return nil, err
	}

	doc, base, err := c.get(ctx, dash)
	if err != nil {
		return nil, fmt.Errorf("fetching dashboard: %w", err)
	}

	var courses []string
	for _, a := range findAll(doc, byTag("a", "course-link")) {
		if href := attr(a, "href"); href != "" {
			courses = append(courses, resolveRef(base, href))
		}
	}
	return courses, nil
}

// Files returns a lazy iterator over the downloadable files of one
// course page. The page is fetched on the first Next call; the sequence
// is finite and cannot be restarted.
func (c *Client) Files(ctx context.Context, courseURL string) *FileIterator {
	return &FileIterator{c: c, ctx: ctx, courseURL: courseURL}
}

// Fetch downloads the file bytes behind a resource URL using the
// current session. The caller must close the returned reader. Size is
// -1 when the portal does not announce a content length.
func (c *Client) Fetch(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching %s: %w", fileURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("fetching %s: %s", fileURL, resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

// FileIterator walks the files of one course page, sql.Rows style.
type FileIterator struct {
	c         *Client
	ctx       context.Context
	courseURL string
	started   bool
	items     []models.TransferItem
	cur       models.TransferItem
	err       error
}

// Next advances to the next file. It returns false when the sequence is
// exhausted or failed; check Err after the loop.
func (it *FileIterator) Next() bool {
	if !it.started {
		it.started = true
		it.items, it.err = it.c.scrapeCourse(it.ctx, it.courseURL)
	}
	if it.err != nil || len(it.items) == 0 {
		return false
	}
	it.cur = it.items[0]
	it.items = it.items[1:]
	return true
}

// Item returns the file at the current position.
func (it *FileIterator) Item() models.TransferItem { return it.cur }

// Err returns the error that stopped iteration, if any.
func (it *FileIterator) Err() error { return it.err }

func (c *Client) scrapeCourse(ctx context.Context, courseURL string) ([]models.TransferItem, error) {
	doc, base, err := c.get(ctx, courseURL)
	if err != nil {
		return nil, fmt.Errorf("fetching course page: %w", err)
	}

	h1 := findOne(doc, byTag("h1", ""))
	if h1 == nil {
		return nil, fmt.Errorf("%w: course page %s has no title", ErrUnexpectedStructure, courseURL)
	}
	courseName := strings.TrimSpace(text(h1))

	var items []models.TransferItem
	for _, a := range findAll(doc, byTag("a", "resource")) {
		href := attr(a, "href")
		name := strings.TrimSpace(text(a))
		if href == "" || name == "" {
			continue
		}
		items = append(items, models.TransferItem{
			Name:       name,
			SourceURL:  resolveRef(base, href),
			CourseName: courseName,
		})
	}
	return items, nil
}

// dashboardURL derives the course overview page from the login URL.
func (c *Client) dashboardURL() (string, error) {
	u, err := url.Parse(c.loginURL)
	if err != nil {
		return "", fmt.Errorf("invalid login URL %q: %w", c.loginURL, err)
	}
	u.Path = "/my/"
	u.RawQuery = ""
	return u.String(), nil
}

// get fetches and parses one HTML page, returning the final URL for
// resolving relative references after redirects.
func (c *Client) get(ctx context.Context, rawURL string) (*html.Node, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	return doc, resp.Request.URL, nil
}
