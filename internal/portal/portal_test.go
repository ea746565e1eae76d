package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form action="/login/index.php" method="post">
<input type="hidden" name="logintoken" value="tok123">
<input type="text" id="username" name="username">
<input type="password" id="password" name="password">
<button id="loginbtn" type="submit">Log in</button>
</form>
</body></html>`

const dashboardPage = `<html><body>
<h1>Dashboard</h1>
<a class="course-link" href="/course/view.php?id=1">CS101</a>
<a class="course-link other" href="/course/view.php?id=2">MA201</a>
<a class="nav-link" href="/my/">Home</a>
</body></html>`

const coursePage = `<html><body>
<h1> CS101 </h1>
<a class="resource" href="/pluginfile.php/1">notes.pdf</a>
<a class="resource" href="https://cdn.example.edu/pluginfile.php/2">slides.pdf</a>
<a class="forum" href="/forum/view.php?id=9">Announcements</a>
</body></html>`

// No h1: structure the scraper cannot interpret.
const brokenCoursePage = `<html><body><div>maintenance</div></body></html>`

type testPortal struct {
	srv        *httptest.Server
	courseHits atomic.Int64
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	p := &testPortal{}

	requireSession := func(w http.ResponseWriter, r *http.Request) bool {
		if c, err := r.Cookie("MoodleSession"); err == nil && c.Value == "abc" {
			return true
		}
		http.Error(w, "not logged in", http.StatusForbidden)
		return false
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/index.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostFormValue("username") == "student" &&
			r.PostFormValue("password") == "hunter2" &&
			r.PostFormValue("logintoken") == "tok123" {
			http.SetCookie(w, &http.Cookie{Name: "MoodleSession", Value: "abc", Path: "/"})
			http.Redirect(w, r, "/my/", http.StatusFound)
			return
		}
		// Rejected logins land back on the form.
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/my/", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		fmt.Fprint(w, dashboardPage)
	})
	mux.HandleFunc("/course/view.php", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		p.courseHits.Add(1)
		switch r.URL.Query().Get("id") {
		case "1":
			fmt.Fprint(w, coursePage)
		case "2":
			fmt.Fprint(w, brokenCoursePage)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/pluginfile.php/1", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		fmt.Fprint(w, "file-bytes")
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *testPortal) client(t *testing.T, username, password string) *Client {
	t.Helper()
	c, err := New(p.srv.URL+"/login/index.php", username, password)
	require.NoError(t, err)
	return c
}

func (p *testPortal) login(t *testing.T) *Client {
	t.Helper()
	c := p.client(t, "student", "hunter2")
	require.NoError(t, c.Login(context.Background()))
	return c
}

func TestLogin(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t, "student", "hunter2")
	require.NoError(t, c.Login(context.Background()))
}

func TestLoginRejected(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t, "student", "wrong")
	err := c.Login(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestCourses(t *testing.T) {
	p := newTestPortal(t)
	c := p.login(t)

	courses, err := c.Courses(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		p.srv.URL + "/course/view.php?id=1",
		p.srv.URL + "/course/view.php?id=2",
	}, courses)
}

func TestFilesIterator(t *testing.T) {
	p := newTestPortal(t)
	c := p.login(t)

	it := c.Files(context.Background(), p.srv.URL+"/course/view.php?id=1")
	// Lazy: nothing is fetched until the first Next.
	require.EqualValues(t, 0, p.courseHits.Load())

	require.True(t, it.Next())
	require.EqualValues(t, 1, p.courseHits.Load())
	first := it.Item()
	require.Equal(t, "notes.pdf", first.Name)
	require.Equal(t, p.srv.URL+"/pluginfile.php/1", first.SourceURL)
	require.Equal(t, "CS101", first.CourseName)

	require.True(t, it.Next())
	second := it.Item()
	require.Equal(t, "slides.pdf", second.Name)
	require.Equal(t, "https://cdn.example.edu/pluginfile.php/2", second.SourceURL)

	// Finite and non-restartable: exhausted means exhausted.
	require.False(t, it.Next())
	require.False(t, it.Next())
	require.NoError(t, it.Err())
	require.EqualValues(t, 1, p.courseHits.Load())
}

func TestFilesUnexpectedStructure(t *testing.T) {
	p := newTestPortal(t)
	c := p.login(t)

	it := c.Files(context.Background(), p.srv.URL+"/course/view.php?id=2")
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), ErrUnexpectedStructure)
}

func TestFetch(t *testing.T) {
	p := newTestPortal(t)
	c := p.login(t)

	body, size, err := c.Fetch(context.Background(), p.srv.URL+"/pluginfile.php/1")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "file-bytes", string(data))
	require.EqualValues(t, len("file-bytes"), size)
}

func TestFetchNotFound(t *testing.T) {
	p := newTestPortal(t)
	c := p.login(t)

	_, _, err := c.Fetch(context.Background(), p.srv.URL+"/pluginfile.php/404")
	require.Error(t, err)
}
