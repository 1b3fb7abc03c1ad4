package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// fakeArchive is a minimal in-memory stand-in for the data-archive REST
// surface, exercising the same resources and response envelopes as the
// real service so the pipeline controller can be driven end to end
// without a network dependency.
type fakeArchive struct {
	mu sync.Mutex

	experiments map[string]int // title -> id
	datasets    map[string]int // experimentID\x00description -> id
	datafiles   map[string]bool // datasetID\x00filename\x00digest -> verified
	staged      map[string]int64

	stagingExists   bool
	stagingApproved bool

	createdBulk   int
	createdStaged int
	lookups       int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		experiments: map[string]int{},
		datasets:    map[string]int{},
		datafiles:   map[string]bool{},
		staged:      map[string]int64{},
	}
}

func (a *fakeArchive) server(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(srv.Close)

	return srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func listEnv(objects interface{}, count int) map[string]interface{} {
	return map[string]interface{}{
		"meta":    map[string]interface{}{"total_count": count},
		"objects": objects,
	}
}

// resourceOf strips the "/api/v1/" prefix and any trailing numeric ID
// segment, returning e.g. "experiment" for "/api/v1/experiment/" and
// "instrument" for "/api/v1/instrument/7/".
func resourceOf(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/")
	trimmed = strings.Trim(trimmed, "/")
	segs := strings.Split(trimmed, "/")

	return segs[0]
}

func datafileKey(datasetID, filename, digest string) string {
	return datasetID + "\x00" + filename + "\x00" + digest
}

func (a *fakeArchive) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resource := resourceOf(r.URL.Path)
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodGet && resource == "experiment":
		title := q.Get("title")
		if id, ok := a.experiments[title]; ok {
			writeJSON(w, listEnv([]map[string]interface{}{{"id": id, "title": title, "resource_uri": fmt.Sprintf("/api/v1/experiment/%d/", id)}}, 1))
			return
		}

		writeJSON(w, listEnv([]map[string]interface{}{}, 0))

	case r.Method == http.MethodPost && resource == "experiment":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck

		id := len(a.experiments) + 1
		a.experiments[body["title"]] = id
		writeJSON(w, map[string]interface{}{"id": id, "title": body["title"], "resource_uri": fmt.Sprintf("/api/v1/experiment/%d/", id)})

	case r.Method == http.MethodGet && resource == "dataset":
		key := q.Get("experiments__id") + "\x00" + q.Get("description")
		if id, ok := a.datasets[key]; ok {
			writeJSON(w, listEnv([]map[string]interface{}{{"id": id, "description": q.Get("description"), "resource_uri": fmt.Sprintf("/api/v1/dataset/%d/", id)}}, 1))
			return
		}

		writeJSON(w, listEnv([]map[string]interface{}{}, 0))

	case r.Method == http.MethodPost && resource == "dataset":
		var body struct {
			Description string   `json:"description"`
			Experiments []string `json:"experiments"`
		}
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck

		expID := ""
		if len(body.Experiments) > 0 {
			expID = lastPathSegment(body.Experiments[0])
		}

		id := len(a.datasets) + 1
		a.datasets[expID+"\x00"+body.Description] = id
		writeJSON(w, map[string]interface{}{"id": id, "description": body.Description, "resource_uri": fmt.Sprintf("/api/v1/dataset/%d/", id)})

	case r.Method == http.MethodGet && resource == "dataset_file":
		a.lookups++

		key := datafileKey(q.Get("dataset__id"), q.Get("filename"), q.Get("sha512sum"))

		if a.datafiles[key] {
			writeJSON(w, listEnv([]map[string]interface{}{{"verified": true}}, 1))
			return
		}

		if bytes, ok := a.staged[key]; ok {
			writeJSON(w, listEnv([]map[string]interface{}{{"verified": false, "staged_present": true, "staged_partial": bytes > 0, "staged_bytes": bytes}}, 1))
			return
		}

		writeJSON(w, listEnv([]map[string]interface{}{}, 0))

	case r.Method == http.MethodPost && resource == "dataset_file":
		if r.URL.RawQuery != "" {
			// CreateDatafileBulk: metadata travels in the query string,
			// the file body is the raw request body.
			io.Copy(io.Discard, r.Body) //nolint:errcheck

			key := datafileKey(q.Get("dataset"), q.Get("filename"), q.Get("sha512sum"))
			a.datafiles[key] = true
			a.createdBulk++
			w.WriteHeader(http.StatusCreated)

			return
		}

		// CreateDatafileStaged: metadata travels as a JSON body.
		var body struct {
			Dataset   string `json:"dataset"`
			Filename  string `json:"filename"`
			Size      int64  `json:"size"`
			Sha512Sum string `json:"sha512sum"`
		}
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck

		key := datafileKey(body.Dataset, body.Filename, body.Sha512Sum)
		a.staged[key] = 0
		a.createdStaged++

		writeJSON(w, map[string]interface{}{"staged_path": "/remote/" + body.Filename, "staging_host": "stage.example.com"})

	case r.Method == http.MethodPost && resource == "mydata_uploader_registration_request":
		writeJSON(w, map[string]interface{}{"exists": a.stagingExists, "approved": a.stagingApproved})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func lastPathSegment(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}

	trimmed := strings.Trim(u.Path, "/")
	segs := strings.Split(trimmed, "/")

	if len(segs) == 0 {
		return ""
	}

	return segs[len(segs)-1]
}
