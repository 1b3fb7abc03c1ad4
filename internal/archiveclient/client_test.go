package archiveclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manishkumr/mydata/internal/archiveerrors"
	"github.com/manishkumr/mydata/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, Username: "jane", APIKey: "key"})
	require.NoError(t, err)

	return c
}

func TestAuthHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ApiKey jane:key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"meta":{"total_count":0},"objects":[]}`) //nolint:errcheck
	})

	_, err := c.GetUserByUsername(context.Background(), "jane")

	var doesNotExist *archiveerrors.DoesNotExist
	require.ErrorAs(t, err, &doesNotExist)
}

func TestGetUserByUsername_found(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{"total_count":1},"objects":[{"id":1,"username":"jane","email":"jane@example.com","resource_uri":"/api/v1/user/1/"}]}`) //nolint:errcheck
	})

	u, err := c.GetUserByUsername(context.Background(), "jane")
	require.NoError(t, err)
	require.Equal(t, "jane", u.Username)
	require.True(t, u.HasServerMapping)
}

func TestClassifyStatus_mapsUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "bad credentials") //nolint:errcheck
	})

	_, err := c.GetUserByUsername(context.Background(), "jane")

	var unauthorized *archiveerrors.Unauthorized
	require.ErrorAs(t, err, &unauthorized)
}

func TestClassifyStatus_mapsHttpError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom") //nolint:errcheck
	})

	_, err := c.GetUserByUsername(context.Background(), "jane")

	var httpErr *archiveerrors.HttpError //nolint:revive,stylecheck
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestRenameInstrument_collidesWithExistingName(t *testing.T) {
	facility := model.Facility{ID: "1", Name: "Microscopy"}
	inst := model.Instrument{ID: "10", Name: "Titan", Facility: facility}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Any lookup for the new name succeeds, simulating a collision.
		fmt.Fprint(w, `{"meta":{"total_count":1},"objects":[{"id":99,"name":"Krios","resource_uri":"/api/v1/instrument/99/"}]}`) //nolint:errcheck
	})

	err := c.RenameInstrument(context.Background(), inst, "Krios")

	var dup *archiveerrors.DuplicateKey
	require.ErrorAs(t, err, &dup)
}

func TestLookupDatafileByFingerprint_notFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{"total_count":0},"objects":[]}`) //nolint:errcheck
	})

	result, err := c.LookupDatafileByFingerprint(context.Background(), model.FileFingerprint{DatasetID: "1", FileName: "a.txt", Size: 10, Digest: "abc"})
	require.NoError(t, err)
	require.False(t, result.Found)
}

func TestRequestStagingAccess_absentWhenNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	access, err := c.RequestStagingAccess(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.StagingAccessAbsent, access.State)
}

func TestRequestStagingAccess_approved(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"exists":true,"approved":true}`) //nolint:errcheck
	})

	access, err := c.RequestStagingAccess(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.StagingAccessApproved, access.State)
}
