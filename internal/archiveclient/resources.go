package archiveclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/manishkumr/mydata/internal/archiveerrors"
	"github.com/manishkumr/mydata/internal/model"
)

// listEnvelope mirrors the archive's filtered-list response shape: a
// paging meta block plus an object array, the same convention the
// original MyTardis API uses.
type listEnvelope[T any] struct {
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
	Objects []T `json:"objects"`
}

type userDTO struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	ResourceURI string `json:"resource_uri"`
}

// GetUserByUsername looks up a user by username. Returns
// *archiveerrors.DoesNotExist when no match is found.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var env listEnvelope[userDTO]

	path := fmt.Sprintf("user/?format=json&username=%s", url.QueryEscape(username))
	if err := c.get(ctx, path, &env); err != nil {
		return model.User{}, err
	}

	if env.Meta.TotalCount == 0 {
		return model.User{}, &archiveerrors.DoesNotExist{ResourceType: "user", Query: username}
	}

	u := env.Objects[0]

	return model.User{Username: u.Username, Email: u.Email, UpstreamID: u.ResourceURI, HasServerMapping: true}, nil
}

// GetUserByEmail looks up a user by email address.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var env listEnvelope[userDTO]

	path := fmt.Sprintf("user/?format=json&email=%s", url.QueryEscape(email))
	if err := c.get(ctx, path, &env); err != nil {
		return model.User{}, err
	}

	if env.Meta.TotalCount == 0 {
		return model.User{}, &archiveerrors.DoesNotExist{ResourceType: "user", Query: email}
	}

	u := env.Objects[0]

	return model.User{Username: u.Username, Email: u.Email, UpstreamID: u.ResourceURI, HasServerMapping: true}, nil
}

type groupDTO struct {
	Name        string `json:"name"`
	ResourceURI string `json:"resource_uri"`
}

// GetGroupsForUser returns the groups the named user belongs to.
func (c *Client) GetGroupsForUser(ctx context.Context, username string) ([]model.Group, error) {
	var env listEnvelope[groupDTO]

	path := fmt.Sprintf("group/?format=json&user=%s", url.QueryEscape(username))
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}

	groups := make([]model.Group, 0, len(env.Objects))
	for _, g := range env.Objects {
		groups = append(groups, model.Group{Name: g.Name, UpstreamID: g.ResourceURI, HasServerMapping: true})
	}

	return groups, nil
}

type facilityDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GetFacilitiesForUser returns the facilities the named user can manage
// instruments in.
func (c *Client) GetFacilitiesForUser(ctx context.Context, username string) ([]model.Facility, error) {
	var env listEnvelope[facilityDTO]

	path := fmt.Sprintf("facility/?format=json&manager_group__user__username=%s", url.QueryEscape(username))
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}

	facilities := make([]model.Facility, 0, len(env.Objects))
	for _, f := range env.Objects {
		facilities = append(facilities, model.Facility{ID: fmt.Sprint(f.ID), Name: f.Name})
	}

	return facilities, nil
}

type instrumentDTO struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ResourceURI string `json:"resource_uri"`
}

// GetInstrumentByFacilityAndName looks up an instrument scoped to a
// facility. Returns *archiveerrors.DoesNotExist when no match is found.
func (c *Client) GetInstrumentByFacilityAndName(ctx context.Context, facility model.Facility, name string) (model.Instrument, error) {
	var env listEnvelope[instrumentDTO]

	path := fmt.Sprintf("instrument/?format=json&facility__id=%s&name=%s", facility.ID, url.QueryEscape(name))
	if err := c.get(ctx, path, &env); err != nil {
		return model.Instrument{}, err
	}

	if env.Meta.TotalCount == 0 {
		return model.Instrument{}, &archiveerrors.DoesNotExist{ResourceType: "instrument", Query: name}
	}

	i := env.Objects[0]

	return model.Instrument{ID: fmt.Sprint(i.ID), Name: i.Name, Facility: facility}, nil
}

// CreateInstrument registers a new instrument under the given facility.
func (c *Client) CreateInstrument(ctx context.Context, facility model.Facility, name string) (model.Instrument, error) {
	req := map[string]string{
		"facility": facilityResourceURI(facility),
		"name":     name,
	}

	var created instrumentDTO
	if err := c.post(ctx, "instrument/", req, &created); err != nil {
		return model.Instrument{}, err
	}

	return model.Instrument{ID: fmt.Sprint(created.ID), Name: created.Name, Facility: facility}, nil
}

// RenameInstrument renames an existing instrument. Fails with
// *archiveerrors.DuplicateKey if the target name is already taken on the
// server, leaving the instrument's original name unchanged.
func (c *Client) RenameInstrument(ctx context.Context, inst model.Instrument, newName string) error {
	if _, err := c.GetInstrumentByFacilityAndName(ctx, inst.Facility, newName); err == nil {
		return &archiveerrors.DuplicateKey{Message: "instrument named " + newName + " already exists"}
	}

	req := map[string]string{"name": newName}

	path := fmt.Sprintf("instrument/%s/", inst.ID)

	return c.post(ctx, path, req, nil)
}

func facilityResourceURI(f model.Facility) string {
	return "/api/v1/facility/" + f.ID + "/"
}

type experimentDTO struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ResourceURI string `json:"resource_uri"`
}

// GetOrCreateExperimentForFolder resolves the Experiment for a folder,
// creating it on the archive if it does not already exist. Callers must
// serialize calls that share an experiment title via their own mutex; see
// SPEC_FULL.md §5 on getOrCreateExpThreadingLock.
func (c *Client) GetOrCreateExperimentForFolder(ctx context.Context, title string) (model.Experiment, error) {
	var env listEnvelope[experimentDTO]

	path := fmt.Sprintf("experiment/?format=json&title=%s", url.QueryEscape(title))
	if err := c.get(ctx, path, &env); err != nil {
		return model.Experiment{}, err
	}

	if env.Meta.TotalCount > 0 {
		e := env.Objects[0]
		return model.Experiment{ID: fmt.Sprint(e.ID), Title: e.Title, ResourceURI: e.ResourceURI}, nil
	}

	req := map[string]string{"title": title}

	var created experimentDTO
	if err := c.post(ctx, "experiment/", req, &created); err != nil {
		return model.Experiment{}, err
	}

	return model.Experiment{ID: fmt.Sprint(created.ID), Title: created.Title, ResourceURI: created.ResourceURI}, nil
}

type datasetDTO struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	ResourceURI string `json:"resource_uri"`
}

// CreateDatasetIfNecessary resolves the Dataset for a folder, creating it
// if absent.
func (c *Client) CreateDatasetIfNecessary(ctx context.Context, exp model.Experiment, description string) (model.Dataset, error) {
	var env listEnvelope[datasetDTO]

	path := fmt.Sprintf("dataset/?format=json&experiments__id=%s&description=%s", exp.ID, url.QueryEscape(description))
	if err := c.get(ctx, path, &env); err != nil {
		return model.Dataset{}, err
	}

	if env.Meta.TotalCount > 0 {
		d := env.Objects[0]
		return model.Dataset{ID: fmt.Sprint(d.ID), Description: d.Description, ResourceURI: d.ResourceURI, Experiment: &exp}, nil
	}

	req := map[string]interface{}{
		"description": description,
		"experiments": []string{exp.ResourceURI},
	}

	var created datasetDTO
	if err := c.post(ctx, "dataset/", req, &created); err != nil {
		return model.Dataset{}, err
	}

	return model.Dataset{ID: fmt.Sprint(created.ID), Description: created.Description, ResourceURI: created.ResourceURI, Experiment: &exp}, nil
}

// DatafileLookupResult classifies a fingerprint lookup response.
type DatafileLookupResult struct {
	Found               bool
	Verified            bool
	StagedObjectPresent bool
	StagedObjectPartial bool
	BytesUploaded       int64
}

type datafileDTO struct {
	Verified      bool   `json:"verified"`
	Size          int64  `json:"size"`
	StagedBytes   int64  `json:"staged_bytes"`
	StagedPartial bool   `json:"staged_partial"`
	StagedPresent bool   `json:"staged_present"`
	MD5Sum        string `json:"md5sum"`
}

// LookupDatafileByFingerprint asks the archive whether a file matching fp
// is already known.
func (c *Client) LookupDatafileByFingerprint(ctx context.Context, fp model.FileFingerprint) (DatafileLookupResult, error) {
	var env listEnvelope[datafileDTO]

	path := fmt.Sprintf("dataset_file/?format=json&dataset__id=%s&filename=%s&size=%d&sha512sum=%s",
		fp.DatasetID, url.QueryEscape(fp.FileName), fp.Size, fp.Digest)
	if err := c.get(ctx, path, &env); err != nil {
		return DatafileLookupResult{}, err
	}

	if env.Meta.TotalCount == 0 {
		return DatafileLookupResult{Found: false}, nil
	}

	d := env.Objects[0]

	return DatafileLookupResult{
		Found:               true,
		Verified:            d.Verified,
		StagedObjectPresent: d.StagedPresent,
		StagedObjectPartial: d.StagedPartial,
		BytesUploaded:       d.StagedBytes,
	}, nil
}

// CreateDatafileBulk posts a single request carrying both datafile
// metadata and the file body, used by the BulkHTTP upload method.
func (c *Client) CreateDatafileBulk(ctx context.Context, fp model.FileFingerprint, body io.Reader, size int64) error {
	req, err := c.newRequest(ctx, http.MethodPost, "dataset_file/", body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size
	req.URL.RawQuery = fmt.Sprintf("dataset=%s&filename=%s&sha512sum=%s",
		fp.DatasetID, url.QueryEscape(fp.FileName), fp.Digest)

	return c.do(ctx, req, nil)
}

// StagedTarget is the remote location returned by CreateDatafileStaged for
// the secure-copy step to stream into.
type StagedTarget struct {
	RemotePath string
	Host       string
}

type createDatafileStagedDTO struct {
	RemotePath string `json:"staged_path"`
	Host       string `json:"staging_host"`
}

// CreateDatafileStaged registers a datafile record and obtains a staged
// target path, the first of the Staged method's two steps. Returns
// *archiveerrors.StorageBoxOptionNotFound when the archive accepts the
// record but has no storage box configured to stage it into.
func (c *Client) CreateDatafileStaged(ctx context.Context, fp model.FileFingerprint) (StagedTarget, error) {
	req := map[string]interface{}{
		"dataset":  fp.DatasetID,
		"filename": fp.FileName,
		"size":     fp.Size,
		"sha512sum": fp.Digest,
	}

	var resp createDatafileStagedDTO
	if err := c.post(ctx, "dataset_file/", req, &resp); err != nil {
		return StagedTarget{}, err
	}

	if resp.Host == "" || resp.RemotePath == "" {
		return StagedTarget{}, &archiveerrors.StorageBoxOptionNotFound{
			Message: "archive returned no staging target for dataset " + fp.DatasetID,
		}
	}

	return StagedTarget{RemotePath: resp.RemotePath, Host: resp.Host}, nil
}

type stagingAccessDTO struct {
	Approved bool `json:"approved"`
	Exists   bool `json:"exists"`
}

// RequestStagingAccess asks the archive for this agent instance's staging
// permission. See SPEC_FULL.md §3 on StagingAccessRecord.
func (c *Client) RequestStagingAccess(ctx context.Context) (model.StagingAccess, error) {
	var resp stagingAccessDTO

	req := map[string]string{"uploader_uuid": c.opts.InstanceID}

	err := c.post(ctx, "mydata_uploader_registration_request/", req, &resp)

	var doesNotExist *archiveerrors.DoesNotExist
	if err != nil {
		if errors.As(err, &doesNotExist) {
			return model.StagingAccess{State: model.StagingAccessAbsent}, nil
		}

		return model.StagingAccess{}, err
	}

	if !resp.Exists {
		return model.StagingAccess{State: model.StagingAccessAbsent}, nil
	}

	if resp.Approved {
		return model.StagingAccess{State: model.StagingAccessApproved}, nil
	}

	return model.StagingAccess{State: model.StagingAccessPending}, nil
}
