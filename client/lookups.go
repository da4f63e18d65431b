package client

import (
	"context"
	"io"
	"strconv"
	"strings"

	"dicom-import-api/models"
)

// ListStudiesWithCenters returns the studies visible to the user with their centers.
func (c *Client) ListStudiesWithCenters(ctx context.Context) ([]*models.Study, error) {
	var studies []*models.Study
	err := c.getJSON(ctx, join(c.studiesURL, "studies", "namesAndCenters"), &studies)
	return studies, err
}

// FindSubjectsByStudy returns the subjects of a study.
func (c *Client) FindSubjectsByStudy(ctx context.Context, studyID int64) ([]*models.SubjectWithSubjectStudy, error) {
	var subjects []*models.SubjectWithSubjectStudy
	err := c.getJSON(ctx, join(c.studiesURL, "subjects", strconv.FormatInt(studyID, 10), "allSubjects"), &subjects)
	return subjects, err
}

// ListCenters returns every center with its acquisition equipment.
func (c *Client) ListCenters(ctx context.Context) ([]*models.Center, error) {
	var centers []*models.Center
	err := c.getJSON(ctx, join(c.studiesURL, "centers"), &centers)
	return centers, err
}

// FindExaminationsBySubjectAndStudy returns the examinations of a subject in a study.
func (c *Client) FindExaminationsBySubjectAndStudy(ctx context.Context, subjectID, studyID int64) ([]*models.SubjectExamination, error) {
	var exams []*models.SubjectExamination
	u := join(c.datasetsURL, "examinations", "subject", strconv.FormatInt(subjectID, 10), "study", strconv.FormatInt(studyID, 10))
	err := c.getJSON(ctx, u, &exams)
	return exams, err
}

// ListConverters returns the NIfTI converters of the import service.
func (c *Client) ListConverters(ctx context.Context) ([]*models.NiftiConverter, error) {
	var converters []*models.NiftiConverter
	err := c.getJSON(ctx, join(c.importURL, "niftiConverters"), &converters)
	return converters, err
}

// FetchImage downloads an image extracted by the import service in workFolder.
func (c *Client) FetchImage(ctx context.Context, workFolder, path string) ([]byte, error) {
	elems := append([]string{"viewer", workFolder}, strings.Split(strings.TrimPrefix(path, "/"), "/")...)
	resp, err := c.get(ctx, join(c.importURL, elems...))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
