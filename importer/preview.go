package importer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"dicom-import-api/models"
)

// previewConcurrency bounds the image fetches of one preview.
const previewConcurrency = 8

// Files gives access to the buffers of a decoded archive by relative path.
type Files interface {
	File(path string) ([]byte, bool)
}

// ImageFetcher downloads one image of a work folder.
type ImageFetcher interface {
	FetchImage(ctx context.Context, workFolder, path string) ([]byte, error)
}

// Preview is the pixel data of one series, one buffer per image in series order.
type Preview struct {
	SeriesInstanceUID string   `json:"seriesInstanceUID"`
	BinaryImages      [][]byte `json:"binaryImages"`
}

// LoadPreview resolves every image of serie, from files when given and from fetcher otherwise.
// It returns once all images are resolved and fails as a whole if any of them fails.
func LoadPreview(ctx context.Context, serie *models.SerieDicom, workFolder string, files Files, fetcher ImageFetcher) (*Preview, error) {
	if files == nil && fetcher == nil {
		return nil, fmt.Errorf("no image source for series %s", serie.SeriesInstanceUID)
	}

	buffers := make([][]byte, len(serie.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(previewConcurrency)
	for i, image := range serie.Images {
		i, path := i, image.Path
		g.Go(func() error {
			data, err := loadImage(gctx, path, workFolder, files, fetcher)
			if err != nil {
				return err
			}
			buffers[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Preview{SeriesInstanceUID: serie.SeriesInstanceUID, BinaryImages: buffers}, nil
}

// LoadImage resolves the image at index of serie the way LoadPreview does.
func LoadImage(ctx context.Context, serie *models.SerieDicom, index int, workFolder string, files Files, fetcher ImageFetcher) ([]byte, error) {
	if index < 0 || index >= len(serie.Images) || serie.Images[index] == nil {
		return nil, fmt.Errorf("%w: index %d of series %s", ErrImageNotFound, index, serie.SeriesInstanceUID)
	}
	if files == nil && fetcher == nil {
		return nil, fmt.Errorf("no image source for series %s", serie.SeriesInstanceUID)
	}
	return loadImage(ctx, serie.Images[index].Path, workFolder, files, fetcher)
}

func loadImage(ctx context.Context, path, workFolder string, files Files, fetcher ImageFetcher) ([]byte, error) {
	if files != nil {
		data, ok := files.File(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return data, nil
	}
	data, err := fetcher.FetchImage(ctx, workFolder, path)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", path, err)
	}
	return data, nil
}
