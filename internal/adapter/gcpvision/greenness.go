// Package gcpvision estimates vegetation cover change from Cloud Vision
// image properties.
package gcpvision

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Estimator implements domain.GreennessEstimator.
type Estimator struct {
	annotate annotateFunc
	close    func() error
}

// NewEstimator creates an estimator using application default credentials.
func NewEstimator(ctx context.Context) (*Estimator, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Estimator{
		annotate: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
		close: client.Close,
	}, nil
}

// Close releases the client.
func (e *Estimator) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

// EstimateDropPct returns how much of the before image's green cover is
// missing from the after image, in percent. It is 0 when the before image
// has no green cover.
func (e *Estimator) EstimateDropPct(ctx context.Context, before, after domain.Image) (float64, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			propertiesRequest(before),
			propertiesRequest(after),
		},
	}
	resp, err := e.annotate(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("%w: vision BatchAnnotateImages: %w", domain.ErrCollaborator, err)
	}
	if len(resp.GetResponses()) != 2 {
		return 0, fmt.Errorf("%w: vision returned %d responses for 2 images", domain.ErrCollaborator, len(resp.GetResponses()))
	}

	var cover [2]float64
	for i, r := range resp.GetResponses() {
		if msg := r.GetError().GetMessage(); msg != "" {
			return 0, fmt.Errorf("%w: vision annotate error: %s", domain.ErrCollaborator, msg)
		}
		props := r.GetImagePropertiesAnnotation()
		if props == nil {
			return 0, fmt.Errorf("%w: vision returned no image properties", domain.ErrCollaborator)
		}
		cover[i] = greenFraction(props.GetDominantColors().GetColors())
	}
	return DropPct(cover[0], cover[1]), nil
}

func propertiesRequest(img domain.Image) *visionpb.AnnotateImageRequest {
	return &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: img.Data},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_IMAGE_PROPERTIES}},
	}
}

// greenFraction sums the pixel fraction of dominant colours whose green
// channel exceeds both red and blue.
func greenFraction(colors []*visionpb.ColorInfo) float64 {
	var total float64
	for _, c := range colors {
		rgb := c.GetColor()
		if rgb.GetGreen() > rgb.GetRed() && rgb.GetGreen() > rgb.GetBlue() {
			total += float64(c.GetPixelFraction())
		}
	}
	return total
}

// DropPct is the clamped relative loss from before to after.
func DropPct(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	return domain.Clamp((before - after) / before * 100)
}
