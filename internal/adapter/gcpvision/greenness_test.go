package gcpvision

import (
	"context"
	"errors"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/genproto/googleapis/type/color"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

func colorInfo(r, g, b, fraction float32) *visionpb.ColorInfo {
	return &visionpb.ColorInfo{
		Color:         &color.Color{Red: r, Green: g, Blue: b},
		PixelFraction: fraction,
	}
}

func propertiesResponse(colors ...*visionpb.ColorInfo) *visionpb.AnnotateImageResponse {
	return &visionpb.AnnotateImageResponse{
		ImagePropertiesAnnotation: &visionpb.ImageProperties{
			DominantColors: &visionpb.DominantColorsAnnotation{Colors: colors},
		},
	}
}

func fakeEstimator(resp *visionpb.BatchAnnotateImagesResponse, err error, seen *[]*visionpb.BatchAnnotateImagesRequest) *Estimator {
	return &Estimator{annotate: func(_ context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		if seen != nil {
			*seen = append(*seen, req)
		}
		return resp, err
	}}
}

func TestDropPct(t *testing.T) {
	tests := []struct {
		name          string
		before, after float64
		want          float64
	}{
		{"no green before", 0, 0.4, 0},
		{"thirty percent loss", 0.5, 0.35, 30},
		{"gain clamps to zero", 0.2, 0.5, 0},
		{"total loss", 0.6, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DropPct(tt.before, tt.after), 1e-9)
		})
	}
}

func TestGreenFraction(t *testing.T) {
	colors := []*visionpb.ColorInfo{
		colorInfo(30, 120, 40, 0.25),  // green
		colorInfo(20, 100, 100, 0.25), // green ties blue
		colorInfo(200, 180, 90, 0.25), // sand
		colorInfo(40, 90, 60, 0.125),  // green
	}
	assert.InDelta(t, 0.375, greenFraction(colors), 1e-6)
}

func TestEstimateDropPct(t *testing.T) {
	var seen []*visionpb.BatchAnnotateImagesRequest
	e := fakeEstimator(&visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{
		propertiesResponse(colorInfo(30, 120, 40, 0.5), colorInfo(200, 180, 90, 0.5)),
		propertiesResponse(colorInfo(30, 120, 40, 0.25), colorInfo(200, 180, 90, 0.75)),
	}}, nil, &seen)

	drop, err := e.EstimateDropPct(context.Background(), domain.Image{Data: []byte("b")}, domain.Image{Data: []byte("a")})
	require.NoError(t, err)
	assert.InDelta(t, 50, drop, 1e-6)

	require.Len(t, seen, 1)
	require.Len(t, seen[0].GetRequests(), 2)
	assert.Equal(t, []byte("b"), seen[0].GetRequests()[0].GetImage().GetContent())
	assert.Equal(t, visionpb.Feature_IMAGE_PROPERTIES, seen[0].GetRequests()[1].GetFeatures()[0].GetType())
}

func TestEstimateDropPct_Errors(t *testing.T) {
	tests := []struct {
		name string
		resp *visionpb.BatchAnnotateImagesResponse
		err  error
	}{
		{name: "transport", err: errors.New("unavailable")},
		{name: "missing response", resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{propertiesResponse()},
		}},
		{name: "per image error", resp: &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{
			propertiesResponse(),
			{Error: &status.Status{Code: 3, Message: "bad image data"}},
		}}},
		{name: "no properties", resp: &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{
			propertiesResponse(), {},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fakeEstimator(tt.resp, tt.err, nil).EstimateDropPct(context.Background(), domain.Image{}, domain.Image{})
			require.ErrorIs(t, err, domain.ErrCollaborator)
		})
	}
}
