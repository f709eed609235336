package publish

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type cloudinaryUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

type Cloudinary struct {
	uploader cloudinaryUploader
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{uploader: &cld.Upload}, nil
}

func (publisher *Cloudinary) Upload(ctx context.Context, localPath, assetID string, kind Kind) (string, error) {
	// Cloudinary files audio under the video resource type.
	resourceType := "image"
	if kind == KindAudio {
		resourceType = "video"
	}

	result, err := publisher.uploader.Upload(ctx, localPath, uploader.UploadParams{
		PublicID:     assetID,
		Overwrite:    api.Bool(true),
		Invalidate:   api.Bool(true),
		ResourceType: resourceType,
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", assetID, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", assetID, result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload %s: no url returned", assetID)
	}
	return result.SecureURL, nil
}
