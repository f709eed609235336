// Package publish uploads finished assets to a public host and returns their URLs.
package publish

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/salmodiario/pkg/config"
)

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

type Publisher interface {
	// Upload stores localPath under assetID, replacing any previous asset with that ID.
	Upload(ctx context.Context, localPath, assetID string, kind Kind) (string, error)
}

// AssetID names the asset for a run date, e.g. salmos/salmo_2026_10_18 or
// salmos/audio/salmo_2026_10_18.
func AssetID(category string, kind Kind, date time.Time) string {
	name := "salmo_" + date.Format("2006_01_02")
	if kind == KindAudio {
		return path.Join(category, "audio", name)
	}
	return path.Join(category, name)
}

func New(ctx context.Context, cfg config.Config) (Publisher, error) {
	switch cfg.Publisher {
	case config.PublisherCloudinary:
		publisher, err := NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.PublisherS3:
		publisher, err := NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3PublicBaseURL)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown publisher %q", cfg.Publisher)
	}
}
