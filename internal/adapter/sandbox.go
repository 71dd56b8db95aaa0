package adapter

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"fastmedia/gateway/internal/models"
)

// SandboxStrategy 仅在沙箱模式下挂在策略链末尾, 返回带标记的占位资源
type SandboxStrategy struct{}

func (SandboxStrategy) Name() string { return "sandbox" }

func (SandboxStrategy) Attempt(_ context.Context, target *Target) (*models.VideoAsset, error) {
	id := target.ContentID
	if id == "" {
		sum := sha1.Sum([]byte(target.URL))
		id = hex.EncodeToString(sum[:6])
	}
	return &models.VideoAsset{
		ContentID: id,
		Extractor: string(target.Platform),
		Title:     "sandbox " + string(target.Platform) + " " + id,
		Duration:  30,
		PageURL:   target.PageURL,
		Candidates: []models.MediaCandidate{{
			URL:      "sandbox://" + string(target.Platform) + "/" + id + ".mp4",
			Quality:  "unknown",
			Ext:      "mp4",
			Delivery: models.DeliveryDirect,
		}},
		Origin:  models.OriginSandbox,
		Sandbox: true,
	}, nil
}
