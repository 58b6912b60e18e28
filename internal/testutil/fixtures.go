// Package testutil builds realistic job/asset fixtures for tests across
// this module, instead of hand-typed literal IDs.
package testutil

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/asset-processing/worker/internal/job"
)

// NewJob returns a job.Job with a random UUID, a random asset reference,
// and status/attempts overridable by the caller via the returned value.
func NewJob(status job.Status) job.Job {
	now := time.Now()
	return job.Job{
		ID:            gofakeit.UUID(),
		AssetID:       gofakeit.UUID(),
		Status:        status,
		Attempts:      0,
		LastHeartBeat: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewAsset returns a job.Asset with a random filename/URL of the given
// file type.
func NewAsset(fileType job.FileType) job.Asset {
	name := gofakeit.Word() + extensionFor(fileType)
	return job.Asset{
		ID:       gofakeit.UUID(),
		FileName: name,
		FileURL:  "https://" + gofakeit.DomainName() + "/" + name,
		FileType: fileType,
		MimeType: mimeTypeFor(fileType),
		Size:     int64(gofakeit.Number(1024, 10*1024*1024)),
	}
}

func extensionFor(fileType job.FileType) string {
	switch fileType {
	case job.FileTypeAudio:
		return ".mp3"
	case job.FileTypeVideo:
		return ".mp4"
	case job.FileTypeMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

func mimeTypeFor(fileType job.FileType) string {
	switch fileType {
	case job.FileTypeAudio:
		return "audio/mpeg"
	case job.FileTypeVideo:
		return "video/mp4"
	case job.FileTypeMarkdown:
		return "text/markdown"
	default:
		return "text/plain"
	}
}
