package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"jobscout/models"
	"jobscout/storage"
)

// BlobUploader writes one artifact to blob storage.
type BlobUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

type snapshotStore interface {
	CreateSnapshot(ctx context.Context, snap *models.Snapshot) error
	GetLatestSnapshot(ctx context.Context, jobID uuid.UUID) (*models.Snapshot, error)
}

// SnapshotService persists point-in-time captures. Blob uploads happen before
// the metadata row is written, so a snapshot row never references an
// artifact that is not actually in storage.
type SnapshotService struct {
	store snapshotStore
	blobs BlobUploader
}

func NewSnapshotService(store snapshotStore, blobs BlobUploader) *SnapshotService {
	return &SnapshotService{store: store, blobs: blobs}
}

// Capture describes one fetch worth persisting.
type Capture struct {
	JobID       uuid.UUID
	RunID       int64
	Fingerprint string
	Fields      *models.JobFields
	Artifacts   models.Artifacts
	HTTPStatus  int
	ETag        string
	FetchedAt   time.Time
}

// Persist uploads the capture's artifacts and records the snapshot row.
// Artifacts that were not produced get nil keys. An upload failure aborts
// the whole persist; the caller sees storage.ErrStorageWrite and no row is
// written.
func (s *SnapshotService) Persist(ctx context.Context, cap *Capture) (*models.Snapshot, error) {
	snap := &models.Snapshot{
		ID:          uuid.New(),
		JobID:       cap.JobID,
		RunID:       cap.RunID,
		Fingerprint: cap.Fingerprint,
		HTTPStatus:  cap.HTTPStatus,
		ETag:        cap.ETag,
		FetchedAt:   cap.FetchedAt,
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}

	artifacts := cap.Artifacts
	if len(artifacts.Data) == 0 && cap.Fields != nil {
		data, err := json.MarshalIndent(cap.Fields, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal extracted fields: %w", err)
		}
		artifacts.Data = data
	}

	uploads := []struct {
		name string
		data []byte
		key  **string
	}{
		{models.ArtifactHTML, artifacts.HTML, &snap.HTMLKey},
		{models.ArtifactData, artifacts.Data, &snap.DataKey},
		{models.ArtifactScreenshot, artifacts.Screenshot, &snap.ScreenshotKey},
		{models.ArtifactPDF, artifacts.PDF, &snap.PDFKey},
		{models.ArtifactMarkdown, artifacts.Markdown, &snap.MarkdownKey},
	}

	for _, u := range uploads {
		if len(u.data) == 0 {
			continue
		}
		key := storage.SnapshotKey(cap.JobID, snap.ID, u.name)
		if err := s.blobs.Upload(ctx, key, u.data, storage.ArtifactContentType(u.name)); err != nil {
			return nil, fmt.Errorf("upload %s: %w", u.name, err)
		}
		k := key
		*u.key = &k
	}

	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}
	return snap, nil
}

// Latest returns the newest snapshot for a job, nil when none exists.
func (s *SnapshotService) Latest(ctx context.Context, jobID uuid.UUID) (*models.Snapshot, error) {
	return s.store.GetLatestSnapshot(ctx, jobID)
}
