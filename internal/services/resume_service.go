package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/adminlove520/EasyJob/internal/models"
	pgrepo "github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/storage"
	"github.com/adminlove520/EasyJob/internal/utils"
)

const fileURLTTL = 15 * time.Minute

type ResumeService interface {
	Create(ctx context.Context, ownerID uint, title string, content datatypes.JSON, skills []string) (*models.Resume, error)
	Get(ctx context.Context, ownerID, resumeID uint) (*models.Resume, error)
	List(ctx context.Context, ownerID uint) ([]models.Resume, error)
	Delete(ctx context.Context, ownerID, resumeID uint) error

	// AttachFile uploads the original resume document and records its object
	// key on the resume.
	AttachFile(ctx context.Context, ownerID, resumeID uint, fileName, mimeType string, r io.Reader) (*models.Resume, error)
	// FileURL returns a short-lived signed URL for the stored original.
	FileURL(ctx context.Context, ownerID, resumeID uint) (string, error)
}

type resumeService struct {
	repo     pgrepo.ResumeRepository
	uploader storage.Uploader
	signer   storage.Signer
}

func NewResumeService(repo pgrepo.ResumeRepository, uploader storage.Uploader, signer storage.Signer) ResumeService {
	return &resumeService{repo: repo, uploader: uploader, signer: signer}
}

func (s *resumeService) Create(ctx context.Context, ownerID uint, title string, content datatypes.JSON, skills []string) (*models.Resume, error) {
	const op = "ResumeService.Create"

	if ownerID == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "owner_id is required", nil)
	}
	if title == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "title is required", nil)
	}

	row := &models.Resume{
		Title:   title,
		Content: content,
		Skills:  skills,
		OwnerID: ownerID,
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create resume", err)
	}
	return row, nil
}

// owned loads the resume and enforces ownership; callers see not-found for
// other users' resumes rather than forbidden.
func (s *resumeService) owned(ctx context.Context, op string, ownerID, resumeID uint) (*models.Resume, error) {
	row, err := s.repo.GetByID(ctx, resumeID)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.E(utils.CodeNotFound, op, "resume not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load resume", err)
	}
	if row.OwnerID != ownerID {
		return nil, utils.E(utils.CodeNotFound, op, "resume not found", nil)
	}
	return row, nil
}

func (s *resumeService) Get(ctx context.Context, ownerID, resumeID uint) (*models.Resume, error) {
	return s.owned(ctx, "ResumeService.Get", ownerID, resumeID)
}

func (s *resumeService) List(ctx context.Context, ownerID uint) ([]models.Resume, error) {
	const op = "ResumeService.List"

	rows, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list resumes", err)
	}
	return rows, nil
}

func (s *resumeService) Delete(ctx context.Context, ownerID, resumeID uint) error {
	const op = "ResumeService.Delete"

	if _, err := s.owned(ctx, op, ownerID, resumeID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, resumeID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete resume", err)
	}
	return nil
}

func (s *resumeService) AttachFile(ctx context.Context, ownerID, resumeID uint, fileName, mimeType string, r io.Reader) (*models.Resume, error) {
	const op = "ResumeService.AttachFile"

	if s.uploader == nil {
		return nil, utils.E(utils.CodeInternal, op, "uploader is not configured", nil)
	}
	row, err := s.owned(ctx, op, ownerID, resumeID)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("resumes/%d/%s%s", resumeID, uuid.NewString(), path.Ext(fileName))
	storedPath, err := s.uploader.Upload(ctx, objectName, mimeType, r)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to upload resume file", err)
	}

	row.OriginalFilename = fileName
	row.FilePath = storedPath
	if err := s.repo.Update(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist resume file metadata", err)
	}
	return row, nil
}

func (s *resumeService) FileURL(ctx context.Context, ownerID, resumeID uint) (string, error) {
	const op = "ResumeService.FileURL"

	if s.signer == nil {
		return "", utils.E(utils.CodeInternal, op, "signer is not configured", nil)
	}
	row, err := s.owned(ctx, op, ownerID, resumeID)
	if err != nil {
		return "", err
	}
	if row.FilePath == "" {
		return "", utils.E(utils.CodeNotFound, op, "resume has no stored file", nil)
	}

	url, err := s.signer.SignedGetURL(ctx, row.FilePath, fileURLTTL)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign file url", err)
	}
	return url, nil
}
