package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/Yulian302/lfusys-services-uploads/caching"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/store"
)

const filesListCacheTTL = 5 * time.Minute

type FileService interface {
	ListFiles(ctx context.Context) ([]models.FileWithURL, error)
}

type FileServiceImpl struct {
	fileStore         store.FileStore
	storage           store.MultipartStorage
	listing           *caching.ListingCache
	downloadURLExpiry time.Duration

	logger logger.Logger
}

func NewFileServiceImpl(
	fileStore store.FileStore,
	storage store.MultipartStorage,
	cachingSvc caching.CachingService,
	downloadURLExpiry time.Duration,
	l logger.Logger,
) *FileServiceImpl {
	return &FileServiceImpl{
		fileStore:         fileStore,
		storage:           storage,
		listing:           caching.NewListingCache(cachingSvc, FilesListCacheKey, filesListCacheTTL),
		downloadURLExpiry: downloadURLExpiry,
		logger:            l,
	}
}

// ListFiles returns every record, newest first, each with a download URL minted
// for this call. Only records are cached, never URLs.
func (svc *FileServiceImpl) ListFiles(ctx context.Context) ([]models.FileWithURL, error) {
	files, err := svc.records(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.FileWithURL, 0, len(files))
	for _, f := range files {
		u, err := svc.storage.GenerateDownloadUrl(ctx, f.S3Key, svc.downloadURLExpiry)
		if err != nil {
			svc.logger.Error("failed to generate download url", "key", f.S3Key, "error", err)
			return nil, apperror.New("listFiles", apperror.ErrMetadata, err).WithKey(f.S3Key)
		}
		out = append(out, models.FileWithURL{File: f, DownloadURL: u})
	}
	return out, nil
}

func (svc *FileServiceImpl) records(ctx context.Context) ([]models.File, error) {
	gen, genErr := svc.listing.Generation(ctx)
	if genErr == nil {
		if cached, err := svc.listing.Get(ctx, gen); err == nil {
			var files []models.File
			if err := json.Unmarshal(cached, &files); err == nil {
				return files, nil
			}
			svc.logger.Warn("dropping undecodable cached listing")
		}
	} else {
		svc.logger.Warn("files listing cache unavailable", "error", genErr)
	}

	files, err := svc.fileStore.List(ctx)
	if err != nil {
		svc.logger.Error("failed to list files", "error", err)
		return nil, err
	}
	store.SortNewestFirst(files)

	if genErr != nil {
		return files, nil
	}
	if data, err := json.Marshal(files); err == nil {
		if err := svc.listing.Set(ctx, gen, data); err != nil {
			svc.logger.Warn("failed to cache files listing", "error", err)
		}
	}
	return files, nil
}
