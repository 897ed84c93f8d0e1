package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gemvault/api/internal/platform/requestctx"
	"github.com/gemvault/api/internal/platform/storage"
)

const (
	fieldProductCover      = "product_cover"
	fieldVariantImages     = "variant_images"
	maxImageSize           = 5 << 20
	defaultUploadWorkers   = 4
	defaultMultipartMemory = 32 << 20
	defaultMaxFormBody     = 64 << 20
)

var errInvalidUpload = errors.New("invalid upload")

// storedFiles maps a multipart field name to the stored object names, in submission order.
type storedFiles map[string][]string

func (s storedFiles) all() []string {
	var out []string
	for _, names := range s {
		out = append(out, names...)
	}
	return out
}

// imageUploader writes multipart image files to the blob store.
type imageUploader struct {
	store       storage.BlobStore
	concurrency int
	clock       func() time.Time
}

func newImageUploader(store storage.BlobStore, concurrency int) *imageUploader {
	if concurrency <= 0 {
		concurrency = defaultUploadWorkers
	}
	return &imageUploader{store: store, concurrency: concurrency, clock: time.Now}
}

type uploadJob struct {
	field  string
	index  int
	header *multipart.FileHeader
}

// storeAll validates every file first, then stores them concurrently. On failure the files
// already written are removed.
func (u *imageUploader) storeAll(ctx context.Context, form *multipart.Form) (storedFiles, error) {
	result := storedFiles{}
	if form == nil || len(form.File) == 0 {
		return result, nil
	}

	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var jobs []uploadJob
	names := make(map[string][]string, len(fields))
	now := u.clock()
	for _, field := range fields {
		purpose, ok := purposeForField(field)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected file field %q", errInvalidUpload, field)
		}
		headers := form.File[field]
		names[field] = make([]string, len(headers))
		for i, header := range headers {
			if header.Size > maxImageSize {
				return nil, fmt.Errorf("%w: %s exceeds %d bytes", errInvalidUpload, header.Filename, maxImageSize)
			}
			name, err := storage.ObjectName(purpose, header.Filename, now)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidUpload, err)
			}
			names[field][i] = name
			jobs = append(jobs, uploadJob{field: field, index: i, header: header})
		}
	}
	if u.store == nil {
		return nil, errors.New("blob store is not configured")
	}

	stored := make([]bool, len(jobs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(u.concurrency)
	for i, job := range jobs {
		group.Go(func() error {
			if err := u.put(groupCtx, names[job.field][job.index], job.header); err != nil {
				return err
			}
			stored[i] = true
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		written := storedFiles{}
		for i, job := range jobs {
			if stored[i] {
				written[job.field] = append(written[job.field], names[job.field][job.index])
			}
		}
		u.discard(ctx, written)
		return nil, err
	}

	for field, list := range names {
		result[field] = list
	}
	return result, nil
}

func (u *imageUploader) put(ctx context.Context, name string, header *multipart.FileHeader) error {
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()
	if err := u.store.Put(ctx, name, header.Header.Get("Content-Type"), file); err != nil {
		return fmt.Errorf("store %s: %w", header.Filename, err)
	}
	return nil
}

// discard removes stored files after a failed request. Failures are logged only.
func (u *imageUploader) discard(ctx context.Context, files storedFiles) {
	if u == nil || u.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, name := range files.all() {
		if err := u.store.Delete(ctx, name); err != nil {
			requestctx.Logger(ctx).Warn("failed to remove orphaned upload", zap.String("object", name), zap.Error(err))
		}
	}
}

func purposeForField(field string) (storage.ImagePurpose, bool) {
	switch {
	case field == fieldProductCover:
		return storage.PurposeProductCover, true
	case strings.HasPrefix(field, fieldVariantImages):
		return storage.PurposeVariantImage, true
	default:
		return "", false
	}
}
