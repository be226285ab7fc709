package images

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Storage persists image bytes and returns a public location.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// PostImageUpdater records the outcome of an image upload against its post.
type PostImageUpdater interface {
	MarkImageReady(ctx context.Context, postID, location string) error
	MarkImageFailed(ctx context.Context, postID string) error
}

// IngestorConfig controls the concurrency characteristics of the ingestor.
type IngestorConfig struct {
	QueueSize int
	Workers   int
}

// UploadJob carries decoded image bytes destined for object storage.
type UploadJob struct {
	PostID string
	Name   string
	Data   []byte
}

var errIngestorClosed = errors.New("image ingestor closed")

const uploadTimeout = 30 * time.Second

// Ingestor asynchronously uploads post images and flips the post's image
// status from pending to ready or failed.
type Ingestor struct {
	storage Storage
	updater PostImageUpdater
	logger  *slog.Logger

	jobs   chan UploadJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewIngestor constructs a background worker pool that persists post images.
func NewIngestor(storage Storage, updater PostImageUpdater, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	ing := &Ingestor{
		storage: storage,
		updater: updater,
		logger:  logger,
		jobs:    make(chan UploadJob, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	ing.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go ing.worker()
	}

	return ing
}

// Enqueue schedules an image upload for the supplied post.
func (i *Ingestor) Enqueue(ctx context.Context, job UploadJob) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	case i.jobs <- job:
		return nil
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (i *Ingestor) Shutdown(ctx context.Context) error {
	i.once.Do(func() {
		i.cancel()
		close(i.jobs)
	})

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (i *Ingestor) worker() {
	defer i.wg.Done()

	for {
		select {
		case <-i.ctx.Done():
			return
		case job, ok := <-i.jobs:
			if !ok {
				return
			}
			i.handleJob(job)
		}
	}
}

func (i *Ingestor) handleJob(job UploadJob) {
	if i.storage == nil || i.updater == nil {
		i.logger.Error("image ingestor missing dependencies", "hasStorage", i.storage != nil, "hasUpdater", i.updater != nil)
		return
	}

	uploadCtx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	location, err := i.storage.Save(uploadCtx, job.Name, bytes.NewReader(job.Data))
	if err != nil {
		i.logger.Error("image upload failed", "postId", job.PostID, "name", job.Name, "error", err)
		i.recordFailure(job.PostID)
		return
	}

	if err := i.recordSuccess(job.PostID, location); err != nil {
		i.logger.Error("mark image ready", "postId", job.PostID, "error", err)
		i.recordFailure(job.PostID)
	}
}

func (i *Ingestor) recordFailure(postID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := i.updater.MarkImageFailed(ctx, postID); err != nil {
		i.logger.Error("record image failure", "postId", postID, "error", err)
	}
}

func (i *Ingestor) recordSuccess(postID, location string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return i.updater.MarkImageReady(ctx, postID, location)
}
