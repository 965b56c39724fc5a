package provisioner

import (
	"context"
	"errors"

	"github.com/upb/org-control-plane/internal/observability"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of documents inserted per batch when copying
const DefaultBatchSize = 500

// ProvisionResult reports what EnsureCollection found
type ProvisionResult int

const (
	Created ProvisionResult = iota
	AlreadyExisted
)

func (r ProvisionResult) String() string {
	if r == AlreadyExisted {
		return "already_existed"
	}
	return "created"
}

// DropResult reports what DropCollection found
type DropResult int

const (
	Dropped DropResult = iota
	AlreadyAbsent
)

func (r DropResult) String() string {
	if r == AlreadyAbsent {
		return "already_absent"
	}
	return "dropped"
}

// Provisioner manages the physical existence and bulk content of tenant
// collections. Pre-existence on create and absence on drop are results, not
// errors; anything else the store reports comes back as a StorageError.
type Provisioner struct {
	store     repositories.DocumentStore
	batchSize int
	logger    *zap.Logger
}

// New creates a Provisioner. A non-positive batchSize uses DefaultBatchSize.
func New(store repositories.DocumentStore, batchSize int, logger *zap.Logger) *Provisioner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Provisioner{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// EnsureCollection creates the collection unless it already exists
func (p *Provisioner) EnsureCollection(ctx context.Context, name string) (ProvisionResult, error) {
	err := p.store.CreateCollection(ctx, name)
	switch {
	case err == nil:
		p.logger.Debug("collection created", zap.String("collection", name))
		return Created, nil
	case errors.Is(err, repositories.ErrCollectionExists):
		return AlreadyExisted, nil
	case errors.Is(err, repositories.ErrInvalidCollectionName):
		return Created, services.NewDomainError(services.ErrorTypeValidation, "organization name yields a collection name the store cannot hold", err)
	default:
		return Created, services.WrapStorage("failed to create collection", err)
	}
}

// DropCollection removes the collection; a missing collection is not an error
func (p *Provisioner) DropCollection(ctx context.Context, name string) (DropResult, error) {
	err := p.store.DropCollection(ctx, name)
	switch {
	case err == nil:
		p.logger.Debug("collection dropped", zap.String("collection", name))
		return Dropped, nil
	case errors.Is(err, repositories.ErrCollectionNotFound):
		return AlreadyAbsent, nil
	default:
		return Dropped, services.WrapStorage("failed to drop collection", err)
	}
}

// ListCollectionNames returns the set of existing collection names
func (p *Provisioner) ListCollectionNames(ctx context.Context) (map[string]struct{}, error) {
	names, err := p.store.ListCollectionNames(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to list collections", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

// CopyAll streams every document of source into destination in batches.
// Identities are stripped so the destination assigns fresh ones. A missing
// source copies nothing. It returns the number of documents copied.
func (p *Provisioner) CopyAll(ctx context.Context, source, destination string) (int, error) {
	cur, err := p.store.Find(ctx, source, repositories.Filter{}, repositories.FindOptions{})
	if err != nil {
		return 0, services.WrapStorage("failed to read source collection", err)
	}
	defer cur.Close(ctx)

	copied := 0
	batch := make([]repositories.Document, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.InsertMany(ctx, destination, batch); err != nil {
			return services.WrapStorage("failed to write destination collection", err)
		}
		copied += len(batch)
		observability.DocumentsCopiedTotal.Add(float64(len(batch)))
		batch = make([]repositories.Document, 0, p.batchSize)
		return nil
	}

	for cur.Next(ctx) {
		batch = append(batch, cur.Document().WithoutID())
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return copied, err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return copied, services.WrapStorage("failed to read source collection", err)
	}
	if err := flush(); err != nil {
		return copied, err
	}

	p.logger.Info("collection copied",
		zap.String("source", source),
		zap.String("destination", destination),
		zap.Int("documents", copied))
	return copied, nil
}
