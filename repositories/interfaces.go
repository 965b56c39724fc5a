package repositories

import (
	"context"
	"errors"

	"github.com/upb/org-control-plane/models"
)

// Store-level sentinels. Backends translate driver-specific conditions into these;
// anything else they return is an infrastructure failure.
var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDuplicateKey       = errors.New("duplicate key")
	// ErrInvalidCollectionName is returned for names the backend cannot store
	// without altering them, such as Postgres identifiers over 63 bytes.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// IDField is the key under which every backend exposes a document's identity
const IDField = "_id"

// Document is a schemaless record. Nested objects are map[string]interface{}.
type Document map[string]interface{}

// Filter matches documents whose value at each dotted path equals the given value
type Filter map[string]interface{}

// FindOptions controls ordering and size of a Find result
type FindOptions struct {
	// SortField orders results ascending by a dotted path; empty keeps store order
	SortField string
	// Limit caps the number of results; zero means unlimited
	Limit int
}

// Cursor streams the documents of a Find call
type Cursor interface {
	Next(ctx context.Context) bool
	Document() Document
	Err() error
	Close(ctx context.Context) error
}

// DocumentStore is the generic collection-management and CRUD capability the
// control plane is built on. Inserting into an absent collection creates it.
// Stores always assign a fresh identity on insert; any IDField in the input is ignored.
type DocumentStore interface {
	// CreateCollection returns ErrCollectionExists when the name is taken
	CreateCollection(ctx context.Context, name string) error

	// DropCollection returns ErrCollectionNotFound when nothing was dropped
	DropCollection(ctx context.Context, name string) error

	ListCollectionNames(ctx context.Context) ([]string, error)

	// EnsureUniqueIndex makes later inserts/updates that duplicate field fail with ErrDuplicateKey
	EnsureUniqueIndex(ctx context.Context, collection, field string) error

	InsertOne(ctx context.Context, collection string, doc Document) (string, error)
	InsertMany(ctx context.Context, collection string, docs []Document) error

	// FindOne returns ErrDocumentNotFound when no document matches
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)

	// Find on an absent collection yields an empty cursor
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) (Cursor, error)

	// UpdateOne sets top-level fields of the document with the given id
	UpdateOne(ctx context.Context, collection, id string, set Document) error
	DeleteOne(ctx context.Context, collection, id string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// OrganizationRepository handles organization metadata records
type OrganizationRepository interface {
	// EnsureIndexes provisions the metadata collection and its unique name index
	EnsureIndexes(ctx context.Context) error

	// Create inserts the record and sets org.ID
	Create(ctx context.Context, org *models.Organization) error

	// GetByName returns ErrDocumentNotFound when absent
	GetByName(ctx context.Context, name string) (*models.Organization, error)

	GetByID(ctx context.Context, id string) (*models.Organization, error)

	// FindByAdminEmail returns every record whose admin has the email, oldest first
	FindByAdminEmail(ctx context.Context, email string) ([]*models.Organization, error)

	List(ctx context.Context) ([]*models.Organization, error)

	// Update rewrites name, derived identifiers and admin of the record with org.ID
	Update(ctx context.Context, org *models.Organization) error

	Delete(ctx context.Context, id string) error
}

// AuditRepository handles audit log entries
type AuditRepository interface {
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByOrganization returns the entries of one organization id, oldest
	// first. The id is stable across renames.
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error)
}

// Repositories aggregates the store handle and the repositories built on it
type Repositories struct {
	Store         DocumentStore
	Organizations OrganizationRepository
	AuditLogs     AuditRepository
}

// NewRepositories builds the document-backed repositories over one store handle
func NewRepositories(store DocumentStore, orgCollection, auditCollection string) *Repositories {
	return &Repositories{
		Store:         store,
		Organizations: NewOrganizationRepository(store, orgCollection),
		AuditLogs:     NewAuditRepository(store, auditCollection),
	}
}
