package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/org-control-plane/models"
)

// Field names of an organization metadata document
const (
	FieldOrganizationName = "organization_name"
	FieldNormalizedName   = "normalized_name"
	FieldCollectionName   = "collection_name"
	FieldAdmin            = "admin"
	FieldAdminEmail       = "admin.email"
	FieldCreatedAt        = "created_at"
)

type organizationRepository struct {
	store      DocumentStore
	collection string
}

// NewOrganizationRepository stores Organization records as documents in collection
func NewOrganizationRepository(store DocumentStore, collection string) OrganizationRepository {
	if collection == "" {
		collection = models.Organization{}.TableName()
	}
	return &organizationRepository{store: store, collection: collection}
}

func (r *organizationRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.store.CreateCollection(ctx, r.collection); err != nil && !errors.Is(err, ErrCollectionExists) {
		return fmt.Errorf("failed to create %s collection: %w", r.collection, err)
	}
	if err := r.store.EnsureUniqueIndex(ctx, r.collection, FieldOrganizationName); err != nil {
		return fmt.Errorf("failed to ensure unique organization name index: %w", err)
	}
	return nil
}

func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	id, err := r.store.InsertOne(ctx, r.collection, toDocument(org))
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.ID = id
	return nil
}

func (r *organizationRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	return r.findOne(ctx, Filter{FieldOrganizationName: name})
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.findOne(ctx, Filter{IDField: id})
}

func (r *organizationRepository) findOne(ctx context.Context, filter Filter) (*models.Organization, error) {
	doc, err := r.store.FindOne(ctx, r.collection, filter)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return fromDocument(doc)
}

func (r *organizationRepository) FindByAdminEmail(ctx context.Context, email string) ([]*models.Organization, error) {
	return r.find(ctx, Filter{FieldAdminEmail: email})
}

func (r *organizationRepository) List(ctx context.Context) ([]*models.Organization, error) {
	return r.find(ctx, Filter{})
}

func (r *organizationRepository) find(ctx context.Context, filter Filter) ([]*models.Organization, error) {
	cur, err := r.store.Find(ctx, r.collection, filter, FindOptions{SortField: FieldCreatedAt})
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	docs, err := ReadAll(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("failed to read organizations: %w", err)
	}

	orgs := make([]*models.Organization, 0, len(docs))
	for _, doc := range docs {
		org, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func (r *organizationRepository) Update(ctx context.Context, org *models.Organization) error {
	set := Document{
		FieldOrganizationName: org.OrganizationName,
		FieldNormalizedName:   org.NormalizedName,
		FieldCollectionName:   org.CollectionName,
		FieldAdmin:            adminDocument(org.Admin),
	}
	if err := r.store.UpdateOne(ctx, r.collection, org.ID, set); err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}

func (r *organizationRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteOne(ctx, r.collection, id); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

func adminDocument(a models.AdminPrincipal) map[string]interface{} {
	return map[string]interface{}{
		"email":    a.Email,
		"password": a.PasswordHash,
	}
}

func toDocument(org *models.Organization) Document {
	return Document{
		FieldOrganizationName: org.OrganizationName,
		FieldNormalizedName:   org.NormalizedName,
		FieldCollectionName:   org.CollectionName,
		FieldAdmin:            adminDocument(org.Admin),
		FieldCreatedAt:        org.CreatedAt,
	}
}

func fromDocument(doc Document) (*models.Organization, error) {
	org := &models.Organization{ID: doc.ID()}
	org.OrganizationName, _ = doc[FieldOrganizationName].(string)
	org.NormalizedName, _ = doc[FieldNormalizedName].(string)
	org.CollectionName, _ = doc[FieldCollectionName].(string)

	if admin, ok := asMap(doc[FieldAdmin]); ok {
		org.Admin.Email, _ = admin["email"].(string)
		org.Admin.PasswordHash, _ = admin["password"].(string)
	}

	created, err := DecodeTime(doc[FieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", org.ID, err)
	}
	org.CreatedAt = created
	return org, nil
}
