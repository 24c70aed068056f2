package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	ID        string             `bson:"_id"`
	UserID    string             `bson:"user_id"`
	Items     []cartItemDocument `bson:"items"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type cartItemDocument struct {
	ID          string               `bson:"item_id"`
	ProductID   int64                `bson:"product_id"`
	ProductName string               `bson:"product_name"`
	UnitPrice   primitive.Decimal128 `bson:"unit_price"`
	Quantity    int                  `bson:"quantity"`
	ImageURL    string               `bson:"image_url"`
	AddedAt     time.Time            `bson:"added_at"`
}

type MongoCartRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
}

func NewMongoCartRepository(db *mongo.Database, ttl time.Duration) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
		ttl:        ttl,
	}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	if cart.ID == "" {
		doc, err := newCartDocument(cart, uuid.NewString(), 1, now)
		if err != nil {
			return err
		}
		if _, err := m.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert cart: %w", err)
		}
		cart.ID, cart.Version, cart.UpdatedAt = doc.ID, doc.Version, now
		return nil
	}

	doc, err := newCartDocument(cart, cart.ID, cart.Version+1, now)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": cart.ID, "user_id": cart.UserID, "version": cart.Version}
	result, err := m.collection.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to replace cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}
	cart.Version, cart.UpdatedAt = doc.Version, now
	return nil
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, cart *domain.Cart) error {
	filter := bson.M{"_id": cart.ID, "user_id": cart.UserID, "version": cart.Version}
	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount > 0 {
		return nil
	}

	count, err := m.collection.CountDocuments(ctx, bson.M{"user_id": cart.UserID})
	if err != nil {
		return fmt.Errorf("failed to check cart: %w", err)
	}
	if count == 0 {
		return ErrCartNotFound
	}
	return ErrVersionConflict
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if m.ttl > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(m.ttl.Seconds())),
		})
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func newCartDocument(cart *domain.Cart, id string, version int64, now time.Time) (*cartDocument, error) {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		price, err := primitive.ParseDecimal128(item.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("encode price for product %d: %w", item.ProductID, err)
		}
		items = append(items, cartItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   price,
			Quantity:    item.Quantity,
			ImageURL:    item.ImageURL,
			AddedAt:     item.AddedAt,
		})
	}
	return &cartDocument{
		ID:        id,
		UserID:    cart.UserID,
		Items:     items,
		Version:   version,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: now,
	}, nil
}

func (d *cartDocument) toDomain() (*domain.Cart, error) {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		price, err := decimal.NewFromString(item.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("decode price for product %d: %w", item.ProductID, err)
		}
		items = append(items, domain.CartItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   price,
			Quantity:    item.Quantity,
			ImageURL:    item.ImageURL,
			AddedAt:     item.AddedAt,
		})
	}
	return &domain.Cart{
		ID:        d.ID,
		UserID:    d.UserID,
		Items:     items,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}
