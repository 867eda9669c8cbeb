package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

// PasswordResetRepository implements port.PasswordResetRepository on a MongoDB collection.
type PasswordResetRepository struct {
	collection *mongo.Collection
}

// NewPasswordResetRepository binds the repository to the reset collection of db.
func NewPasswordResetRepository(db *mongo.Database) *PasswordResetRepository {
	return &PasswordResetRepository{collection: db.Collection(passwordResetsCollection)}
}

// Create upserts the account's record; the last writer wins.
func (r *PasswordResetRepository) Create(ctx context.Context, record domain.PasswordResetRecord) error {
	doc := newPasswordResetDocument(record)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.AccountID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert password reset: %w", err)
	}
	return nil
}

func (r *PasswordResetRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.PasswordResetRecord, error) {
	var doc passwordResetDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": accountID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find password reset: %w", err)
	}

	record := doc.toDomain()
	return &record, nil
}

// Consume deletes the record only while it matches tokenHash and is unexpired.
func (r *PasswordResetRepository) Consume(ctx context.Context, accountID, tokenHash string, now time.Time) error {
	res, err := r.collection.DeleteOne(ctx, consumeFilter(accountID, tokenHash, now))
	if err != nil {
		return fmt.Errorf("consume password reset: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func consumeFilter(accountID, tokenHash string, now time.Time) bson.M {
	return bson.M{
		"_id":    accountID,
		"token":  tokenHash,
		"expire": bson.M{"$gt": now.UTC()},
	}
}

var _ port.PasswordResetRepository = (*PasswordResetRepository)(nil)
