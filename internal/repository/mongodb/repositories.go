package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories groups MongoDB-backed repository implementations.
type Repositories struct {
	Accounts       *AccountRepository
	PasswordResets *PasswordResetRepository
}

// NewRepositories wires every repository against db and creates the indexes they depend on.
func NewRepositories(ctx context.Context, db *mongo.Database) (*Repositories, error) {
	repos := &Repositories{
		Accounts:       NewAccountRepository(db),
		PasswordResets: NewPasswordResetRepository(db),
	}
	if err := repos.Accounts.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return repos, nil
}
