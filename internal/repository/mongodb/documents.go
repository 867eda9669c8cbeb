package mongodb

import (
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
)

const (
	accountsCollection       = "users"
	passwordResetsCollection = "userpasswordresets"
)

type accountDocument struct {
	ID           string         `bson:"_id"`
	Email        string         `bson:"email"`
	PasswordHash string         `bson:"password"`
	Confirmed    bool           `bson:"confirmed"`
	Form         map[string]any `bson:"form"`
	CreatedAt    time.Time      `bson:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"`
}

// passwordResetDocument is keyed by account id so the collection holds at most one record per account.
type passwordResetDocument struct {
	AccountID string    `bson:"_id"`
	TokenHash string    `bson:"token"`
	ExpiresAt time.Time `bson:"expire"`
	CreatedAt time.Time `bson:"created_at"`
}

func newAccountDocument(account domain.Account) accountDocument {
	form := map[string]any(account.Form)
	if form == nil {
		form = map[string]any(domain.EmptySignupForm())
	}
	return accountDocument{
		ID:           account.ID,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Confirmed:    account.Confirmed,
		Form:         form,
		CreatedAt:    account.CreatedAt.UTC(),
		UpdatedAt:    account.UpdatedAt.UTC(),
	}
}

func (d accountDocument) toDomain() domain.Account {
	return domain.Account{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Confirmed:    d.Confirmed,
		Form:         domain.SignupForm(d.Form),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func newPasswordResetDocument(record domain.PasswordResetRecord) passwordResetDocument {
	return passwordResetDocument{
		AccountID: record.AccountID,
		TokenHash: record.TokenHash,
		ExpiresAt: record.ExpiresAt.UTC(),
		CreatedAt: record.CreatedAt.UTC(),
	}
}

func (d passwordResetDocument) toDomain() domain.PasswordResetRecord {
	return domain.PasswordResetRecord{
		AccountID: d.AccountID,
		TokenHash: d.TokenHash,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
	}
}

// accountUpdateSet renders the $set document for an update; it is empty when nothing changes.
func accountUpdateSet(update domain.AccountUpdate, now time.Time) map[string]any {
	set := map[string]any{}
	if update.PasswordHash != nil {
		set["password"] = *update.PasswordHash
	}
	if update.Confirmed != nil {
		set["confirmed"] = *update.Confirmed
	}
	if update.Form != nil {
		set["form"] = map[string]any(update.Form)
	}
	if len(set) > 0 {
		set["updated_at"] = now.UTC()
	}
	return set
}
