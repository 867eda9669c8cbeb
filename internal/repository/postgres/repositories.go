package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts       *AccountRepository
	PasswordResets *PasswordResetRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Accounts:       NewAccountRepository(exec),
		PasswordResets: NewPasswordResetRepository(exec),
	}
}
