package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// ErrInvalidCredentials is returned when authentication fails. It does not
// distinguish unknown emails from wrong passwords.
var ErrInvalidCredentials = errors.New("invalid email or password")

// User is a registered account. The relay core never reads this; identity
// reaches it as an opaque display name.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           int64     `bun:",pk,autoincrement"`
	FullName     string    `bun:",notnull"`
	Email        string    `bun:",unique,notnull"`
	PasswordHash string    `bun:",notnull"`
	ProfileImage string    `bun:",nullzero"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	LastLogin    time.Time `bun:",nullzero"`
}

// Users is the account repository.
type Users struct {
	db *bun.DB
}

func NewUsers(db *bun.DB) *Users {
	return &Users{db: db}
}

// Register creates an account with a bcrypt-hashed password.
func (u *Users) Register(ctx context.Context, fullName, email, password string) (*User, error) {
	exists, err := u.db.NewSelect().Model((*User)(nil)).Where("email = ?", email).Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("store: hash password: %w", err)
	}

	user := &User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := u.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the credentials and records the login time.
func (u *Users) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user := new(User)
	err := u.db.NewSelect().Model(user).Where("email = ?", email).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("store: load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	user.LastLogin = time.Now().UTC()
	if _, err := u.db.NewUpdate().Model(user).Column("last_login").WherePK().Exec(ctx); err != nil {
		return nil, fmt.Errorf("store: record login: %w", err)
	}
	return user, nil
}

// ByID loads one account.
func (u *Users) ByID(ctx context.Context, id int64) (*User, error) {
	user := new(User)
	if err := u.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: load user %d: %w", id, err)
	}
	return user, nil
}

// SetProfileImage updates the account's profile image filename.
func (u *Users) SetProfileImage(ctx context.Context, id int64, filename string) error {
	_, err := u.db.NewUpdate().Model((*User)(nil)).
		Set("profile_image = ?", filename).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: set profile image: %w", err)
	}
	return nil
}
