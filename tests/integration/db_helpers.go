package integration

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/veridia/wellguard/db"
	"github.com/veridia/wellguard/internal/database"
	"github.com/veridia/wellguard/internal/models"
	"github.com/veridia/wellguard/internal/repositories"
)

// TestDB manages the PostgreSQL testcontainer and its connection pool
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts a PostgreSQL container and applies the
// embedded migrations
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("wellguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// Teardown stops the container and closes the connection pool
func (t *TestDB) Teardown(ctx context.Context) error {
	if t.Pool != nil {
		t.Pool.Close()
	}
	if t.Container != nil {
		return t.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (t *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"device_fingerprints",
		"sessions",
		"password_reset_tokens",
		"account_lockouts",
		"login_attempts",
		"users",
	}

	for _, table := range tables {
		if _, err := t.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// SeedUser inserts a test user with a bcrypt-hashed password
func (t *TestDB) SeedUser(ctx context.Context, email, password string) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return repositories.NewUserRepository(t.DB).Create(ctx, &models.User{
		Email:        email,
		PasswordHash: string(hashed),
		Name:         "Test User",
		Role:         "patient",
		Status:       "active",
	})
}

// SeedResetToken inserts a usable reset token and returns its plaintext
func (t *TestDB) SeedResetToken(ctx context.Context, userID, email string) (plaintext, tokenID string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	plaintext = hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(plaintext))
	tokenHash := hex.EncodeToString(digest[:])

	created, err := repositories.NewResetTokenRepository(t.DB).Create(ctx, &models.PasswordResetToken{
		UserID:           userID,
		TokenHash:        tokenHash,
		ExpiresAt:        time.Now().Add(time.Hour),
		RequestedByEmail: email,
		IPAddress:        "198.51.100.4",
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to insert reset token: %w", err)
	}
	return plaintext, created.ID, nil
}

// SeedSession inserts an active session for the user
func SeedSession(ctx context.Context, pool *pgxpool.Pool, userID, token string) (string, error) {
	query := `
		INSERT INTO sessions (user_id, session_token, ip_address, user_agent, login_method, expires_at)
		VALUES ($1, $2, '198.51.100.4', 'test-agent', 'password', NOW() + INTERVAL '7 days')
		RETURNING id
	`

	var id string
	if err := pool.QueryRow(ctx, query, userID, token).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}
