package scylla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/util"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// PreparedStatements holds the statements used by the repositories.
type PreparedStatements struct {
	GetUser            *gocql.Query
	CreateUser         *gocql.Query
	UpdateUserAttempts *gocql.Query
	SetUserLocked      *gocql.Query

	GetAdmin       *gocql.Query
	SetAdminLocked *gocql.Query

	GetUserLog  *gocql.Query
	PutUserLog  *gocql.Query
	GetAdminLog *gocql.Query
	PutAdminLog *gocql.Query

	GetPending       *gocql.Query
	CreatePending    *gocql.Query
	DeletePending    *gocql.Query
	GetPendingLog    *gocql.Query
	PutPendingLog    *gocql.Query
	DeletePendingLog *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.GetUser = s.Session.Query(`
        SELECT email, name, surname, phone_encrypted, phone_key_id,
            password_hash, sec_password_hash, role, two_fa_method,
            login_attempts, locked
        FROM users WHERE email = ?`)

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            email, name, surname, phone_encrypted, phone_key_id,
            password_hash, sec_password_hash, role, two_fa_method,
            login_attempts, locked
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.UpdateUserAttempts = s.Session.Query(`
        UPDATE users SET login_attempts = ? WHERE email = ?`)

	prepared.SetUserLocked = s.Session.Query(`
        UPDATE users SET locked = ?, login_attempts = ? WHERE email = ?`)

	prepared.GetAdmin = s.Session.Query(`
        SELECT name_hash, name, surname, email, password_hash, role, locked
        FROM admins WHERE name_hash = ?`)

	prepared.SetAdminLocked = s.Session.Query(`
        UPDATE admins SET locked = ? WHERE name_hash = ?`)

	prepared.GetUserLog = s.Session.Query(`
        SELECT owner_key, records FROM user_log WHERE owner_key = ?`)

	prepared.PutUserLog = s.Session.Query(`
        INSERT INTO user_log (owner_key, records) VALUES (?, ?)`)

	prepared.GetAdminLog = s.Session.Query(`
        SELECT owner_key, records FROM admin_log WHERE owner_key = ?`)

	prepared.PutAdminLog = s.Session.Query(`
        INSERT INTO admin_log (owner_key, records) VALUES (?, ?)`)

	prepared.GetPending = s.Session.Query(`
        SELECT email, name, surname, phone_encrypted, phone_key_id,
            password_hash, sec_password_hash, role, two_fa_method,
            login_attempts, locked
        FROM pending_users WHERE email = ?`)

	prepared.CreatePending = s.Session.Query(`
        INSERT INTO pending_users (
            email, name, surname, phone_encrypted, phone_key_id,
            password_hash, sec_password_hash, role, two_fa_method,
            login_attempts, locked
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.DeletePending = s.Session.Query(`
        DELETE FROM pending_users WHERE email = ?`)

	prepared.GetPendingLog = s.Session.Query(`
        SELECT owner_key, records FROM pending_log WHERE owner_key = ?`)

	prepared.PutPendingLog = s.Session.Query(`
        INSERT INTO pending_log (owner_key, records) VALUES (?, ?)`)

	prepared.DeletePendingLog = s.Session.Query(`
        DELETE FROM pending_log WHERE owner_key = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
