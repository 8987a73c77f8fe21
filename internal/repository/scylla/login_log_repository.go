package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"blackjack-auth/internal/models"
	"blackjack-auth/internal/util"
)

// LoginLogRepository reads and rewrites per-account login histories. Records
// are stored as a list of JSON documents; trimming to the history size happens
// in the service layer, the repository stores whatever it is given.
type LoginLogRepository interface {
	GetLog(ctx context.Context, role, ownerKey string) (*models.LoginLog, error)
	PutLog(ctx context.Context, role string, log *models.LoginLog) error
}

type ScyllaLoginLogRepository struct {
	client *ScyllaClient
}

func NewLoginLogRepository(client *ScyllaClient) *ScyllaLoginLogRepository {
	return &ScyllaLoginLogRepository{client: client}
}

func (r *ScyllaLoginLogRepository) logQueries(role string) (get, put *gocql.Query, err error) {
	switch role {
	case models.RoleAdmin:
		return r.client.Prepared.GetAdminLog, r.client.Prepared.PutAdminLog, nil
	case models.RoleUser:
		return r.client.Prepared.GetUserLog, r.client.Prepared.PutUserLog, nil
	default:
		return nil, nil, fmt.Errorf("unknown account role %q", role)
	}
}

// GetLog returns the stored history for the account, or an empty log when the
// account has never logged in.
func (r *ScyllaLoginLogRepository) GetLog(ctx context.Context, role, ownerKey string) (*models.LoginLog, error) {
	getQuery, _, err := r.logQueries(role)
	if err != nil {
		return nil, err
	}

	var key string
	var raw []string
	query := getQuery.Bind(ownerKey).WithContext(ctx)

	if err := r.client.ScanWithRetry(query, &key, &raw); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return &models.LoginLog{OwnerKey: ownerKey}, nil
		}
		util.Error("Failed to get login log",
			zap.String("owner_key", ownerKey),
			zap.String("role", role),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get login log: %w", err)
	}

	return decodeLog(ownerKey, raw)
}

func (r *ScyllaLoginLogRepository) PutLog(ctx context.Context, role string, log *models.LoginLog) error {
	_, putQuery, err := r.logQueries(role)
	if err != nil {
		return err
	}

	raw, err := encodeRecords(log.Records)
	if err != nil {
		return err
	}

	query := putQuery.Bind(log.OwnerKey, raw).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to put login log",
			zap.String("owner_key", log.OwnerKey),
			zap.String("role", role),
			zap.Error(err))
		return fmt.Errorf("failed to put login log: %w", err)
	}

	return nil
}

func encodeRecords(records []models.LoginRecord) ([]string, error) {
	raw := make([]string, 0, len(records))
	for _, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode login record: %w", err)
		}
		raw = append(raw, string(doc))
	}
	return raw, nil
}

func decodeLog(ownerKey string, raw []string) (*models.LoginLog, error) {
	log := &models.LoginLog{
		OwnerKey: ownerKey,
		Records:  make([]models.LoginRecord, 0, len(raw)),
	}
	for _, doc := range raw {
		var rec models.LoginRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode login record: %w", err)
		}
		log.Records = append(log.Records, rec)
	}
	return log, nil
}
