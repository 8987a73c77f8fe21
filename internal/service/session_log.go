package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/fingerprint"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/repository/scylla"
)

const logStripes = 64

// SessionLogService appends login records to per-account histories and trims
// them to the configured size. Appends to the same account are serialized
// through striped locks so the read-trim-write cycle never interleaves.
type SessionLogService struct {
	logRepo     scylla.LoginLogRepository
	historySize int
	stripes     [logStripes]sync.Mutex

	now func() time.Time
}

func NewSessionLogService(logRepo scylla.LoginLogRepository, cfg *config.Config) *SessionLogService {
	return &SessionLogService{
		logRepo:     logRepo,
		historySize: cfg.Security.LoginHistorySize,
		now:         time.Now,
	}
}

func (s *SessionLogService) stripe(ownerKey string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerKey))
	return &s.stripes[h.Sum32()%logStripes]
}

// Append records a successful login. The stored history keeps at most
// historySize entries, dropping the oldest first.
func (s *SessionLogService) Append(ctx context.Context, role, ownerKey string, fp *fingerprint.Normalized) error {
	mu := s.stripe(ownerKey)
	mu.Lock()
	defer mu.Unlock()

	log, err := s.logRepo.GetLog(ctx, role, ownerKey)
	if err != nil {
		return err
	}

	record := models.LoginRecord{
		Time:        s.now().UTC(),
		Fingerprint: fp,
	}

	log.Records = append(log.Records, record)
	if excess := len(log.Records) - s.historySize; excess > 0 {
		log.Records = log.Records[excess:]
	}

	return s.logRepo.PutLog(ctx, role, log)
}

// Latest returns the most recent login record, or nil for a fresh account.
func (s *SessionLogService) Latest(ctx context.Context, role, ownerKey string) (*models.LoginRecord, error) {
	log, err := s.logRepo.GetLog(ctx, role, ownerKey)
	if err != nil {
		return nil, err
	}
	return log.Latest(), nil
}
