package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV2 = 2
	codeRecordSize      = 30
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeAlreadyConsumed  = errors.New("verification code already consumed")
	ErrCodeExists           = errors.New("verification code already live")
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// Record layout (big-endian, timestamps in unix milliseconds to match PX):
//
//	version(1) consumed(1) createdAt(8) expiresAt(8) guardians(2) visitors(2) scheduleID(8)
//
// Both scripts only read the consumed flag and expiresAt, so they stay in
// sync with encodeCodeRecord through the offsets below.
const luaCodeHelpers = `
local function u64(data, offset)
  local v = 0
  for i = offset, offset + 7 do
    v = v * 256 + string.byte(data, i)
  end
  return v
end
`

// putCodeLua writes a record unless the key holds a live record or a
// consumed tombstone. Only unconsumed records past expiresAt may be replaced.
// KEYS[1] = record key
// ARGV[1] = encoded record
// ARGV[2] = ttl in milliseconds
// ARGV[3] = current unix time in milliseconds
var putCodeLua = redis.NewScript(luaCodeHelpers + `
local data = redis.call('GET', KEYS[1])
if data and string.byte(data, 1) == 2 then
  if string.byte(data, 2) ~= 0 or tonumber(ARGV[3]) <= u64(data, 11) then
    return {err='exists'}
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 'OK'
`)

// consumeCodeLua atomically flips the consumed flag of a live record and
// returns the record as it was before the flip.
// KEYS[1] = record key
// ARGV[1] = current unix time in milliseconds
//
// Errors: "not_found", "expired", "already_consumed".
var consumeCodeLua = redis.NewScript(luaCodeHelpers + `
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if string.byte(data, 1) ~= 2 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
if string.byte(data, 2) ~= 0 then
  return {err='already_consumed'}
end
if tonumber(ARGV[1]) > u64(data, 11) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local tombstone = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], tombstone, 'PX', ttlMs)
else
  redis.call('SET', KEYS[1], tombstone)
end
return data
`)

// CodeRecord is one stored code. CreatedAt and ExpiresAt are unix
// milliseconds.
type CodeRecord struct {
	ID         string
	Guardians  uint16
	Visitors   uint16
	ScheduleID int64
	CreatedAt  int64
	ExpiresAt  int64
	Consumed   bool
}

// CodeStore keeps outstanding verification codes in Redis. Put and Consume
// are single scripts, so concurrent calls on one key are serialized by Redis
// while different keys proceed independently.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "cpc"
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for record-level expiry checks.
func (s *CodeStore) WithClock(now func() time.Time) *CodeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *CodeStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *CodeStore) Put(ctx context.Context, record *CodeRecord, ttl time.Duration) error {
	if record == nil || record.ID == "" {
		return errors.New("code record id is required")
	}
	if ttl <= 0 {
		return errors.New("code record ttl must be > 0")
	}

	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	err = putCodeLua.Run(ctx, s.redis,
		[]string{s.key(record.ID)},
		encoded,
		ttl.Milliseconds(),
		s.now().UnixMilli(),
	).Err()
	if err != nil {
		if err.Error() == "exists" {
			return ErrCodeExists
		}
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

func (s *CodeStore) Consume(ctx context.Context, id string) (*CodeRecord, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		s.now().UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrCodeNotFound
		case "already_consumed":
			return nil, ErrCodeAlreadyConsumed
		default:
			return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeRedisUnavailable)
	}

	record, err := decodeCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	record.ID = id
	record.Consumed = true
	return record, nil
}

func (s *CodeStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(codeRecordSize)

	buf.WriteByte(codeRecordVersionV2)
	if record.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	for _, v := range []any{
		record.CreatedAt,
		record.ExpiresAt,
		record.Guardians,
		record.Visitors,
		record.ScheduleID,
	} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	if len(data) != codeRecordSize {
		return nil, errors.New("invalid code record size")
	}
	if data[0] != codeRecordVersionV2 {
		return nil, errors.New("invalid code record version")
	}

	reader := bytes.NewReader(data[2:])
	record := &CodeRecord{Consumed: data[1] != 0}

	for _, v := range []any{
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.Guardians,
		&record.Visitors,
		&record.ScheduleID,
	} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return record, nil
}
