package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/licensegate/backend/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrConflictRetriesExhausted 乐观事务在重试上限内仍然冲突
var ErrConflictRetriesExhausted = errors.New("license update conflicted too many times")

// putScript 写入记录，并在首次出现时把密钥追加到插入顺序索引
var putScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
if not redis.call('ZSCORE', KEYS[2], ARGV[2]) then
	local seq = redis.call('INCR', KEYS[3])
	redis.call('ZADD', KEYS[2], seq, ARGV[2])
end
return 1
`)

// listBatchSize 单次 MGET 读取的记录数
const listBatchSize = 500

type redisLicenseRepository struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// NewRedisLicenseRepository 创建基于Redis的许可证仓储实例。
// 同一密钥的读-改-写使用 WATCH/MULTI 乐观事务，冲突时最多重试 maxRetries 次。
func NewRedisLicenseRepository(client *redis.Client, prefix string, maxRetries int) LicenseRepository {
	if maxRetries <= 0 {
		maxRetries = 64
	}
	return &redisLicenseRepository{
		client:     client,
		prefix:     prefix,
		maxRetries: maxRetries,
	}
}

func (r *redisLicenseRepository) recordKey(key string) string {
	return r.prefix + "license:" + key
}

func (r *redisLicenseRepository) indexKey() string {
	return r.prefix + "licenses:index"
}

func (r *redisLicenseRepository) seqKey() string {
	return r.prefix + "licenses:seq"
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// load 读取并解码记录，不存在时返回 nil
func (r *redisLicenseRepository) load(ctx context.Context, g stringGetter, key string) (*domain.License, error) {
	data, err := g.Get(ctx, r.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var license domain.License
	if err := json.Unmarshal(data, &license); err != nil {
		return nil, fmt.Errorf("failed to decode license %q: %w", key, err)
	}
	return &license, nil
}

func (r *redisLicenseRepository) Get(ctx context.Context, key string) (*domain.License, error) {
	license, err := r.load(ctx, r.client, key)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, domain.ErrNotFound
	}
	return license, nil
}

func (r *redisLicenseRepository) Put(ctx context.Context, license *domain.License) error {
	data, err := json.Marshal(license)
	if err != nil {
		return fmt.Errorf("failed to encode license: %w", err)
	}

	keys := []string{r.recordKey(license.Key), r.indexKey(), r.seqKey()}
	return putScript.Run(ctx, r.client, keys, data, license.Key).Err()
}

// List 先按插入顺序读取索引，再分批 MGET 记录
// 单条记录的变更是一次 SET，因此读到的每条记录都是完整的
func (r *redisLicenseRepository) List(ctx context.Context) ([]domain.License, error) {
	members, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	licenses := make([]domain.License, 0, len(members))
	for start := 0; start < len(members); start += listBatchSize {
		end := start + listBatchSize
		if end > len(members) {
			end = len(members)
		}

		keys := make([]string, 0, end-start)
		for _, member := range members[start:end] {
			keys = append(keys, r.recordKey(member))
		}

		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var license domain.License
			if err := json.Unmarshal([]byte(raw), &license); err != nil {
				return nil, fmt.Errorf("failed to decode license: %w", err)
			}
			licenses = append(licenses, license)
		}
	}
	return licenses, nil
}

func (r *redisLicenseRepository) CompareAndApply(ctx context.Context, key string, decide Decider) (domain.Status, error) {
	var status domain.Status
	err := r.update(ctx, key, func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}

		var mut *domain.Mutation
		status, mut = decide(current)
		if current == nil || mut == nil {
			return nil
		}

		mut.ApplyTo(current)
		return r.commit(ctx, tx, current)
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (r *redisLicenseRepository) Modify(ctx context.Context, key string, mut domain.Mutation) (*domain.License, error) {
	var updated *domain.License
	err := r.update(ctx, key, func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		mut.ApplyTo(current)
		if err := r.commit(ctx, tx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// commit 在 MULTI/EXEC 中写回记录；被监视的键若已被改动则 EXEC 失败
func (r *redisLicenseRepository) commit(ctx context.Context, tx *redis.Tx, license *domain.License) error {
	data, err := json.Marshal(license)
	if err != nil {
		return fmt.Errorf("failed to encode license: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(license.Key), data, 0)
		return nil
	})
	return err
}

// update 监视记录键执行 fn；只有在提交冲突（redis.TxFailedErr）时重试，失败的尝试不会写入任何数据
func (r *redisLicenseRepository) update(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, fn, r.recordKey(key))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflictRetriesExhausted
}
