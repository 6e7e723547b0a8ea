package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EliorMigdal/kaplat-ex7/domain"
)

// Options describes how to reach every backing service.
type Options struct {
	Postgres PostgresConfig
	MongoURI string
	// RedisURL is optional. Without it reads are not cached and title
	// reservations are kept in process.
	RedisURL       string
	CacheTTL       time.Duration
	ReservationTTL time.Duration
}

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	postgres *PostgresStore
	mongo    *MongoStore
	redis    *redis.Client
	opts     Options
}

// Open connects to both stores and, when configured, to Redis. The
// relational schema is migrated on open.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	pg, err := NewPostgresStore(opts.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("migrate todos table: %w", err)
	}
	mg, err := NewMongoStore(ctx, opts.MongoURI)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	s := &Storage{postgres: pg, mongo: mg, opts: opts}
	if opts.RedisURL != "" {
		s.redis = redis.NewClient(ParseRedisOptions(opts.RedisURL))
	}
	return s, nil
}

// Relational returns the relational store, cached when Redis is configured.
func (s *Storage) Relational() domain.Store {
	if s.redis != nil {
		return NewCache(s.postgres, domain.BackendPostgres, s.redis, s.opts.CacheTTL)
	}
	return s.postgres
}

// Document returns the document store, cached when Redis is configured.
func (s *Storage) Document() domain.Store {
	if s.redis != nil {
		return NewCache(s.mongo, domain.BackendMongo, s.redis, s.opts.CacheTTL)
	}
	return s.mongo
}

// Reserver returns the title reserver matching the configuration.
func (s *Storage) Reserver() domain.Reserver {
	if s.redis != nil {
		return NewRedisReserver(s.redis, s.opts.ReservationTTL)
	}
	return NewLocalReserver()
}

// Ping checks every configured backend and joins the failures.
func (s *Storage) Ping(ctx context.Context) error {
	var errs []error
	if err := s.postgres.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres: %w", err))
	}
	if err := s.mongo.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mongo: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Storage) Close(ctx context.Context) error {
	errs := []error{s.postgres.Close(), s.mongo.Close(ctx)}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

// ParseRedisOptions accepts a redis:// URL or the
// `host:port,password=...,ssl=true` connection string form.
func ParseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
