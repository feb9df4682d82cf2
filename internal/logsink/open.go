package logsink

import (
	"context"

	"github.com/oriys/pulsar/internal/config"
)

// Open builds the sink described by cfg. Every configured destination is
// combined into a MultiSink; with none configured a NoopSink is returned.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.Redis.Addr != "" {
		client, err := DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, NewRedisSink(client, cfg.Redis.MaxLength))
	}
	if cfg.Postgres.DSN != "" {
		pg, err := NewPostgresSink(ctx, cfg.Postgres.DSN)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, pg)
	}
	if cfg.File.Dir != "" {
		fs, err := NewFileSink(cfg.File.Dir, cfg.File.MaxSize, cfg.File.Retention.Std())
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, fs)
	}

	switch len(sinks) {
	case 0:
		return NewNoopSink(), nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks[0], sinks[1:]...), nil
	}
}
