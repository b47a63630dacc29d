package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the JetStream KeyValue backend
type NATSConfig struct {
	URL           string
	Bucket        string
	History       uint8
	Replicas      int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default JetStream KeyValue configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Bucket:        "POKER_SESSIONS",
		History:       1,
		Replicas:      1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATS stores the session tree in a JetStream KeyValue bucket. Path
// segments are encoded one by one so user names never break NATS key rules.
type NATS struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	config NATSConfig
}

// NewNATS connects to NATS and creates the bucket if it does not exist.
func NewNATS(ctx context.Context, config NATSConfig) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := ensureBucket(ctx, js, config)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	return &NATS{nc: nc, kv: kv, config: config}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, config NATSConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, config.Bucket)
	if err == nil {
		log.Info().Str("bucket", config.Bucket).Msg("using existing KeyValue bucket")
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("get bucket: %w", err)
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "Planning poker session tree",
		History:     config.History,
		Storage:     jetstream.FileStorage,
		Replicas:    config.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	log.Info().Str("bucket", config.Bucket).Msg("created KeyValue bucket")
	return kv, nil
}

func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, encodeNATSKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (n *NATS) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	w, err := n.kv.Watch(ctx, natsFilter(prefix), jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer w.Stop()

	out := make(map[string][]byte)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry := <-w.Updates():
			// A nil entry marks the end of the initial values.
			if entry == nil {
				return out, nil
			}
			key, err := decodeNATSKey(entry.Key())
			if err != nil {
				log.Warn().Err(err).Str("key", entry.Key()).Msg("skipping undecodable key")
				continue
			}
			if strings.HasPrefix(key, prefix) {
				out[key] = entry.Value()
			}
		}
	}
}

func (n *NATS) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, encodeNATSKey(key), value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (n *NATS) Delete(ctx context.Context, key string) error {
	if err := n.kv.Delete(ctx, encodeNATSKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (n *NATS) DeletePrefix(ctx context.Context, prefix string) error {
	entries, err := n.List(ctx, prefix)
	if err != nil {
		return err
	}
	for key := range entries {
		if err := n.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (n *NATS) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	w, err := n.kv.Watch(ctx, natsFilter(prefix), jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", prefix, err)
	}

	out := make(chan Event, watchBufferSize)
	go func() {
		defer close(out)
		defer w.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				key, err := decodeNATSKey(entry.Key())
				if err != nil || !strings.HasPrefix(key, prefix) {
					continue
				}
				op := OpPut
				if entry.Operation() != jetstream.KeyValuePut {
					op = OpDelete
				}
				select {
				case out <- Event{Key: key, Op: op}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *NATS) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// encodeNATSKey maps a slash path onto a dot separated NATS key with every
// segment base64url encoded. "=" stands for an empty segment.
func encodeNATSKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = encodeNATSSegment(s)
	}
	return strings.Join(segments, ".")
}

func encodeNATSSegment(s string) string {
	if s == "" {
		return "="
	}
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func decodeNATSKey(key string) (string, error) {
	segments := strings.Split(key, ".")
	for i, s := range segments {
		if s == "=" {
			segments[i] = ""
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return "", fmt.Errorf("decode segment %q: %w", s, err)
		}
		segments[i] = string(raw)
	}
	return strings.Join(segments, "/"), nil
}

// natsFilter returns the widest subject filter covering prefix: all complete
// segments followed by a full wildcard. Callers filter the partial tail.
func natsFilter(prefix string) string {
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return ">"
	}
	return encodeNATSKey(prefix[:i]) + ".>"
}
