package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Artifact is the on-disk and on-wire form of a trained model.
type Artifact struct {
	Kind      Kind            `json:"kind"`
	Version   string          `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewArtifact marshals payload into a versioned artifact.
func NewArtifact(kind Kind, version string, trainedAt time.Time, payload any) (*Artifact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Artifact{Kind: kind, Version: version, TrainedAt: trainedAt.UTC(), Payload: raw}, nil
}

// DecodeArtifact parses and validates a serialized artifact.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if artifact.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidArtifact)
	}
	if len(artifact.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidArtifact)
	}
	switch artifact.Kind {
	case KindFraud, KindCategorizer, KindCredit:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, artifact.Kind)
	}
	return &artifact, nil
}

// LoadArtifact reads an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	return DecodeArtifact(data)
}

// BuildModel turns an artifact into a live model of the matching kind.
func BuildModel(artifact *Artifact) (RiskModel, error) {
	switch artifact.Kind {
	case KindFraud:
		return NewFraudModel(artifact)
	case KindCategorizer:
		return NewCategorizer(artifact)
	case KindCredit:
		return NewCreditModel(artifact)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, artifact.Kind)
	}
}

// ArtifactStore persists the current artifact of each kind.
type ArtifactStore interface {
	Load(ctx context.Context, kind Kind) (*Artifact, error)
	Save(ctx context.Context, artifact *Artifact) error
}

// FileArtifactStore keeps one <kind>.json file per model in Dir.
type FileArtifactStore struct {
	Dir string
}

func NewFileArtifactStore(dir string) *FileArtifactStore {
	return &FileArtifactStore{Dir: dir}
}

func (s *FileArtifactStore) path(kind Kind) string {
	return filepath.Join(s.Dir, string(kind)+".json")
}

func (s *FileArtifactStore) Load(ctx context.Context, kind Kind) (*Artifact, error) {
	return LoadArtifact(s.path(kind))
}

// Save writes to a temporary file in the same directory and renames it over the old
// artifact, so readers see either the old or the new file and never a partial one.
func (s *FileArtifactStore) Save(ctx context.Context, artifact *Artifact) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.Dir, string(artifact.Kind)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path(artifact.Kind))
}

// RedisArtifactStore shares artifacts between instances through Redis string keys.
type RedisArtifactStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisArtifactStore(client redis.Cmdable, prefix string) *RedisArtifactStore {
	if prefix == "" {
		prefix = "wirebuddy"
	}
	return &RedisArtifactStore{client: client, prefix: prefix}
}

func (s *RedisArtifactStore) key(kind Kind) string {
	return s.prefix + ":model:" + string(kind)
}

func (s *RedisArtifactStore) Load(ctx context.Context, kind Kind) (*Artifact, error) {
	data, err := s.client.Get(ctx, s.key(kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	return DecodeArtifact(data)
}

// Save replaces the artifact with a single SET, which Redis applies atomically.
func (s *RedisArtifactStore) Save(ctx context.Context, artifact *Artifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(artifact.Kind), data, 0).Err()
}
