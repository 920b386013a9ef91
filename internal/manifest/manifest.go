package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrNoManifest means nothing has been published yet.
var ErrNoManifest = errors.New("no manifest published")

// Manifest points at the latest call-result snapshot and the block it was
// read at.
type Manifest struct {
	SnapshotID           string `json:"snapshotId"`
	Block                int64  `json:"block"`
	CreatedAtEpochSecond int64  `json:"createdAt"`
}

type Publisher interface {
	PublishLatest(snapshotID string, block int64) error
}

// MultiPublisher writes to multiple publishers sequentially.
type MultiPublisher struct {
	pubs []Publisher
}

func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	return &MultiPublisher{pubs: pubs}
}

func (m *MultiPublisher) PublishLatest(snapshotID string, block int64) error {
	for _, p := range m.pubs {
		if err := p.PublishLatest(snapshotID, block); err != nil {
			return err
		}
	}
	return nil
}

type Reader interface {
	ReadLatest(ctx context.Context) (Manifest, error)
}

func newManifest(snapshotID string, block int64) Manifest {
	return Manifest{
		SnapshotID:           snapshotID,
		Block:                block,
		CreatedAtEpochSecond: time.Now().UTC().Unix(),
	}
}

type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

func (f *FilesystemManifest) path() string {
	return filepath.Join(f.baseDir, "manifest.latest.json")
}

// PublishLatest replaces the manifest via a temp file and rename so readers
// never observe a partial write.
func (f *FilesystemManifest) PublishLatest(snapshotID string, block int64) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	m := newManifest(snapshotID, block)
	b, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := f.path() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, f.path()); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemManifest) ReadLatest(ctx context.Context) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrNoManifest
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// KafkaManifest publishes manifest.latest as a compacted Kafka record.
type KafkaManifest struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaManifest creates a Kafka manifest publisher.
// key is typically "ndis-snapshot-latest".
func NewKafkaManifest(brokers []string, topic string, key string) *KafkaManifest {
	return &KafkaManifest{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, key: []byte(key)}
}

// NewKafkaManifestWith is only for tests to inject a fake writer.
func NewKafkaManifestWith(w kafkaMessageWriter, key string) *KafkaManifest {
	return &KafkaManifest{writer: w, key: []byte(key)}
}

func (k *KafkaManifest) PublishLatest(snapshotID string, block int64) error {
	m := newManifest(snapshotID, block)
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(context.Background(), kafka.Message{Key: k.key, Value: b})
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// opener returns a reader positioned at the first offset of partition 0 and
// the partition's high watermark.
type opener func(ctx context.Context) (kafkaMessageReader, int64, error)

// KafkaReader reads the latest manifest record from a compacted topic by
// scanning partition 0 up to its high watermark and keeping the last value
// seen for the key.
type KafkaReader struct {
	open    opener
	key     []byte
	timeout time.Duration
}

func NewKafkaReader(brokers []string, topic string, key string) *KafkaReader {
	open := func(ctx context.Context) (kafkaMessageReader, int64, error) {
		if len(brokers) == 0 || topic == "" {
			return nil, 0, fmt.Errorf("manifest reader needs brokers and topic")
		}
		conn, err := kafka.DialLeader(ctx, "tcp", brokers[0], topic, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("dial leader: %w", err)
		}
		last, err := conn.ReadLastOffset()
		conn.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read last offset: %w", err)
		}
		rd := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   brokers,
			Topic:     topic,
			Partition: 0,
			MinBytes:  1,
			MaxBytes:  10e6,
		})
		return rd, last, nil
	}
	return NewKafkaReaderWith(open, key, 10*time.Second)
}

// NewKafkaReaderWith is only for tests to inject a fake reader.
func NewKafkaReaderWith(open opener, key string, timeout time.Duration) *KafkaReader {
	return &KafkaReader{open: open, key: []byte(key), timeout: timeout}
}

// ReadLatest returns ErrNoManifest for an empty topic or one without the key.
// The scan is bounded by ctx and the reader timeout.
func (k *KafkaReader) ReadLatest(ctx context.Context) (Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	r, highWatermark, err := k.open(ctx)
	if err != nil {
		return Manifest{}, err
	}
	defer r.Close()
	if highWatermark <= 0 {
		return Manifest{}, ErrNoManifest
	}

	var last Manifest
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			return Manifest{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) == string(k.key) {
			var man Manifest
			if err := json.Unmarshal(m.Value, &man); err != nil {
				return Manifest{}, fmt.Errorf("unmarshal kafka manifest: %w", err)
			}
			last = man
		}
		if m.Offset >= highWatermark-1 {
			break
		}
	}
	if last.SnapshotID == "" {
		return Manifest{}, ErrNoManifest
	}
	return last, nil
}
