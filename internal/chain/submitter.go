package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
)

// txProducer is the subset of *ck.Producer used for transactional submits.
type txProducer interface {
	BeginTransaction() error
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
}

// submittedIntent is the message the signing service consumes.
type submittedIntent struct {
	TxID        TxID   `json:"txId"`
	Intent      Intent `json:"intent"`
	SubmittedAt int64  `json:"submittedAt"`
}

// KafkaSubmitter hands intents to the signing service over a Kafka topic,
// one transaction per intent. It never signs anything itself.
type KafkaSubmitter struct {
	mu       sync.Mutex
	producer txProducer
	closer   func()
	topic    string
	newID    func() string
}

// NewKafkaSubmitter creates an idempotent transactional producer.
func NewKafkaSubmitter(ctx context.Context, bootstrap, topic, transactionalID string) (*KafkaSubmitter, error) {
	if bootstrap == "" || topic == "" || transactionalID == "" {
		return nil, fmt.Errorf("%w: kafka submitter needs bootstrap, topic and transactional id", ErrConfiguration)
	}
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
		"transactional.id":   transactionalID,
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("init tx: %w", err)
	}
	s := NewKafkaSubmitterWith(p, topic)
	s.closer = p.Close
	return s, nil
}

// NewKafkaSubmitterWith is only for tests to inject a fake producer.
func NewKafkaSubmitterWith(p txProducer, topic string) *KafkaSubmitter {
	return &KafkaSubmitter{producer: p, topic: topic, newID: uuid.NewString}
}

func (s *KafkaSubmitter) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func (s *KafkaSubmitter) Submit(ctx context.Context, in Intent) (TxID, error) {
	if err := in.Validate(); err != nil {
		return "", Classify(err)
	}
	id := TxID(s.newID())
	b, err := json.Marshal(submittedIntent{TxID: id, Intent: in, SubmittedAt: time.Now().UTC().Unix()})
	if err != nil {
		return "", invalid("marshal intent: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.producer.BeginTransaction(); err != nil {
		return "", classifyKafka(ctx, fmt.Errorf("begin tx: %w", err))
	}
	msg := &ck.Message{
		TopicPartition: ck.TopicPartition{Topic: &s.topic, Partition: ck.PartitionAny},
		Key:            []byte(in.From),
		Value:          b,
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		_ = s.producer.AbortTransaction(context.Background())
		return "", classifyKafka(ctx, fmt.Errorf("produce: %w", err))
	}
	if err := s.producer.CommitTransaction(ctx); err != nil {
		_ = s.producer.AbortTransaction(context.Background())
		return "", classifyKafka(ctx, fmt.Errorf("commit tx: %w", err))
	}
	return id, nil
}

func classifyKafka(ctx context.Context, err error) *TxError {
	if ctx.Err() != nil {
		return &TxError{Kind: KindTimeout, Err: err}
	}
	var kerr ck.Error
	if errors.As(err, &kerr) {
		switch kerr.Code() {
		case ck.ErrTimedOut, ck.ErrTimedOutQueue, ck.ErrMsgTimedOut:
			return &TxError{Kind: KindTimeout, Err: err}
		case ck.ErrTopicAuthorizationFailed, ck.ErrClusterAuthorizationFailed:
			return &TxError{Kind: KindUnauthorized, Err: err}
		case ck.ErrMsgSizeTooLarge, ck.ErrInvalidArg:
			return &TxError{Kind: KindInvalidInput, Err: err}
		}
	}
	return Classify(err)
}

// FileSubmitter appends intents to a JSONL journal that a signing service
// tails. It is the local stand-in for KafkaSubmitter.
type FileSubmitter struct {
	mu    sync.Mutex
	path  string
	newID func() string
}

func NewFileSubmitter(dir, filename string) (*FileSubmitter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir: %v", ErrConfiguration, err)
	}
	return &FileSubmitter{path: filepath.Join(dir, filename), newID: uuid.NewString}, nil
}

func (s *FileSubmitter) Submit(ctx context.Context, in Intent) (TxID, error) {
	if err := in.Validate(); err != nil {
		return "", Classify(err)
	}
	if err := ctx.Err(); err != nil {
		return "", Classify(err)
	}
	id := TxID(s.newID())

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", &TxError{Kind: KindUnknown, Err: fmt.Errorf("open journal: %w", err)}
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(submittedIntent{TxID: id, Intent: in, SubmittedAt: time.Now().UTC().Unix()}); err != nil {
		return "", &TxError{Kind: KindUnknown, Err: fmt.Errorf("encode: %w", err)}
	}
	return id, nil
}
