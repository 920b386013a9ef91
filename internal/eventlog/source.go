package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"ndisview/internal/chain"
	"ndisview/internal/model"
)

// filterRange keeps entries of the requested events within r, in log order.
// The head block is the highest block seen in the scan.
func filterRange(entries []Entry, r chain.BlockRange, events map[string]bool) []model.Record {
	var head uint64
	for _, e := range entries {
		if e.Block > head {
			head = e.Block
		}
	}
	out := make([]model.Record, 0, len(entries))
	for _, e := range entries {
		if len(events) > 0 && !events[e.Event] {
			continue
		}
		if r.Contains(e.Block, head) {
			out = append(out, e.Record)
		}
	}
	return out
}

func eventSet(events []string) map[string]bool {
	if len(events) == 0 {
		return nil
	}
	m := make(map[string]bool, len(events))
	for _, e := range events {
		m[e] = true
	}
	return m
}

// FileSource scans a JSONL event log written by FileWriter.
type FileSource struct {
	path   string
	events map[string]bool
}

// NewFileSource reads path; when events are given only those are returned.
func NewFileSource(path string, events ...string) *FileSource {
	return &FileSource{path: path, events: eventSet(events)}
}

func (s *FileSource) ReadRecords(ctx context.Context, r chain.BlockRange) ([]model.Record, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: open event log: %v", chain.ErrConfiguration, err)
		}
		return nil, fmt.Errorf("%w: open event log: %v", chain.ErrConnection, err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("unmarshal line %d: %w", lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return filterRange(entries, r, s.events), nil
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// opener returns a reader positioned at the first offset and the partition's
// high watermark.
type opener func(ctx context.Context) (kafkaMessageReader, int64, error)

// KafkaSource scans partition 0 of an event topic up to its high watermark.
type KafkaSource struct {
	open    opener
	events  map[string]bool
	timeout time.Duration
}

func NewKafkaSource(brokers []string, topic string, timeout time.Duration, events ...string) *KafkaSource {
	open := func(ctx context.Context) (kafkaMessageReader, int64, error) {
		if len(brokers) == 0 || topic == "" {
			return nil, 0, fmt.Errorf("%w: kafka source needs brokers and topic", chain.ErrConfiguration)
		}
		conn, err := kafka.DialLeader(ctx, "tcp", brokers[0], topic, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: dial leader: %v", chain.ErrConnection, err)
		}
		last, err := conn.ReadLastOffset()
		conn.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: read last offset: %v", chain.ErrConnection, err)
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
	return NewKafkaSourceWith(open, timeout, events...)
}

// NewKafkaSourceWith is only for tests to inject a fake reader.
func NewKafkaSourceWith(open opener, timeout time.Duration, events ...string) *KafkaSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &KafkaSource{open: open, events: eventSet(events), timeout: timeout}
}

func (s *KafkaSource) ReadRecords(ctx context.Context, r chain.BlockRange) ([]model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rd, highWatermark, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	if highWatermark <= 0 {
		return []model.Record{}, nil
	}

	var entries []Entry
	for {
		m, err := rd.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("read kafka after %d entries: %w", len(entries), err)
			}
			return nil, fmt.Errorf("%w: read kafka: %v", chain.ErrConnection, err)
		}
		var e Entry
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry at offset %d: %w", m.Offset, err)
		}
		entries = append(entries, e)
		if m.Offset >= highWatermark-1 {
			break
		}
	}
	log.Printf("eventlog: scanned %d kafka entries range=%s", len(entries), r)
	return filterRange(entries, r, s.events), nil
}
