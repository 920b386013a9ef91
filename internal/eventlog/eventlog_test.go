package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"

	"ndisview/internal/model"
)

func withdrawalEntry(block uint64, tx, addr string) Entry {
	return Entry{
		Block:  block,
		TxHash: tx,
		Event:  EventWithdrawalRequestInitiated,
		Record: model.WithdrawalTuple{Requester: addr, Amount: model.NewWei(100), ParticipantID: "u1", Description: "physio"}.Normalize(),
	}
}

func TestFileWriter_Append(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "events.jsonl")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	e1 := withdrawalEntry(1, "0x01", "0xA")
	e2 := withdrawalEntry(2, "0x02", "0xB")
	if err := w.Append(e1); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := w.Append(e2); err != nil {
		t.Fatalf("append2: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	var got []Entry
	for s.Scan() {
		var e Entry
		if err := json.Unmarshal(s.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 lines, got %d", len(got))
	}
	if got[0].TxHash != "0x01" || got[1].Record.RequesterAddress != "0xB" || *got[1].Record.Approved {
		t.Fatalf("mismatch: %+v", got)
	}
}

// fakeKafkaWriter implements kafkaMessageWriter for tests
type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaWriter_Append(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kw := NewKafkaWriterWith(fk)
	if err := kw.Append(withdrawalEntry(7, "0xabc", "0xA")); err != nil {
		t.Fatalf("append: %v", err)
	}
	noTx := withdrawalEntry(8, "", "0xBEEF")
	if err := kw.Append(noTx); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fk.msgs) != 2 {
		t.Fatalf("want 2 msgs, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "0xabc" || string(fk.msgs[1].Key) != "0xbeef" {
		t.Fatalf("bad keys: %s %s", fk.msgs[0].Key, fk.msgs[1].Key)
	}

	if err := NewKafkaWriterWith(&fakeKafkaWriter{fail: true}).Append(noTx); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMultiWriter_FansOut(t *testing.T) {
	a, b := &fakeKafkaWriter{}, &fakeKafkaWriter{}
	mw := NewMultiWriter(NewKafkaWriterWith(a), NewKafkaWriterWith(b))
	if err := mw.Append(withdrawalEntry(1, "0x01", "0xA")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(a.msgs) != 1 || len(b.msgs) != 1 {
		t.Fatalf("both writers should receive the entry")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitBrokers: %v", got)
	}
}
