package main

import (
	"flag"
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"path/filepath"
	"time"

	"ndisview/internal/config"
	"ndisview/internal/directory"
	"ndisview/internal/eventlog"
	"ndisview/internal/model"
	"ndisview/internal/snapshot"
)

func main() {
	var (
		count        int
		dupRate      float64
		dir          string
		filename     string
		snapshotDir  string
		withSnapshot bool
		bootstrap    string
		topic        string
		admin        string
		seed         int64
	)
	flag.IntVar(&count, "count", 50, "number of distinct requests to generate")
	flag.Float64Var(&dupRate, "dup-rate", 0.3, "probability an entry is re-emitted")
	flag.StringVar(&dir, "dir", "./eventlog", "event log directory")
	flag.StringVar(&filename, "output", "events.jsonl", "event log file name")
	flag.StringVar(&snapshotDir, "snapshot-dir", "./snapshots", "snapshot directory")
	flag.BoolVar(&withSnapshot, "snapshot", true, "also publish a getWithdrawalRequests() snapshot")
	flag.StringVar(&bootstrap, "kafka-bootstrap", "", "also publish entries to kafka when set")
	flag.StringVar(&topic, "topic", "ndis.events", "kafka topic for entries")
	flag.StringVar(&admin, "administrator", "0xAdA0000000000000000000000000000000000001", "administrator address written to the contract dump")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	if count <= 0 {
		log.Fatalf("count must be > 0")
	}
	rng := rand.New(rand.NewSource(seed))
	entries, withdrawals := generate(rng, count, dupRate)

	fw, err := eventlog.NewFileWriter(dir, filename)
	if err != nil {
		log.Fatalf("init event log: %v", err)
	}
	var w eventlog.Writer = fw
	if bootstrap != "" {
		w = eventlog.NewMultiWriter(fw, eventlog.NewKafkaWriter(bootstrap, topic))
	}
	for i, e := range entries {
		if err := w.Append(e); err != nil {
			log.Fatalf("append entry %d: %v", i, err)
		}
	}
	log.Printf("generated %d entries (%d distinct) to %s", len(entries), count, fw.Path())

	dumpPath := filepath.Join(dir, "contract.json")
	if err := directory.WriteDump(dumpPath, contractDump(admin, entries)); err != nil {
		log.Fatalf("write contract dump: %v", err)
	}
	log.Printf("wrote contract dump to %s", dumpPath)

	if withSnapshot {
		cfg := config.Config{SnapshotDir: snapshotDir, KafkaBootstrap: bootstrap}
		head := int64(entries[len(entries)-1].Block)
		if _, err := snapshot.Publish(snapshot.NewFilesystemSnapshotter(snapshotDir), cfg.ManifestPublisher(), head, withdrawals); err != nil {
			log.Fatalf("publish snapshot: %v", err)
		}
	}
}

var descriptions = []string{"Core Supports", "Capacity Building", "Physiotherapy", "Occupational Therapy", "Assistive Technology"}

// generate emits ServiceBooked/ServiceOffered/WithdrawalRequestInitiated
// entries the way an indexer sees them, with re-emitted logs and mixed
// checksum casing.
func generate(rng *rand.Rand, count int, dupRate float64) ([]eventlog.Entry, []model.Record) {
	var out []eventlog.Entry
	var withdrawals []model.Record
	block := uint64(1)
	emit := func(e eventlog.Entry) {
		out = append(out, e)
		if rng.Float64() < dupRate {
			out = append(out, e)
		}
	}
	for i := 0; i < count; i++ {
		participant := fmt.Sprintf("0x%040X", rng.Int63())
		provider := fmt.Sprintf("0x%040x", rng.Int63())
		desc := descriptions[rng.Intn(len(descriptions))]
		amount := randomWei(rng)
		reqID := fmt.Sprintf("0x%064x", i+1)
		ev := model.ServiceEvent{RequestID: reqID, Participant: participant, ServiceProvider: provider, Description: desc, Amount: amount}

		switch rng.Intn(3) {
		case 0:
			ev.Status = 0
			emit(eventlog.Entry{Block: block, TxHash: fmt.Sprintf("0x%x", rng.Int63()), Event: eventlog.EventServiceBooked, Record: ev.Booked()})
		case 1:
			ev.Status = 1
			emit(eventlog.Entry{Block: block, TxHash: fmt.Sprintf("0x%x", rng.Int63()), Event: eventlog.EventServiceOffered, Record: ev.Offered()})
		default:
			wt := model.WithdrawalTuple{
				Requester:     participant,
				Amount:        amount,
				ParticipantID: fmt.Sprintf("NDIS-%06d", rng.Intn(1000000)),
				Description:   desc,
				Approved:      rng.Intn(4) == 0,
			}
			rec := wt.Normalize()
			withdrawals = append(withdrawals, rec)
			emit(eventlog.Entry{Block: block, TxHash: fmt.Sprintf("0x%x", rng.Int63()), Event: eventlog.EventWithdrawalRequestInitiated, Record: rec})
		}
		if rng.Intn(3) == 0 {
			block++
		}
	}
	return out, withdrawals
}

var finney = big.NewInt(1e15)

// randomWei returns 0.05 to 1 ETH, and one time in ten up to 100 ETH so
// amounts past the int64 range show up.
func randomWei(rng *rand.Rand) model.Wei {
	v := new(big.Int).Mul(big.NewInt(int64(50+rng.Intn(950))), finney)
	if rng.Intn(10) == 0 {
		v.Mul(v, big.NewInt(100))
	}
	return model.WeiFromBig(v)
}

// contractDump registers every requester as a participant and every offering
// provider as a provider, with funds covering all requested amounts.
func contractDump(admin string, entries []eventlog.Entry) directory.Dump {
	d := directory.Dump{Administrator: admin, Accounts: []directory.Account{}}
	seen := map[string]bool{}
	add := func(addr string, role model.Role) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		d.Accounts = append(d.Accounts, directory.Account{Address: addr, Role: role})
	}
	counted := map[string]bool{}
	for _, e := range entries {
		add(e.Record.RequesterAddress, model.RoleParticipant)
		add(e.Record.ServiceProvider, model.RoleProvider)
		if k := e.TxHash; !counted[k] {
			counted[k] = true
			d.ParticipantFunds = d.ParticipantFunds.Add(e.Record.Amount)
		}
	}
	return d
}
