package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/anirudhbs/corebank/internal/domain"
)

var ErrCorruptChain = errors.New("audit chain corruption detected")

// Entry is a recorded audit event plus its position in the hash chain.
type Entry struct {
	Seq      int64
	Event    domain.AuditEvent
	HashPrev string
	HashCurr string
}

func computeHash(prev string, seq int64, ev domain.AuditEvent) string {
	h := sha256.New()
	_, _ = h.Write([]byte(prev))
	_, _ = fmt.Fprintf(h, "|%d|%s", seq, ev.OccurredAt.UTC().Format("2006-01-02T15:04:05.999999999Z"))
	_, _ = h.Write([]byte("|" + ev.ActorID + "|" + ev.Action + "|" + ev.ObjectType + "|" + ev.ObjectID + "|" + ev.Result))
	_, _ = fmt.Fprintf(h, "|%x|%x", ev.Before, ev.After)
	return hex.EncodeToString(h.Sum(nil))
}

// Log is an append-only hash-chained audit store. Each entry's hash covers
// the previous entry's hash, so tampering breaks the chain.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	last    string
	nextSeq int64
}

func NewLog() *Log {
	return &Log{last: "GENESIS", nextSeq: 1}
}

// Record implements domain.AuditRecorder. The whole chain is re-walked
// before appending so a tampered entry anywhere refuses further appends.
func (l *Log) Record(_ context.Context, ev domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.verifyLocked(); err != nil {
		return err
	}

	e := Entry{
		Seq:      l.nextSeq,
		Event:    ev,
		HashPrev: l.last,
	}
	e.HashCurr = computeHash(l.last, e.Seq, ev)
	l.entries = append(l.entries, e)
	l.last = e.HashCurr
	l.nextSeq++
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Verify walks the whole chain and reports the first corruption found.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verifyLocked()
}

func (l *Log) verifyLocked() error {
	prev := "GENESIS"
	for _, e := range l.entries {
		if e.HashPrev != prev {
			return ErrCorruptChain
		}
		if computeHash(e.HashPrev, e.Seq, e.Event) != e.HashCurr {
			return ErrCorruptChain
		}
		prev = e.HashCurr
	}
	return nil
}
