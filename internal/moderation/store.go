// Package moderation provides the durable ban/report store. The backing
// document is loaded once at startup and rewritten wholesale on every
// mutation before the mutating call returns.
package moderation

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Ban is one banned address.
type Ban struct {
	IP     string `yaml:"ip"`
	Reason string `yaml:"reason"`
}

// Report is one user report, keyed by the (reporter, reported) address
// pair. Reason is informational and does not participate in dedupe.
type Report struct {
	ReporterIP string `yaml:"reporter_ip"`
	ReportedIP string `yaml:"reported_ip"`
	Reason     string `yaml:"reason"`
}

// document is the persisted file layout: two ordered lists.
type document struct {
	Bans    []Ban    `yaml:"bans"`
	Reports []Report `yaml:"reports"`
}

// Store holds the in-memory document and flushes it to disk on change.
// Methods are safe for concurrent use.
type Store struct {
	path string
	log  *zap.Logger

	mu  sync.Mutex
	doc document
}

// Open loads the document at path, creating a fresh empty one if the
// file is absent or unparsable.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a Store whose document is on disk, or an error
// if the path is unwritable (fatal at startup).
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{path: path, log: logger}

	data, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(data, &s.doc); uerr == nil {
			logger.Info("moderation store loaded",
				zap.String("path", path),
				zap.Int("bans", len(s.doc.Bans)),
				zap.Int("reports", len(s.doc.Reports)),
			)
			return s, nil
		}
		logger.Warn("moderation store unparsable, starting fresh",
			zap.String("path", path),
		)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading moderation store %s: %w", path, err)
	}

	s.doc = document{Bans: []Ban{}, Reports: []Report{}}
	if err := s.writeFile(); err != nil {
		return nil, fmt.Errorf("initializing moderation store %s: %w", path, err)
	}
	return s, nil
}

// AddReport records a report unless one already exists for the same
// (reporter, reported) pair. The pre-existing record wins; its reason is
// returned unchanged.
//
// Postcondition: Returns (record, true) if the report was added, or
// (existing, false) for a duplicate. The document is flushed before a
// successful add returns.
func (s *Store) AddReport(r Report) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.doc.Reports {
		if existing.ReporterIP == r.ReporterIP && existing.ReportedIP == r.ReportedIP {
			return existing, false
		}
	}
	s.doc.Reports = append(s.doc.Reports, r)
	s.flush()
	return r, true
}

// AddBan records a ban unless the address is already banned.
//
// Postcondition: Returns (record, true) if added, or (existing, false)
// if the address was already banned.
func (s *Store) AddBan(b Ban) (Ban, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.doc.Bans {
		if existing.IP == b.IP {
			return existing, false
		}
	}
	s.doc.Bans = append(s.doc.Bans, b)
	s.flush()
	return b, true
}

// RemoveBan deletes any ban for the given address.
//
// Postcondition: Returns true if a ban was removed.
func (s *Store) RemoveBan(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.doc.Bans {
		if existing.IP == ip {
			s.doc.Bans = append(s.doc.Bans[:i], s.doc.Bans[i+1:]...)
			s.flush()
			return true
		}
	}
	return false
}

// IsBanned reports whether the address has an active ban.
func (s *Store) IsBanned(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.doc.Bans {
		if b.IP == ip {
			return true
		}
	}
	return false
}

// Bans returns a copy of the ordered ban list.
func (s *Store) Bans() []Ban {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ban(nil), s.doc.Bans...)
}

// Reports returns a copy of the ordered report list.
func (s *Store) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.doc.Reports...)
}

// flush rewrites the whole document, retrying transient write failures
// with capped exponential backoff. On exhaustion the mutation stays in
// memory and the next successful flush rewrites everything, so a lost
// write is repaired by any later mutation.
func (s *Store) flush() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second

	err := backoff.Retry(s.writeFile, bo)
	if err != nil {
		s.log.Error("flushing moderation store",
			zap.String("path", s.path),
			zap.Error(err),
		)
	}
}

func (s *Store) writeFile() error {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encoding moderation document: %w", err))
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
