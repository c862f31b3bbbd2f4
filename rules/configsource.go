package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// ConfigSource supplies per-rule settings. Sources are consulted on every
// invocation, so implementations should be cheap; the etcd source keeps a
// watched in-memory copy for that reason.
type ConfigSource interface {
	// Get returns the settings for a rule id. A rule without settings
	// yields an empty, non-nil map.
	Get(ctx context.Context, ruleID string) (map[string]string, error)
}

// StaticSource serves settings from a fixed map, keyed by rule id. It is
// the zero-dependency source used in tests and single-run tools.
type StaticSource map[string]map[string]string

func (s StaticSource) Get(_ context.Context, ruleID string) (map[string]string, error) {
	out := make(map[string]string, len(s[ruleID]))
	for k, v := range s[ruleID] {
		out[k] = v
	}
	return out, nil
}

// FileSource reads settings from a YAML file of the form:
//
//	rules:
//	  check-csp-header:
//	    enabled: "true"
//	  port-classification-ip:
//	    aggregate_findings: "false"
//
// The file is read once at construction; use Reload to pick up changes.
type FileSource struct {
	path string

	mu    sync.RWMutex
	rules map[string]map[string]string
}

// NewFileSource loads the given YAML file.
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: filepath.Clean(path)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file, replacing all settings atomically.
func (s *FileSource) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rule config: %w", err)
	}
	var doc struct {
		Rules map[string]map[string]string `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse rule config %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.rules = doc.Rules
	s.mu.Unlock()
	return nil
}

func (s *FileSource) Get(_ context.Context, ruleID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.rules[ruleID]))
	for k, v := range s.rules[ruleID] {
		out[k] = v
	}
	return out, nil
}

// EtcdSource serves settings from etcd, kept current by a watch. Keys are
// laid out as <prefix>/<rule id>/<setting> with the value as the setting
// value, so individual settings can be flipped without rewriting a rule's
// whole config.
type EtcdSource struct {
	client *clientv3.Client
	prefix string
	log    *slog.Logger

	mu    sync.RWMutex
	rules map[string]map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEtcdSource loads the current settings under prefix and starts
// watching for changes. Close must be called to stop the watch.
func NewEtcdSource(ctx context.Context, client *clientv3.Client, prefix string, log *slog.Logger) (*EtcdSource, error) {
	if log == nil {
		log = slog.Default()
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	s := &EtcdSource{
		client: client,
		prefix: prefix,
		log:    log,
		rules:  make(map[string]map[string]string),
		done:   make(chan struct{}),
	}

	resp, err := client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("load rule config from etcd: %w", err)
	}
	for _, kv := range resp.Kvs {
		s.apply(string(kv.Key), string(kv.Value), false)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.watch(watchCtx, resp.Header.Revision+1)
	return s, nil
}

func (s *EtcdSource) watch(ctx context.Context, fromRev int64) {
	defer close(s.done)
	ch := s.client.Watch(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithRev(fromRev))
	for resp := range ch {
		if err := resp.Err(); err != nil {
			s.log.Warn("rule config watch error", slog.String("error", err.Error()))
			continue
		}
		s.mu.Lock()
		for _, ev := range resp.Events {
			s.apply(string(ev.Kv.Key), string(ev.Kv.Value), ev.Type == clientv3.EventTypeDelete)
		}
		s.mu.Unlock()
	}
}

// apply updates one setting from an etcd key. Callers hold the lock
// except during initial load, before the source is shared.
func (s *EtcdSource) apply(key, value string, deleted bool) {
	rest, ok := strings.CutPrefix(key, s.prefix)
	if !ok {
		return
	}
	ruleID, setting, ok := strings.Cut(rest, "/")
	if !ok || ruleID == "" || setting == "" {
		return
	}
	if deleted {
		delete(s.rules[ruleID], setting)
		return
	}
	if s.rules[ruleID] == nil {
		s.rules[ruleID] = make(map[string]string)
	}
	s.rules[ruleID][setting] = value
}

func (s *EtcdSource) Get(_ context.Context, ruleID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.rules[ruleID]))
	for k, v := range s.rules[ruleID] {
		out[k] = v
	}
	return out, nil
}

// Close stops the watch and waits for it to drain.
func (s *EtcdSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}
