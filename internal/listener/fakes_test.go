package listener

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Gardner-Chu/order-automation-system/internal/email"
	"github.com/Gardner-Chu/order-automation-system/internal/ingest"
	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

var errDial = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// events is a shared, ordered trace of side effects
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

type fakeStore struct {
	mu        sync.Mutex
	configs   []*models.MailboxConfig
	listCalls int
	listHook  func()
	synced    map[int64]time.Time
}

func (s *fakeStore) ListActiveMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listHook != nil {
		s.listHook()
	}
	return s.configs, nil
}

func (s *fakeStore) UpdateMailboxConfigLastSync(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synced == nil {
		s.synced = make(map[int64]time.Time)
	}
	s.synced[id] = at
	return nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *fakeStore) syncedAt(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.synced[id]
	return t, ok
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession // by host; missing host fails to dial
	attempts map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		sessions: make(map[string]*fakeSession),
		attempts: make(map[string]int),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, params email.ConnectParams) (email.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[params.Host]++
	session, ok := d.sessions[params.Host]
	if !ok {
		return nil, errDial
	}
	return session, nil
}

func (d *fakeDialer) attemptsFor(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[host]
}

type fakeSession struct {
	events     *events
	messages   []*email.FetchedMessage
	folderErr  error
	seenErr    error
	searchHook func()

	mu     sync.Mutex
	folder string
	closed int
}

func (s *fakeSession) OpenFolder(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folder = name
	return s.folderErr
}

func (s *fakeSession) SearchUnseen(ctx context.Context) ([]*email.FetchedMessage, error) {
	if s.searchHook != nil {
		s.searchHook()
	}
	return s.messages, nil
}

func (s *fakeSession) MarkSeen(ctx context.Context, uid uint32) error {
	s.events.add("seen:%d", uid)
	return s.seenErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeObjects struct {
	mu       sync.Mutex
	failures int // Put fails this many times before succeeding
	keys     []string
}

func (o *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keys = append(o.keys, key)
	if o.failures > 0 {
		o.failures--
		return "", errors.New("storage unavailable")
	}
	return "http://objects/" + key, nil
}

func (o *fakeObjects) putCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.keys)
}

type fakeProcessor struct {
	events *events
	result ingest.Result
	hook   func(params ingest.Params)

	mu    sync.Mutex
	calls []ingest.Params
}

func (p *fakeProcessor) ProcessEmailAttachment(ctx context.Context, params ingest.Params) ingest.Result {
	p.mu.Lock()
	p.calls = append(p.calls, params)
	p.mu.Unlock()

	if p.events != nil {
		p.events.add("process:%s", params.AttachmentName)
	}
	if p.hook != nil {
		p.hook(params)
	}
	return p.result
}

func (p *fakeProcessor) processed() []ingest.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ingest.Params(nil), p.calls...)
}

// countingExtractor fails every extraction and counts the attempts
type countingExtractor struct {
	mu    sync.Mutex
	calls int
}

func (e *countingExtractor) ExtractFromDocument(ctx context.Context, data string) (*models.ExtractionResult, error) {
	return e.fail()
}

func (e *countingExtractor) ExtractFromImage(ctx context.Context, url string) (*models.ExtractionResult, error) {
	return e.fail()
}

func (e *countingExtractor) fail() (*models.ExtractionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return nil, errors.New("extraction service unavailable")
}

func (e *countingExtractor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeFilter struct {
	mu     sync.Mutex
	seen   map[string]bool
	marked []string
}

func (f *fakeFilter) Seen(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[key], nil
}

func (f *fakeFilter) Mark(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, key)
	return nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slept = append(r.slept, d)
	return nil
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.slept...)
}

type testAttachment struct {
	name        string
	contentType string
	content     string
}

// rawMessage builds a multipart message carrying the given attachments
func rawMessage(subject string, attachments ...testAttachment) []byte {
	var b strings.Builder
	b.WriteString("From: buyer@acme.example\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"b\"\r\n\r\n")
	b.WriteString("--b\r\nContent-Type: text/plain\r\n\r\nSee attached.\r\n")
	for _, a := range attachments {
		b.WriteString("--b\r\n")
		b.WriteString("Content-Type: " + a.contentType + "\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + a.name + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(a.content)) + "\r\n")
	}
	b.WriteString("--b--\r\n")
	return []byte(b.String())
}
