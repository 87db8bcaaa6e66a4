package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Gardner-Chu/order-automation-system/internal/database"
	"github.com/Gardner-Chu/order-automation-system/internal/dedup"
	"github.com/Gardner-Chu/order-automation-system/internal/email"
	"github.com/Gardner-Chu/order-automation-system/internal/ingest"
	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestListenerTestSuite(t *testing.T) {
	suite.Run(t, new(ListenerTestSuite))
}

type ListenerTestSuite struct {
	suite.Suite

	ctx       context.Context
	events    *events
	store     *fakeStore
	dialer    *fakeDialer
	objects   *fakeObjects
	processor *fakeProcessor
	sleeper   *sleepRecorder
	registry  *Registry
	listener  *Listener
}

func (s *ListenerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.events = &events{}
	s.store = &fakeStore{}
	s.dialer = newFakeDialer()
	s.objects = &fakeObjects{}
	s.processor = &fakeProcessor{
		events: s.events,
		result: ingest.Result{Success: true, OrderID: 1},
	}
	s.sleeper = &sleepRecorder{}
	s.registry = NewRegistry()

	s.listener = New(s.store, s.dialer, s.objects, s.processor, s.registry, Config{
		Retry:        DefaultRetryPolicy(),
		RestartDelay: time.Second,
	}, discardLogger())
	s.listener.now = func() time.Time { return fixedNow }
	s.listener.sleep = s.sleeper.sleep
}

func (s *ListenerTestSuite) TearDownTest() {
	s.listener.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Require().NoError(s.listener.Wait(ctx))
}

func (s *ListenerTestSuite) addMailbox(id int64, host string, messages ...*email.FetchedMessage) *fakeSession {
	s.store.configs = append(s.store.configs, &models.MailboxConfig{
		ID:       id,
		Name:     host,
		Host:     host,
		Port:     993,
		User:     "orders@" + host,
		UseTLS:   true,
		IsActive: true,
	})

	session := &fakeSession{events: s.events, messages: messages}
	s.dialer.sessions[host] = session
	return session
}

func (s *ListenerTestSuite) addUnreachableMailbox(id int64, host string) {
	s.store.configs = append(s.store.configs, &models.MailboxConfig{
		ID: id, Name: host, Host: host, Port: 993, User: "orders@" + host, IsActive: true,
	})
}

func excel(name string) testAttachment {
	return testAttachment{name: name, contentType: "application/vnd.ms-excel", content: "sheet"}
}

func (s *ListenerTestSuite) TestStartIsIdempotent() {
	s.listener.Start(time.Hour)
	s.Eventually(func() bool { return s.store.calls() == 1 }, time.Second, 5*time.Millisecond)

	s.listener.Start(time.Hour)

	status := s.listener.Status()
	s.Assert().True(status.IsRunning)
	s.Assert().Zero(status.ProcessedCount)
	s.Assert().Zero(status.ErrorCount)

	// The second start spawned no extra loop
	time.Sleep(20 * time.Millisecond)
	s.Assert().Equal(1, s.store.calls())
}

func (s *ListenerTestSuite) TestStopHaltsSweeps() {
	s.listener.Start(5 * time.Millisecond)
	s.Eventually(func() bool { return s.store.calls() >= 2 }, time.Second, time.Millisecond)

	s.listener.Stop()
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	s.Require().NoError(s.listener.Wait(ctx))

	calls := s.store.calls()
	s.Assert().False(s.listener.Status().IsRunning)

	time.Sleep(30 * time.Millisecond)
	s.Assert().Equal(calls, s.store.calls())
}

func (s *ListenerTestSuite) TestRestartWaitsRestartDelay() {
	s.listener.Start(time.Hour)
	s.listener.Restart(time.Hour)

	s.Assert().True(s.listener.Status().IsRunning)
	s.Assert().Equal([]time.Duration{time.Second}, s.sleeper.durations())
}

func (s *ListenerTestSuite) TestEmptyConfigSetIsNoop() {
	result := s.listener.TriggerManualSync(s.ctx)
	s.Assert().True(result.Success)
	s.Assert().Zero(s.listener.Status().ErrorCount)
	s.Assert().Nil(s.listener.Status().LastSyncTime)
}

func (s *ListenerTestSuite) TestConnectionRetryExhaustion() {
	s.addUnreachableMailbox(1, "down.example")
	healthy := s.addMailbox(2, "up.example")

	result := s.listener.TriggerManualSync(s.ctx)
	s.Assert().True(result.Success)

	s.Assert().Equal(3, s.dialer.attemptsFor("down.example"))
	s.Assert().Equal([]time.Duration{2 * time.Second, 2 * time.Second}, s.sleeper.durations())

	s.Assert().Equal(1, s.dialer.attemptsFor("up.example"))
	s.Assert().Equal("INBOX", healthy.folder)
	s.Assert().Equal(1, healthy.closeCount())

	status := s.listener.Status()
	s.Assert().Equal(int64(1), status.ErrorCount)
	s.Assert().Contains(status.LastError, "connection refused")
	s.Require().NotNil(status.LastSyncTime)
	s.Assert().Equal(fixedNow, *status.LastSyncTime)

	_, downSynced := s.store.syncedAt(1)
	s.Assert().False(downSynced)
	_, upSynced := s.store.syncedAt(2)
	s.Assert().True(upSynced)
}

func (s *ListenerTestSuite) TestAttachmentsProcessedBeforeMarkSeen() {
	s.addMailbox(7, "mail.example",
		&email.FetchedMessage{UID: 11, Raw: rawMessage("PO", excel("a.xlsx"), testAttachment{name: "b.png", contentType: "image/png", content: "png"})},
		&email.FetchedMessage{UID: 12, Raw: rawMessage("PO 2", excel("c.xls"))},
	)

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal([]string{
		"process:a.xlsx",
		"process:b.png",
		"seen:11",
		"process:c.xls",
		"seen:12",
	}, s.events.all())

	calls := s.processor.processed()
	s.Require().Len(calls, 3)
	s.Assert().Equal("7-11", calls[0].EmailID)
	s.Assert().Equal("PO", calls[0].Subject)
	s.Assert().Equal("buyer@acme.example", calls[0].From)
	s.Assert().Equal(models.AttachmentExcel, calls[0].AttachmentType)
	s.Assert().Equal([]byte("sheet"), calls[0].Content)
	s.Assert().Equal("http://objects/email-attachments/7/1709546400000-a.xlsx", calls[0].AttachmentURL)
	s.Assert().Equal(models.AttachmentImage, calls[1].AttachmentType)

	s.Assert().Equal(int64(3), s.listener.Status().ProcessedCount)
}

func (s *ListenerTestSuite) TestMessageWithoutAttachmentsIsMarkedSeen() {
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("hello")})

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal([]string{"seen:5"}, s.events.all())
	s.Assert().Zero(s.objects.putCount())
	s.Assert().Zero(s.listener.Status().ErrorCount)
}

func (s *ListenerTestSuite) TestUnsupportedAttachmentIsSkipped() {
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("notes",
		testAttachment{name: "readme.txt", contentType: "text/plain", content: "hi"},
	)})

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal([]string{"seen:5"}, s.events.all())
	s.Assert().Zero(s.objects.putCount())
	s.Assert().Empty(s.processor.processed())
	s.Assert().Zero(s.listener.Status().ErrorCount)
}

func (s *ListenerTestSuite) TestUploadIsRetried() {
	s.objects.failures = 2
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"))})

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal(3, s.objects.putCount())
	s.Assert().Equal([]time.Duration{time.Second, time.Second}, s.sleeper.durations())
	s.Assert().Len(s.processor.processed(), 1)
	s.Assert().Equal(int64(1), s.listener.Status().ProcessedCount)
	s.Assert().Zero(s.listener.Status().ErrorCount)
}

func (s *ListenerTestSuite) TestUploadExhaustionSkipsAttachment() {
	s.objects.failures = 10
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"))})

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal(3, s.objects.putCount())
	s.Assert().Empty(s.processor.processed())
	s.Assert().Equal([]string{"seen:5"}, s.events.all())

	status := s.listener.Status()
	s.Assert().Equal(int64(1), status.ErrorCount)
	s.Assert().Contains(status.LastError, "storage unavailable")
	s.Assert().Zero(status.ProcessedCount)
}

func (s *ListenerTestSuite) TestPipelineFailureIsNotProcessed() {
	s.processor.result = ingest.Result{Error: "extraction failed"}
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"))})

	s.listener.TriggerManualSync(s.ctx)

	status := s.listener.Status()
	s.Assert().Zero(status.ProcessedCount)
	// The pipeline records its own failures
	s.Assert().Zero(status.ErrorCount)
	s.Assert().Equal([]string{"process:a.xlsx", "seen:5"}, s.events.all())
}

func (s *ListenerTestSuite) TestMarkSeenFailureIsCounted() {
	session := s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("hello")})
	session.seenErr = errors.New("read-only mailbox")

	s.listener.TriggerManualSync(s.ctx)

	status := s.listener.Status()
	s.Assert().Equal(int64(1), status.ErrorCount)
	s.Assert().Contains(status.LastError, "read-only mailbox")
}

func (s *ListenerTestSuite) TestSessionClosedWhenFolderFails() {
	session := s.addMailbox(1, "mail.example")
	session.folderErr = errors.New("no such folder")

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal(1, session.closeCount())
	s.Assert().Equal(int64(1), s.listener.Status().ErrorCount)
	_, synced := s.store.syncedAt(1)
	s.Assert().False(synced)
}

func (s *ListenerTestSuite) TestDuplicateFilterSkipsIngestedAttachments() {
	filter := &fakeFilter{seen: map[string]bool{dedup.Key("1-5", 0, "a.xlsx"): true}}
	s.listener.SetFilter(filter)
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"), excel("b.xlsx"))})

	s.listener.TriggerManualSync(s.ctx)

	calls := s.processor.processed()
	s.Require().Len(calls, 1)
	s.Assert().Equal("b.xlsx", calls[0].AttachmentName)
	s.Assert().Equal([]string{dedup.Key("1-5", 1, "b.xlsx")}, filter.marked)
}

func (s *ListenerTestSuite) TestOverlappingSweepIsRejected() {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.processor.hook = func(ingest.Params) {
		once.Do(func() { close(entered) })
		<-release
	}
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"))})

	done := make(chan SyncResult, 1)
	go func() { done <- s.listener.TriggerManualSync(s.ctx) }()
	<-entered

	second := s.listener.TriggerManualSync(s.ctx)
	s.Assert().False(second.Success)
	s.Assert().Contains(second.Message, ErrSweepInProgress.Error())

	close(release)
	s.Assert().True((<-done).Success)
	s.Assert().Len(s.processor.processed(), 1)
}

func (s *ListenerTestSuite) TestAttachmentPanicStaysWithItsMailbox() {
	s.processor.hook = func(params ingest.Params) {
		if params.EmailID == "1-5" {
			panic("boom")
		}
	}
	s.addMailbox(1, "a.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"), excel("b.xlsx"))})
	s.addMailbox(2, "b.example", &email.FetchedMessage{UID: 6, Raw: rawMessage("PO", excel("c.xlsx"))})

	result := s.listener.TriggerManualSync(s.ctx)
	s.Assert().True(result.Success)

	s.Assert().Equal(1, s.dialer.attemptsFor("b.example"))
	s.Assert().Equal([]string{
		"process:a.xlsx",
		"process:b.xlsx",
		"seen:5",
		"process:c.xlsx",
		"seen:6",
	}, s.events.all())

	status := s.listener.Status()
	s.Assert().Equal(int64(2), status.ErrorCount)
	s.Assert().Equal(int64(1), status.ProcessedCount)
	s.Assert().Contains(status.LastError, "panic: boom")

	_, synced := s.store.syncedAt(1)
	s.Assert().True(synced)
}

func (s *ListenerTestSuite) TestMailboxPanicDoesNotAbortSweep() {
	broken := s.addMailbox(1, "a.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", excel("a.xlsx"))})
	broken.searchHook = func() { panic("nil mailbox state") }
	s.addMailbox(2, "b.example", &email.FetchedMessage{UID: 6, Raw: rawMessage("PO", excel("c.xlsx"))})

	result := s.listener.TriggerManualSync(s.ctx)
	s.Assert().True(result.Success)

	s.Assert().Equal(1, broken.closeCount())
	s.Assert().Equal([]string{"process:c.xlsx", "seen:6"}, s.events.all())

	status := s.listener.Status()
	s.Assert().Equal(int64(1), status.ErrorCount)
	s.Assert().Contains(status.LastError, "mailbox a.example: panic: nil mailbox state")

	_, synced := s.store.syncedAt(1)
	s.Assert().False(synced)
	_, synced = s.store.syncedAt(2)
	s.Assert().True(synced)
}

func (s *ListenerTestSuite) TestSweepPanicIsRecovered() {
	var calls int
	s.store.listHook = func() {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}

	first := s.listener.TriggerManualSync(s.ctx)
	s.Assert().False(first.Success)
	s.Assert().Contains(first.Message, "boom")
	s.Assert().Contains(s.listener.Status().LastError, "sweep panic: boom")

	second := s.listener.TriggerManualSync(s.ctx)
	s.Assert().True(second.Success)
}

func (s *ListenerTestSuite) TestSameNamedAttachmentsAreKeptApart() {
	filter := &fakeFilter{}
	s.listener.SetFilter(filter)
	png := func(content string) testAttachment {
		return testAttachment{name: "image001.png", contentType: "image/png", content: content}
	}
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO", png("first"), png("second"))})

	s.listener.TriggerManualSync(s.ctx)

	calls := s.processor.processed()
	s.Require().Len(calls, 2)
	s.Assert().Equal(0, calls[0].AttachmentIndex)
	s.Assert().Equal(1, calls[1].AttachmentIndex)
	s.Assert().Equal([]byte("first"), calls[0].Content)
	s.Assert().Equal([]byte("second"), calls[1].Content)
	s.Assert().Equal("http://objects/email-attachments/1/1709546400000-image001.png", calls[0].AttachmentURL)
	s.Assert().Equal("http://objects/email-attachments/1/1709546400000-1-image001.png", calls[1].AttachmentURL)

	s.Assert().Equal([]string{
		dedup.Key("1-5", 0, "image001.png"),
		dedup.Key("1-5", 1, "image001.png"),
	}, filter.marked)
	s.Assert().Equal(int64(2), s.listener.Status().ProcessedCount)
}

func (s *ListenerTestSuite) TestPDFAttachmentFailsInPipeline() {
	db, err := database.New(database.InMemory)
	s.Require().NoError(err)
	defer db.Close()
	s.Require().NoError(db.Migrate(s.ctx))

	extractor := &countingExtractor{}
	s.listener.processor = ingest.NewPipeline(db, extractor, s.registry, discardLogger())
	s.addMailbox(1, "mail.example", &email.FetchedMessage{UID: 5, Raw: rawMessage("PO",
		testAttachment{name: "po.pdf", contentType: "application/pdf", content: "%PDF-1.7"},
	)})

	s.listener.TriggerManualSync(s.ctx)

	s.Assert().Equal(1, s.objects.putCount())
	s.Assert().Zero(extractor.count())
	s.Assert().Equal([]string{"seen:5"}, s.events.all())

	logs, err := db.ListProcessingLogs(s.ctx, database.ListParams{})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Assert().Equal(models.AttachmentPDF, logs[0].AttachmentType)
	s.Assert().Equal(models.ProcessingFailed, logs[0].Status)

	status := s.listener.Status()
	s.Assert().Equal(int64(1), status.ErrorCount)
	s.Assert().Contains(status.LastError, ingest.ErrUnsupportedAttachment.Error())
	s.Assert().Zero(status.ProcessedCount)
}

func (s *ListenerTestSuite) TestRestartKeepsCurrentInterval() {
	s.listener.Start(time.Hour)
	s.listener.Restart(0)

	s.Assert().True(s.listener.Status().IsRunning)
	s.Assert().Equal(time.Hour, s.listener.Interval())

	s.listener.Restart(2 * time.Hour)
	s.Assert().Equal(2*time.Hour, s.listener.Interval())
}

func (s *ListenerTestSuite) TestTestConnection() {
	s.addMailbox(1, "mail.example")

	ok := s.listener.TestConnection(s.ctx, email.ConnectParams{Host: "mail.example", Port: 993})
	s.Assert().True(ok.Success)
	s.Assert().Equal(1, s.dialer.sessions["mail.example"].closeCount())

	failed := s.listener.TestConnection(s.ctx, email.ConnectParams{Host: "down.example", Port: 993})
	s.Assert().False(failed.Success)
	s.Assert().Equal("connection failed: connection refused", failed.Message)
	s.Assert().Equal(1, s.dialer.attemptsFor("down.example"))
}
