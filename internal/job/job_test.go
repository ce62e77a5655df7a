package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"goldpay/internal/config"
	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/service"
	"goldpay/internal/store"
	"goldpay/internal/store/memory"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// ============================================================================
// OutboxSender
// ============================================================================

type fakePublisher struct {
	mu   sync.Mutex
	fail map[string]error
	sent []string
}

func (p *fakePublisher) Publish(ctx context.Context, topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[key]; err != nil {
		return err
	}
	p.sent = append(p.sent, key)
	return nil
}

func newOutbox(t *testing.T, keys ...string) (*store.Store, *repository.OutboxRepository) {
	t.Helper()
	st := store.New(memory.NewBackend())
	repo := repository.NewOutboxRepository(st)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range keys {
		err := repo.Create(context.Background(), nil, &model.OutboxMessage{
			ID:         "MSG-" + key,
			MessageKey: key,
			Topic:      "transfer_completed",
			Payload:    `{}`,
			Status:     model.OutboxStatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	return st, repo
}

func TestOutboxSender_DeliversPending(t *testing.T) {
	st, repo := newOutbox(t, "a", "b")
	pub := &fakePublisher{}
	sender := NewOutboxSender(st, pub, config.Default(), zerolog.Nop())

	if sent := sender.processPendingMessages(context.Background()); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(pub.sent) != 2 || pub.sent[0] != "a" {
		t.Errorf("published = %v, want [a b]", pub.sent)
	}
	pending, _ := repo.GetPendingMessages(context.Background(), 0)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestOutboxSender_MarksFailedAfterMaxRetries(t *testing.T) {
	st, repo := newOutbox(t, "ok", "broken")
	pub := &fakePublisher{fail: map[string]error{"broken": errors.New("broker down")}}
	cfg := config.Default()
	cfg.Business.MaxRetryCount = 3
	sender := NewOutboxSender(st, pub, cfg, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sender.processPendingMessages(ctx)
		failed, _ := repo.GetFailedMessages(ctx, 0)
		if len(failed) != 0 {
			t.Fatalf("marked failed after %d attempts", i+1)
		}
	}

	sender.processPendingMessages(ctx)
	failed, _ := repo.GetFailedMessages(ctx, 0)
	if len(failed) != 1 || failed[0].MessageKey != "broken" || failed[0].RetryCount != 3 {
		t.Fatalf("failed = %+v", failed)
	}
	if len(pub.sent) != 1 || pub.sent[0] != "ok" {
		t.Errorf("published = %v, want [ok]", pub.sent)
	}
}

func TestOutboxSender_StartStop(t *testing.T) {
	st, repo := newOutbox(t, "a")
	cfg := config.Default()
	cfg.Business.OutboxInterval = 5 * time.Millisecond
	sender := NewOutboxSender(st, &fakePublisher{}, cfg, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, _ := repo.GetPendingMessages(context.Background(), 0)
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message was never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sender.Stop()
	sender.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

// ============================================================================
// ReconcileJob
// ============================================================================

type fakeReconciler struct {
	mu     sync.Mutex
	owners []string
	sweeps int
	called chan string
}

func (r *fakeReconciler) Reconcile(ctx context.Context, ownerID string) (*service.ReconcileReport, error) {
	r.mu.Lock()
	r.owners = append(r.owners, ownerID)
	r.mu.Unlock()
	if r.called != nil {
		r.called <- ownerID
	}
	return &service.ReconcileReport{OwnerID: ownerID}, nil
}

func (r *fakeReconciler) ReconcileAll(ctx context.Context) ([]*service.ReconcileReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	return []*service.ReconcileReport{{OwnerID: "swept", Matched: 1}}, nil
}

func TestReconcileJob_TriggersCoalesce(t *testing.T) {
	rec := &fakeReconciler{}
	job := NewReconcileJob(rec, time.Hour, zerolog.Nop())

	job.Trigger("owner-1")
	job.Trigger("owner-1")
	job.Trigger("owner-2")
	job.drainTriggered(context.Background())

	if len(rec.owners) != 2 {
		t.Fatalf("passes = %v, want one per owner", rec.owners)
	}
	job.drainTriggered(context.Background())
	if len(rec.owners) != 2 {
		t.Errorf("drained twice: %v", rec.owners)
	}
}

func TestReconcileJob_TriggerDoesNotBlock(t *testing.T) {
	job := NewReconcileJob(&fakeReconciler{}, time.Hour, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			job.Trigger("owner-1")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked without a running job")
	}
}

func TestReconcileJob_RunsTriggeredPass(t *testing.T) {
	rec := &fakeReconciler{called: make(chan string, 1)}
	job := NewReconcileJob(rec, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	job.Trigger("owner-1")
	select {
	case owner := <-rec.called:
		if owner != "owner-1" {
			t.Errorf("pass for %s, want owner-1", owner)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("triggered pass never ran")
	}

	cancel()
	<-done
}

func TestReconcileJob_Sweeps(t *testing.T) {
	rec := &fakeReconciler{}
	job := NewReconcileJob(rec, 5*time.Millisecond, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		sweeps := rec.sweeps
		rec.mu.Unlock()
		if sweeps > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no sweep ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	job.Stop()
	<-done
}

// ============================================================================
// FeedConsumer
// ============================================================================

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type fakeIngester struct {
	errs map[string]error
	got  []string
}

func (f *fakeIngester) Ingest(ctx context.Context, req *service.IngestFeedRequest) (*model.BankFeed, error) {
	f.got = append(f.got, req.ExternalRef)
	if err := f.errs[req.ExternalRef]; err != nil {
		return &model.BankFeed{ID: "BF-existing"}, err
	}
	return &model.BankFeed{ID: "BF-" + req.ExternalRef}, nil
}

func feedMessages(values ...string) *fakeClaim {
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(values))}
	for i, v := range values {
		claim.messages <- &sarama.ConsumerMessage{Topic: "bank_feed", Offset: int64(i), Value: []byte(v)}
	}
	close(claim.messages)
	return claim
}

const feedJSON = `{"owner_id":"owner-1","amount":"-10.50","currency":"MXN","value_date":"2024-03-01T00:00:00Z","external_ref":"%s"}`

func feedPayload(ref string) string {
	return fmt.Sprintf(feedJSON, ref)
}

func TestFeedConsumer_MarksHandledMessages(t *testing.T) {
	ingester := &fakeIngester{errs: map[string]error{
		"dup": service.ErrDuplicateFeed,
		"bad": &service.ValidationError{Field: "amount", Err: service.ErrInvalidAmount},
	}}
	consumer := NewFeedConsumer(ingester, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	claim := feedMessages(feedPayload("new"), feedPayload("dup"), "not json", feedPayload("bad"))
	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}

	if len(session.marked) != 4 {
		t.Errorf("marked offsets = %v, want all four", session.marked)
	}
	if len(ingester.got) != 3 || ingester.got[0] != "new" {
		t.Errorf("ingested refs = %v", ingester.got)
	}
}

func TestFeedConsumer_StopsOnStoreFailure(t *testing.T) {
	ingester := &fakeIngester{errs: map[string]error{"boom": service.ErrPersistence}}
	consumer := NewFeedConsumer(ingester, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	claim := feedMessages(feedPayload("first"), feedPayload("boom"), feedPayload("never"))
	err := consumer.ConsumeClaim(session, claim)
	if !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("ConsumeClaim error = %v, want ErrPersistence", err)
	}
	if len(session.marked) != 1 || session.marked[0] != 0 {
		t.Errorf("marked offsets = %v, want [0]", session.marked)
	}
}
