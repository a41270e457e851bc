package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/elonfeng/fingest/internal/store"
	"github.com/elonfeng/fingest/pkg/ingest"
	"github.com/elonfeng/fingest/pkg/normalize"
)

var start = time.Date(2024, 10, 4, 12, 0, 0, 0, time.UTC)

func okReport() *ingest.Report {
	return &ingest.Report{
		Source:     "benzinga",
		Received:   1200,
		Normalized: 1200,
		Written:    1200,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

func badReport() *ingest.Report {
	return &ingest.Report{
		Source:     "reddit",
		Received:   3,
		Normalized: 2,
		Written:    1,
		Skipped:    []normalize.Skip{{Index: 0, Reason: "missing title"}},
		Failed:     []store.RecordError{{ID: "x", Reason: "conflict"}},
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	}
}

type recorder struct {
	name string
	got  []*Notification
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Send(_ context.Context, n *Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestSummarize(t *testing.T) {
	n := Summarize([]*ingest.Report{okReport(), badReport()})
	if n.OK {
		t.Error("OK = true, want false")
	}
	if n.Title != "fingest: 1 of 2 run(s) need attention" {
		t.Errorf("Title = %q", n.Title)
	}
	want := "benzinga: 1,200 received, 1,200 written in 1.5s\n" +
		"reddit: 3 received, 1 written, 1 skipped, 1 failed in 2s"
	if diff := cmp.Diff(want, n.Body); diff != "" {
		t.Errorf("Body mismatch (-want +got):\n%s", diff)
	}
}

func TestSummaryLineError(t *testing.T) {
	r := okReport()
	r.Error = "date abort"
	if got := SummaryLine(r); !strings.HasSuffix(got, "(error: date abort)") {
		t.Errorf("SummaryLine = %q", got)
	}
}

func TestManagerNotify(t *testing.T) {
	tests := []struct {
		name          string
		onFailureOnly bool
		reports       []*ingest.Report
		wantSent      bool
	}{
		{"all ok", false, []*ingest.Report{okReport()}, true},
		{"all ok, failures only", true, []*ingest.Report{okReport()}, false},
		{"failure, failures only", true, []*ingest.Report{okReport(), badReport()}, true},
		{"no reports", false, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{name: "rec"}
			sent, err := NewManager(tt.onFailureOnly, rec).Notify(context.Background(), tt.reports)
			if err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if sent != tt.wantSent || (len(rec.got) == 1) != tt.wantSent {
				t.Errorf("sent = %v, deliveries = %d, want %v", sent, len(rec.got), tt.wantSent)
			}
		})
	}
}

func TestBroadcastJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	good := &recorder{name: "good"}
	bad := &recorder{name: "bad", err: boom}
	err := NewManager(false, bad, good).Broadcast(context.Background(), &Notification{Title: "t"})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("err = %v", err)
	}
	if len(good.got) != 1 {
		t.Error("remaining notifiers should still be called")
	}
}

func TestWebhookSignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := Summarize([]*ingest.Report{okReport()})
	if err := NewWebhook(srv.URL, "s3cret").Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := Sign("s3cret", gotBody); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded Notification
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Title != n.Title || len(decoded.Reports) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWebhookStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "").Send(context.Background(), &Notification{})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v", err)
	}
}

func TestSlackPayload(t *testing.T) {
	var payload struct {
		Text   string           `json:"text"`
		Blocks []map[string]any `json:"blocks"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	n := Summarize([]*ingest.Report{badReport()})
	if err := NewSlack(srv.URL).Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload.Text != n.Title || len(payload.Blocks) != 2 {
		t.Fatalf("payload = %+v", payload)
	}
	section := payload.Blocks[1]["text"].(map[string]any)["text"].(string)
	if !strings.HasPrefix(section, ":warning: reddit:") {
		t.Errorf("section = %q", section)
	}
}

func TestDiscordPayload(t *testing.T) {
	type embed struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Color       int    `json:"color"`
	}
	var payload struct {
		Embeds []embed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reports := []*ingest.Report{okReport(), badReport()}
	n := Summarize(reports)
	if err := NewDiscord(srv.URL).Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []embed{{
		Title:       n.Title,
		Description: "• " + SummaryLine(reports[0]) + "\n• " + SummaryLine(reports[1]),
		Color:       discordColorFail,
	}}
	if diff := cmp.Diff(want, payload.Embeds); diff != "" {
		t.Errorf("embeds mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscordStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).Send(context.Background(), Summarize([]*ingest.Report{okReport()}))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Send error = %v, want status 429", err)
	}
}

type mockSender struct {
	sent []tgbotapi.MessageConfig
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramSend(t *testing.T) {
	sender := &mockSender{}
	tg := NewTelegramWithSender(sender, 100)

	n := &Notification{Title: "title", Body: "body"}
	if err := tg.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != 100 || msg.Text != "title\n\nbody" || !msg.DisableWebPagePreview {
		t.Errorf("message = %+v", msg)
	}
}
