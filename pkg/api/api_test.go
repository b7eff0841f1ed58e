package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courierdb/pkg/clock"
	"courierdb/pkg/config"
	"courierdb/pkg/guard"
	"courierdb/pkg/index"
	"courierdb/pkg/media"
	"courierdb/pkg/models"
	"courierdb/pkg/reconcile"
	"courierdb/pkg/store"
	"courierdb/pkg/tracker"
)

type testAPI struct {
	api *API
	srv *httptest.Server
	clk *clock.Fake
	mem *media.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{"bk": {}},
		SigningKeys: map[string]struct{}{"bk": {}},
	})
	t.Cleanup(func() { config.SetRuntime(nil) })

	clk := clock.NewFake(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC))
	st, err := store.Open(t.TempDir(), clk, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mem := media.NewMemory()
	a := &API{
		Store:   st,
		Index:   index.New(st),
		Tracker: tracker.New(st, clk),
		Guard:   guard.New(st, clk, 0),
		Engine:  reconcile.New(st, clk),
		Media:   mem,
	}
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return &testAPI{api: a, srv: srv, clk: clk, mem: mem}
}

// do issues a request as a trusted backend caller acting for user.
func (ta *testAPI) do(t *testing.T, method, path, user string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ta.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Role-Name", "backend")
	req.Header.Set("X-User-ID", user)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func decodeMsg(t *testing.T, data []byte) models.Message {
	t.Helper()
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode message: %v (%s)", err, data)
	}
	return m
}

func TestSendListReadFlow(t *testing.T) {
	ta := newTestAPI(t)

	resp, data := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "hello bob"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send: %d %s", resp.StatusCode, data)
	}
	sent := decodeMsg(t, data)
	if sent.Status != models.StatusSent || sent.Sender != "alice" || sent.Receiver != "bob" {
		t.Fatalf("unexpected message: %+v", sent)
	}

	// unread before any fetch
	resp, data = ta.do(t, "GET", "/v1/conversations/alice/unread", "bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unread: %d %s", resp.StatusCode, data)
	}
	var unread struct {
		Unread uint64 `json:"unread"`
	}
	_ = json.Unmarshal(data, &unread)
	if unread.Unread != 1 {
		t.Fatalf("unread = %d, want 1", unread.Unread)
	}

	// the first fetch returns the page as stored, then records delivery
	var page struct {
		Conversation string        `json:"conversation"`
		Messages     []MessageView `json:"messages"`
		Next         string        `json:"next"`
	}
	resp, data = ta.do(t, "GET", "/v1/conversations/alice/messages", "bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, data)
	}
	_ = json.Unmarshal(data, &page)
	if len(page.Messages) != 1 || page.Messages[0].Status != models.StatusSent {
		t.Fatalf("first fetch: %+v", page.Messages)
	}
	if page.Messages[0].CanEdit {
		t.Fatalf("receiver must not see can_edit")
	}

	resp, data = ta.do(t, "GET", "/v1/conversations/alice/messages", "bob", nil)
	_ = json.Unmarshal(data, &page)
	if page.Messages[0].Status != models.StatusDelivered {
		t.Fatalf("second fetch should show delivered: %+v", page.Messages[0])
	}

	// delivery does not clear unread; reading does
	resp, data = ta.do(t, "POST", "/v1/conversations/alice/read", "bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read: %d %s", resp.StatusCode, data)
	}
	var marked struct {
		Marked int `json:"marked"`
	}
	_ = json.Unmarshal(data, &marked)
	if marked.Marked != 1 {
		t.Fatalf("marked = %d, want 1", marked.Marked)
	}
	resp, data = ta.do(t, "GET", "/v1/conversations/alice/unread", "bob", nil)
	_ = json.Unmarshal(data, &unread)
	if unread.Unread != 0 {
		t.Fatalf("unread after read = %d, want 0", unread.Unread)
	}

	// the sender still sees can_edit inside the window
	resp, data = ta.do(t, "GET", "/v1/conversations/bob/messages", "alice", nil)
	_ = json.Unmarshal(data, &page)
	if !page.Messages[0].CanEdit {
		t.Fatalf("sender should see can_edit inside the window")
	}
}

func TestConversationList(t *testing.T) {
	ta := newTestAPI(t)

	ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "one"})
	ta.clk.Advance(time.Minute)
	ta.do(t, "POST", "/v1/conversations/carol/messages", "alice", map[string]string{"text": "two"})

	resp, data := ta.do(t, "GET", "/v1/conversations", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("conversations: %d %s", resp.StatusCode, data)
	}
	var out struct {
		Conversations []index.Summary `json:"conversations"`
	}
	_ = json.Unmarshal(data, &out)
	if len(out.Conversations) != 2 {
		t.Fatalf("want 2 conversations, got %+v", out.Conversations)
	}
	if out.Conversations[0].Peer != "carol" || out.Conversations[1].Peer != "bob" {
		t.Fatalf("ordering: %+v", out.Conversations)
	}
}

func TestEditAndDelete(t *testing.T) {
	ta := newTestAPI(t)

	_, data := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "draft"})
	m := decodeMsg(t, data)

	resp, data := ta.do(t, "PUT", "/v1/messages/"+m.ID, "bob", map[string]string{"text": "hijack"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-sender edit: want 403, got %d %s", resp.StatusCode, data)
	}

	resp, data = ta.do(t, "PUT", "/v1/messages/"+m.ID, "alice", map[string]string{"text": "final"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit: %d %s", resp.StatusCode, data)
	}
	edited := decodeMsg(t, data)
	if edited.Text != "final" || !edited.Edited {
		t.Fatalf("edit not applied: %+v", edited)
	}

	ta.clk.Advance(11 * time.Minute)
	resp, data = ta.do(t, "PUT", "/v1/messages/"+m.ID, "alice", map[string]string{"text": "late"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expired edit: want 409, got %d %s", resp.StatusCode, data)
	}

	// deletion has no window
	resp, _ = ta.do(t, "DELETE", "/v1/messages/"+m.ID, "bob", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-sender delete: want 403, got %d", resp.StatusCode)
	}
	resp, _ = ta.do(t, "DELETE", "/v1/messages/"+m.ID, "alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", resp.StatusCode)
	}
	resp, _ = ta.do(t, "GET", "/v1/messages/"+m.ID, "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted message: want 404, got %d", resp.StatusCode)
	}
}

func TestGetMessageHidesExistence(t *testing.T) {
	ta := newTestAPI(t)

	_, data := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "private"})
	m := decodeMsg(t, data)

	resp, _ := ta.do(t, "GET", "/v1/messages/"+m.ID, "bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("participant read: %d", resp.StatusCode)
	}
	resp, _ = ta.do(t, "GET", "/v1/messages/"+m.ID, "carol", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("outsider read: want 404, got %d", resp.StatusCode)
	}
}

func TestSendValidation(t *testing.T) {
	ta := newTestAPI(t)

	resp, data := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty draft: want 400, got %d %s", resp.StatusCode, data)
	}
	resp, data = ta.do(t, "POST", "/v1/conversations/alice/messages", "alice", map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self send: want 400, got %d %s", resp.StatusCode, data)
	}
}

func TestMarkReadUpToBoundary(t *testing.T) {
	ta := newTestAPI(t)

	_, d1 := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "one"})
	ta.clk.Advance(time.Millisecond)
	_, d2 := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "two"})
	m1, m2 := decodeMsg(t, d1), decodeMsg(t, d2)

	resp, data := ta.do(t, "POST", "/v1/conversations/alice/read", "bob", map[string]string{"up_to": m1.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("partial read: %d %s", resp.StatusCode, data)
	}
	var marked struct {
		Marked int `json:"marked"`
	}
	_ = json.Unmarshal(data, &marked)
	if marked.Marked != 1 {
		t.Fatalf("marked = %d, want 1", marked.Marked)
	}

	// the sender cannot acknowledge its own outbound message
	resp, _ = ta.do(t, "POST", "/v1/conversations/bob/read", "alice", map[string]string{"up_to": m2.ID})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("sender ack: want 403, got %d", resp.StatusCode)
	}
}

func TestReplyPreviewInListing(t *testing.T) {
	ta := newTestAPI(t)

	_, data := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "original"})
	target := decodeMsg(t, data)
	ta.do(t, "POST", "/v1/conversations/alice/messages", "bob", map[string]string{"text": "re", "reply_to": target.ID})

	var page struct {
		Messages []MessageView `json:"messages"`
	}
	_, data = ta.do(t, "GET", "/v1/conversations/bob/messages", "alice", nil)
	_ = json.Unmarshal(data, &page)
	if len(page.Messages) != 2 || page.Messages[1].ReplyPreview == nil {
		t.Fatalf("reply preview missing: %+v", page.Messages)
	}
	if page.Messages[1].ReplyPreview.Text != "original" {
		t.Fatalf("preview text: %+v", page.Messages[1].ReplyPreview)
	}

	ta.do(t, "DELETE", "/v1/messages/"+target.ID, "alice", nil)
	_, data = ta.do(t, "GET", "/v1/conversations/bob/messages", "alice", nil)
	_ = json.Unmarshal(data, &page)
	if len(page.Messages) != 1 || page.Messages[0].ReplyPreview == nil || !page.Messages[0].ReplyPreview.Deleted {
		t.Fatalf("deleted target should yield a tombstone preview: %+v", page.Messages)
	}
}

func TestListPaginationParams(t *testing.T) {
	ta := newTestAPI(t)

	for i := 0; i < 3; i++ {
		ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]string{"text": "m"})
		ta.clk.Advance(time.Millisecond)
	}

	var page struct {
		Messages []MessageView `json:"messages"`
		Next     string        `json:"next"`
	}
	_, data := ta.do(t, "GET", "/v1/conversations/bob/messages?limit=2", "alice", nil)
	_ = json.Unmarshal(data, &page)
	if len(page.Messages) != 2 || page.Next == "" {
		t.Fatalf("first page: %d messages, next %q", len(page.Messages), page.Next)
	}

	_, data = ta.do(t, "GET", "/v1/conversations/bob/messages?limit=2&after="+page.Next, "alice", nil)
	_ = json.Unmarshal(data, &page)
	if len(page.Messages) != 1 {
		t.Fatalf("second page: %d messages", len(page.Messages))
	}
}

func TestMediaUploadAndSend(t *testing.T) {
	ta := newTestAPI(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "cat.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte("png bytes"))
	_ = mw.Close()

	req, _ := http.NewRequest("POST", ta.srv.URL+"/v1/media", &buf)
	req.Header.Set("X-Role-Name", "backend")
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d %s", resp.StatusCode, data)
	}
	var m models.Media
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode media: %v", err)
	}
	if m.URL == "" || m.OriginalName != "cat.png" {
		t.Fatalf("media descriptor: %+v", m)
	}
	if _, ok := ta.mem.Get(m.URL); !ok {
		t.Fatalf("uploaded bytes not stored")
	}

	resp2, data := ta.do(t, "POST", "/v1/conversations/bob/messages", "alice", map[string]any{
		"media": []models.Media{m},
	})
	if resp2.StatusCode != http.StatusCreated {
		t.Fatalf("media send: %d %s", resp2.StatusCode, data)
	}
	sent := decodeMsg(t, data)
	if len(sent.Media) != 1 || sent.Media[0].URL != m.URL {
		t.Fatalf("media not attached: %+v", sent.Media)
	}
}

func TestSignedUserRequest(t *testing.T) {
	ta := newTestAPI(t)

	mac := hmac.New(sha256.New, []byte("bk"))
	mac.Write([]byte("alice"))
	sig := hex.EncodeToString(mac.Sum(nil))

	body, _ := json.Marshal(map[string]string{"text": "signed hello"})
	req, _ := http.NewRequest("POST", ta.srv.URL+"/v1/conversations/bob/messages", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Signature", sig)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("signed send: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signed send: %d %s", resp.StatusCode, data)
	}

	// no signature and no trusted role is a 401
	req, _ = http.NewRequest("GET", ta.srv.URL+"/v1/conversations", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unsigned request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned request: want 401, got %d", resp.StatusCode)
	}
}
