package service

import (
	"context"
	"sync"

	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/model"
	"github.com/marwld/minibot/internal/transport"
)

type sentMsg struct {
	to   string
	text string
}

// fakeClient is an in-memory transport.Client with a scriptable event stream.
type fakeClient struct {
	mu         sync.Mutex
	registered bool
	self       string
	pairCode   string
	pairErr    error
	sendErr    error
	sent       []sentMsg
	reactions  []string
	joined     []string
	followed   []string
	marked     [][]string
	events     chan transport.Event
	closed     bool
}

func newFakeClient(registered bool) *fakeClient {
	return &fakeClient{
		registered: registered,
		self:       "263714000001@s.whatsapp.net",
		pairCode:   "ABCD-EFGH",
		events:     make(chan transport.Event, 16),
	}
}

func (c *fakeClient) emit(ev transport.Event) { c.events <- ev }

func (c *fakeClient) finish(ev transport.Closed) {
	c.events <- ev
	close(c.events)
}

func (c *fakeClient) sentMessages() []sentMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMsg, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeClient) Registered() bool    { return c.registered }
func (c *fakeClient) SelfAddress() string { return c.self }

func (c *fakeClient) RequestPairingCode(ctx context.Context, identity string) (string, error) {
	if c.pairErr != nil {
		return "", c.pairErr
	}
	return c.pairCode, nil
}

func (c *fakeClient) SendText(ctx context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, sentMsg{to: to, text: text})
	return "msg-id", nil
}

func (c *fakeClient) SendReaction(ctx context.Context, chat, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, chat+"/"+messageID+"/"+emoji)
	return nil
}

func (c *fakeClient) MarkRead(ctx context.Context, chat string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marked = append(c.marked, ids)
	return nil
}

func (c *fakeClient) SendPresence(ctx context.Context, chat, presence string) error { return nil }

func (c *fakeClient) AcceptGroupInvite(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, code)
	return "group@g.us", nil
}

func (c *fakeClient) FollowChannel(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.followed = append(c.followed, channel)
	return nil
}

func (c *fakeClient) ReactToChannelPost(ctx context.Context, channel, serverID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, channel+"/"+serverID+"/"+emoji)
	return nil
}

func (c *fakeClient) FetchAbout(ctx context.Context, target string) (model.About, error) {
	return model.About{Text: "hey there"}, nil
}

func (c *fakeClient) Events() <-chan transport.Event { return c.events }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialer hands out clients in order and records dialed identities.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dialed  []string
	dialErr error
}

func (d *fakeDialer) Dial(ctx context.Context, identity string, auth transport.AuthState) (transport.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, identity)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if len(d.clients) == 0 {
		c := newFakeClient(true)
		return c, nil
	}
	c := d.clients[0]
	if len(d.clients) > 1 {
		d.clients = d.clients[1:]
	}
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

// memSessions is an in-memory SessionRepository.
type memSessions struct {
	mu    sync.Mutex
	creds map[string][]byte
}

func newMemSessions() *memSessions { return &memSessions{creds: make(map[string][]byte)} }

func (r *memSessions) Restore(ctx context.Context, identity string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds[identity], nil
}

func (r *memSessions) Persist(ctx context.Context, identity string, creds []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[identity] = creds
	return nil
}

func (r *memSessions) PruneDuplicates(ctx context.Context, identity string) error { return nil }

func (r *memSessions) Identities(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.creds))
	for id := range r.creds {
		out = append(out, id)
	}
	return out, nil
}

func (r *memSessions) Delete(ctx context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, identity)
	return nil
}

func (r *memSessions) get(identity string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds[identity]
}

// memConfigs is an in-memory ConfigRepository with an optional Save failure.
type memConfigs struct {
	mu      sync.Mutex
	configs map[string]model.Settings
	saveErr error
}

func newMemConfigs() *memConfigs { return &memConfigs{configs: make(map[string]model.Settings)} }

func (r *memConfigs) Load(ctx context.Context, identity string) (model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.configs[identity]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *memConfigs) Save(ctx context.Context, identity string, settings model.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.configs[identity] = settings.Clone()
	return nil
}

func (r *memConfigs) PruneDuplicates(ctx context.Context, identity string) error { return nil }

func (r *memConfigs) setSaveErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *memConfigs) get(identity string) model.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configs[identity]
}

// memNumbers is an in-memory NumberRepository.
type memNumbers struct {
	mu  sync.Mutex
	ids []string
}

func (r *memNumbers) Add(ctx context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.ids {
		if id == identity {
			return nil
		}
	}
	r.ids = append(r.ids, identity)
	return nil
}

func (r *memNumbers) All(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out, nil
}

// recordingSink captures the pairing code handed to it.
type recordingSink struct {
	mu   sync.Mutex
	code string
}

func (s *recordingSink) Code(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
}

func (s *recordingSink) got() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}
