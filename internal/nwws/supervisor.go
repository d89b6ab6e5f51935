package nwws

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/sparkalerts/nwws-ingest/internal/builder"
	"github.com/sparkalerts/nwws-ingest/internal/store"
)

// NWWS-OI sites, see https://www.weather.gov/nwws/#access
const (
	SiteBoulder     = "nwws-oi-bldr.weather.gov"
	SiteCollegePark = "nwws-oi-cprk.weather.gov"
	ServerPort      = "5222"
	ServerDomain    = "nwws-oi.weather.gov"

	mucNode   = "nwws"
	mucDomain = "conference.nwws-oi.weather.gov"

	connectTimeout = 3 * time.Second
	mucRejoinDelay = 5 * time.Second
	maxJitter      = time.Second
)

var Version = "v0.0.0-dev"

// Supervisor owns the XMPP session lifecycle: connect, join the NWWS
// chatroom, hand each product stanza to the builder and apply the
// result to the store. Reconnects with exponential backoff until the
// attempt budget is spent; authentication failures end the run.
type Supervisor struct {
	username     string
	password     string
	resource     string
	maxAttempts  int
	initialDelay time.Duration

	builder *builder.Builder
	store   *store.Store

	ctx context.Context

	mu       sync.Mutex
	attempts int
	lastSeq  map[string]int
}

// Options configure a Supervisor.
type Options struct {
	Username             string
	Password             string
	Resource             string
	MaxReconnectAttempts int
	InitialReconnectWait time.Duration
}

// NewSupervisor wires a supervisor to its downstream builder and store.
func NewSupervisor(opts Options, b *builder.Builder, st *store.Store) *Supervisor {
	return &Supervisor{
		username:     opts.Username,
		password:     opts.Password,
		resource:     opts.Resource,
		maxAttempts:  opts.MaxReconnectAttempts,
		initialDelay: opts.InitialReconnectWait,
		builder:      b,
		store:        st,
		lastSeq:      make(map[string]int),
	}
}

// Run blocks on the ingest loop until ctx is cancelled, credentials are
// rejected, or the reconnect budget is exhausted.
func (sup *Supervisor) Run(ctx context.Context) error {
	sup.ctx = ctx

	for {
		err := sup.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("session closed")
		}
		if isAuthError(err) {
			return fmt.Errorf("NWWS-OI authentication failed: %w", err)
		}

		attempt := sup.bumpAttempts()
		if attempt >= sup.maxAttempts {
			return fmt.Errorf("giving up after %d reconnect attempts: %w", attempt, err)
		}

		delay := sup.backoff(attempt)
		if isNetworkError(err) {
			log.Warn().Err(err).Dur("delay", delay).Int("attempt", attempt).Msg("NWWS-OI network error, reconnecting")
		} else {
			log.Warn().Err(err).Dur("delay", delay).Int("attempt", attempt).Msg("NWWS-OI session error, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runSession dials the first reachable site, joins the chatroom and
// pumps stanzas until the stream ends.
func (sup *Supervisor) runSession(ctx context.Context) error {
	instanceID := uuid.NewString()[:8]
	mucJID := &stanza.Jid{
		Node:     mucNode,
		Domain:   mucDomain,
		Resource: fmt.Sprintf("%s-%s", sup.resource, instanceID),
	}

	cfg, err := sup.availableSiteConfig(instanceID)
	if err != nil {
		return err
	}

	router := xmpp.NewRouter()
	router.HandleFunc("message", func(_ xmpp.Sender, p stanza.Packet) {
		sup.handleMessage(p)
	})
	router.HandleFunc("presence", func(s xmpp.Sender, p stanza.Packet) {
		handlePresence(s, p, mucJID)
	})
	router.NewRoute().IQNamespaces("jabber:iq:version").HandlerFunc(handleVersion)

	client, err := xmpp.NewClient(cfg, router, func(err error) {
		streamErrorHandler(err, mucJID)
	})
	if err != nil {
		return err
	}

	manager := xmpp.NewStreamManager(client, func(c xmpp.Sender) {
		sup.resetAttempts()
		log.Info().Str("site", cfg.Address).Msg("NWWS-OI connection established")
		if err := joinChatroom(c, mucJID); err != nil {
			log.Error().Err(err).Str("jid", mucJID.Full()).Msg("Failed to join NWWS chatroom")
			return
		}
		log.Info().Str("jid", mucJID.Full()).Msg("Joined NWWS chatroom, receiving products")
	})

	done := make(chan error, 1)
	go func() { done <- manager.Run() }()

	select {
	case <-ctx.Done():
		_ = client.Send(stanza.Presence{Attrs: stanza.Attrs{
			To:   mucJID.Full(),
			Type: stanza.PresenceTypeUnavailable,
		}})
		manager.Stop()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// availableSiteConfig probes College Park first and falls back to
// Boulder, returning a config pointed at whichever answered.
func (sup *Supervisor) availableSiteConfig(instanceID string) (*xmpp.Config, error) {
	cfg := &xmpp.Config{
		Jid:            fmt.Sprintf("%s@%s/%s-%s", sup.username, ServerDomain, sup.resource, instanceID),
		Credential:     xmpp.Password(sup.password),
		Insecure:       false,
		ConnectTimeout: int(connectTimeout.Seconds()),
	}

	for _, site := range []string{SiteCollegePark, SiteBoulder} {
		cfg.TransportConfiguration = xmpp.TransportConfiguration{
			Address: fmt.Sprintf("%s:%s", site, ServerPort),
			Domain:  ServerDomain,
		}

		probe, err := xmpp.NewClient(cfg, xmpp.NewRouter(), func(err error) {
			log.Debug().Err(err).Str("site", site).Msg("Probe stream error")
		})
		if err != nil {
			return nil, err
		}

		log.Info().Str("site", cfg.Address).Msg("Probing NWWS-OI site")
		if err := probe.Connect(); err != nil {
			if isAuthError(err) {
				_ = probe.Disconnect()
				return nil, err
			}
			log.Warn().Err(err).Str("site", site).Msg("NWWS-OI site unreachable")
			_ = probe.Disconnect()
			continue
		}
		if err := probe.Disconnect(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("no NWWS-OI site reachable")
}

// joinChatroom sends the MUC join presence with zero history so a
// reconnect does not replay already processed products.
func joinChatroom(c xmpp.Sender, toJID *stanza.Jid) error {
	return c.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: toJID.Full()},
		Extensions: []stanza.PresExtension{
			stanza.MucPresence{
				History: stanza.History{MaxStanzas: stanza.NewNullableInt(0)},
			},
		},
	})
}

// handleMessage turns one groupchat stanza into store mutations.
func (sup *Supervisor) handleMessage(p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	var x MessageX
	if ok := msg.Get(&x); !ok {
		return
	}
	x.AwipsID = strings.TrimSpace(x.AwipsID)

	// Operator broadcast banners carry no product.
	if strings.HasPrefix(strings.TrimSpace(msg.Body), "**WARNING**") ||
		strings.HasPrefix(strings.TrimSpace(x.Text), "**WARNING**") {
		log.Debug().Msg("Skipped chatroom warning banner")
		return
	}
	if strings.TrimSpace(x.Text) == "" {
		return
	}

	if process, seq, err := x.SequenceID(); err != nil {
		log.Debug().Err(err).Str("id", x.ID).Msg("Unparseable stanza sequence id")
	} else {
		sup.checkSequenceGap(process, seq)
	}

	received := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, x.Issue); err == nil {
		received = t.UTC()
	}

	log.Info().
		Str("cccc", x.Cccc).
		Str("ttaaii", x.Ttaaii).
		Str("awipsid", x.AwipsID).
		Str("product", x.ProductName()).
		Str("issue", x.Issue).
		Bool("warning", x.Warning()).
		Msg("Received weather product")

	res := sup.builder.Build(sup.ctx, builder.Input{
		Text:        x.Text,
		Office:      x.Cccc,
		ProductType: x.ProductName(),
		Received:    received,
	})

	if len(res.Alerts) > 0 {
		sup.store.Upsert(res.Alerts)
	}
	for _, key := range res.Deletes {
		if !sup.store.DeleteByVTECKey(key) {
			log.Debug().Interface("key", key).Msg("Cancellation for unknown alert")
		}
	}
}

// checkSequenceGap logs when the per-process sequence number skips,
// meaning the upstream feed dropped products on the floor.
func (sup *Supervisor) checkSequenceGap(process string, sequence int) {
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if last, ok := sup.lastSeq[process]; ok && sequence != last+1 {
		log.Warn().
			Str("process", process).
			Int("expected", last+1).
			Int("received", sequence).
			Int("missed", sequence-last-1).
			Msg("Sequence gap in NWWS-OI stream")
	}
	sup.lastSeq[process] = sequence
}

func (sup *Supervisor) bumpAttempts() int {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.attempts++
	return sup.attempts
}

func (sup *Supervisor) resetAttempts() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.attempts = 0
}

// backoff grows the reconnect delay as initial * 2^attempt plus up to a
// second of jitter.
func (sup *Supervisor) backoff(attempt int) time.Duration {
	delay := sup.initialDelay
	for i := 1; i < attempt && delay < time.Minute; i++ {
		delay *= 2
	}
	return delay + time.Duration(rand.Int63n(int64(maxJitter)))
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "not-authorized")
}

// isNetworkError classifies resolver and socket failures that warrant a
// quiet reconnect rather than an error-level log.
func isNetworkError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"EAI_AGAIN",
		"ENOTFOUND",
		"ETIMEDOUT",
		"no such host",
		"connection refused",
		"connection reset",
		"i/o timeout",
		"broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// streamErrorHandler keeps known benign MUC namespace parse errors from
// tearing the session down.
func streamErrorHandler(err error, mucJID *stanza.Jid) {
	msg := err.Error()
	if strings.Contains(msg, "unknown namespace") && strings.Contains(msg, "jabber.org/protocol/muc") {
		log.Warn().Err(err).Str("muc_jid", mucJID.Full()).Msg("Ignoring MUC namespace parse error")
		return
	}
	log.Error().Err(err).Msg("XMPP stream error")
}

// handlePresence rejoins the chatroom after an error presence from it.
func handlePresence(s xmpp.Sender, p stanza.Packet, mucJID *stanza.Jid) {
	presence, ok := p.(*stanza.Presence)
	if !ok {
		return
	}

	log.Debug().
		Str("from", presence.From).
		Str("type", string(presence.Type)).
		Msg("Received presence stanza")

	if presence.Type == stanza.PresenceTypeError && strings.HasPrefix(presence.From, mucJID.Bare()) {
		go func() {
			time.Sleep(mucRejoinDelay)
			log.Info().Str("jid", mucJID.Full()).Msg("Rejoining NWWS chatroom after error presence")
			if err := joinChatroom(s, mucJID); err != nil {
				log.Error().Err(err).Msg("Failed to rejoin NWWS chatroom")
			}
		}()
	}
}

func handleVersion(c xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	resp, err := stanza.NewIQ(stanza.Attrs{Type: "result", From: iq.To, To: iq.From, Id: iq.Id, Lang: "en"})
	if err != nil {
		return
	}
	resp.Version().SetInfo("sparkalerts-nwws-ingest", Version, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
	_ = c.Send(resp)
}
