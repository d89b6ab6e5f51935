// Package builder turns raw NWWS-OI product text into normalized alert
// records. One stanza yields zero or more records plus zero or more
// deletions; nothing here touches the store directly.
package builder

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
	"github.com/sparkalerts/nwws-ingest/internal/cap"
	"github.com/sparkalerts/nwws-ingest/internal/geo"
	"github.com/sparkalerts/nwws-ingest/internal/wx"
)

// ZoneResolver resolves UGC ids to display names. Failures yield "".
type ZoneResolver interface {
	ResolveAll(ctx context.Context, ids []string) string
}

// GeometryProvider supplies the stored geometry for an alert id so
// update actions can inherit a polygon the follow-up product omitted.
type GeometryProvider interface {
	GeometryByID(id string) []alert.Ring
}

// Options configure builder behavior from service config.
type Options struct {
	// AllowedAlerts lists event names accepted on the non-VTEC path.
	AllowedAlerts []string
	// AllowNoGeometry admits NEW records that carry no polygon.
	AllowNoGeometry bool
}

// Input is one stanza handed off by the ingest supervisor.
type Input struct {
	Text        string
	Office      string // cccc attribute
	ProductType string // resolved product name from the AWIPS id
	Received    time.Time
}

// Result is the outcome of building one stanza.
type Result struct {
	Alerts  []alert.Alert
	Deletes []alert.Key
}

// Builder composes alert records from parsed product text.
type Builder struct {
	opts     Options
	zones    ZoneResolver
	counties *geo.CountyLookup
	stored   GeometryProvider
}

// New returns a Builder. zones, counties and stored may be nil; area
// names, county polygon overlay and geometry inheritance degrade
// gracefully.
func New(opts Options, zones ZoneResolver, counties *geo.CountyLookup, stored GeometryProvider) *Builder {
	return &Builder{opts: opts, zones: zones, counties: counties, stored: stored}
}

var (
	legacyKeywordRe = regexp.MustCompile(`\b(URGENT|STATEMENT|MESSAGE|REQUEST|BULLETIN)\b`)
	jsonPairRe      = regexp.MustCompile(`"\w+"\s*:\s*"`)
	ugcLineRe       = regexp.MustCompile(`(?m)^[A-Z]{2}[CZ]\d{3}[0-9>\-]*-$`)
)

// Build runs the full §stanza→records transform.
func (b *Builder) Build(ctx context.Context, in Input) Result {
	raw := in.Text

	block := cap.FindBlock(raw)
	var capAlert *cap.Alert
	if block != nil {
		capAlert = cap.Parse(block.XML)
	}

	// Serialized JSON/CAP heuristic: reject before any text work.
	if capAlert == nil && len(jsonPairRe.FindAllString(raw, 4)) >= 3 {
		log.Debug().Str("office", in.Office).Msg("Rejected stanza: serialized JSON body")
		return Result{}
	}

	// Raw XML with no usable CAP block.
	if capAlert == nil && strings.HasPrefix(strings.TrimSpace(raw), "<") {
		logRejectedXML(raw)
		return Result{}
	}

	legacy := legacyKeywordRe.MatchString(raw)

	text := raw
	if !legacy && capAlert != nil {
		text = block.Preamble + composeCAPText(capAlert)
	}

	// Duplicate guard: a legacy product carrying its VTEC alongside an
	// agreeing CAP rendition adds nothing; the textual variant arrives
	// on its own.
	if capAlert != nil {
		outside := wx.ParseVTEC(block.Preamble + block.Trailer)
		if outside != nil && capAgreesWith(capAlert, outside) {
			log.Debug().Str("vtec", outside.Raw).Msg("Rejected stanza: CAP duplicates legacy VTEC product")
			return Result{}
		}
	}

	vtec := wx.ParseVTEC(text)

	if vtec == nil {
		return b.buildNonVTEC(ctx, in, capAlert, block)
	}

	switch vtec.Action {
	case alert.ActionExpire, alert.ActionCancel:
		return Result{Deletes: []alert.Key{vtec.Key()}}
	case alert.ActionRoutine:
		log.Debug().Str("vtec", vtec.Raw).Msg("Dropped routine product")
		return Result{}
	}

	return b.buildVTEC(ctx, in, vtec, capAlert, text)
}

// buildVTEC assembles one record per split part of a VTEC product.
func (b *Builder) buildVTEC(ctx context.Context, in Input, v *alert.VTEC, capAlert *cap.Alert, text string) Result {
	cleaned := wx.CleanupMessage(text)
	parts := wx.SplitMessage(cleaned)
	if len(parts) == 0 {
		parts = []string{cleaned}
	}

	meta := newCAPMeta(capAlert)

	issued := b.resolveIssued(v, cleaned, meta, in.Received)
	expiry := resolveExpiry(v, meta)
	baseID := v.ID()
	name := b.resolveName(meta, cleaned)
	headline, cleanedParts := resolveHeadline(meta, parts)
	parts = cleanedParts

	ugcIDs := collectUGC(cleaned, meta)
	fips := ugcToFIPS(ugcIDs)
	areaDesc := b.resolveAreaDesc(ctx, ugcIDs)
	isUpdate := v.Action != alert.ActionNew

	var records []alert.Alert
	for idx, part := range parts {
		id := baseID
		if len(parts) > 1 {
			id = baseID + "_" + strconv.Itoa(idx)
		}

		coords := wx.ExtractCoordinates(part, meta.polygon)
		geometry := toGeometry(coords)
		if geometry == nil {
			geometry = b.countyGeometry(fips)
		}
		if geometry == nil && isUpdate && b.stored != nil {
			geometry = b.stored.GeometryByID(id)
		}

		motion := wx.ParseEventMotion(part, issued)
		if geometry == nil && motion != nil {
			geometry = []alert.Ring{{motion.Coord}}
		}

		if geometry == nil && !b.opts.AllowNoGeometry && v.Action == alert.ActionNew {
			log.Debug().Str("id", id).Msg("Rejected part: no geometry on NEW action")
			continue
		}

		rec := alert.Alert{
			ID:          id,
			Name:        name,
			Sender:      v.Office,
			Headline:    headline,
			Message:     part,
			AreaDesc:    areaDesc,
			UGC:         ugcIDs,
			FIPS:        fips,
			Geometry:    geometry,
			EventMotion: motion,
			Info:        wx.ExtractSections(part),
			Properties: alert.Properties{
				ReceivedTime:        formatInstant(in.Received),
				VTEC:                v.Raw,
				Phenomena:           v.Phenomena,
				Significance:        v.Significance,
				ProductType:         in.ProductType,
				EventTrackingNumber: v.EventTrackingNumber,
			},
		}
		setWindow(&rec, issued, expiry)
		records = append(records, rec)
	}
	return Result{Alerts: records}
}

// buildNonVTEC is the minimal (SML) path: no VTEC anywhere, but a CAP
// block names an allow-listed event. One record, no splitting.
func (b *Builder) buildNonVTEC(ctx context.Context, in Input, capAlert *cap.Alert, block *cap.Block) Result {
	if capAlert == nil {
		log.Debug().Str("office", in.Office).Msg("Rejected stanza: no VTEC and no CAP block")
		return Result{}
	}

	info := capAlert.PrimaryInfo()
	if info == nil || !b.eventAllowed(info.Event) {
		log.Debug().Str("event", eventName(capAlert)).Msg("Rejected stanza: non-VTEC event not in allow list")
		return Result{}
	}

	meta := newCAPMeta(capAlert)

	id := capAlert.Identifier
	if id == "" {
		id = synthesizeID(in.ProductType, in.Office)
	}

	cleaned := wx.CleanupMessage(block.Preamble + composeCAPText(capAlert))

	ugcIDs := collectUGC(block.Preamble+"\n"+in.Text, meta)
	fips := ugcToFIPS(ugcIDs)

	geometry := toGeometry(meta.polygon)
	if geometry == nil {
		geometry = b.countyGeometry(fips)
	}

	rec := alert.Alert{
		ID:       id,
		Name:     info.Event,
		Sender:   in.Office,
		Headline: meta.headline,
		Message:  cleaned,
		AreaDesc: b.resolveAreaDesc(ctx, ugcIDs),
		UGC:      ugcIDs,
		FIPS:     fips,
		Geometry: geometry,
		Info:     wx.ExtractSections(cleaned),
		Properties: alert.Properties{
			ReceivedTime: formatInstant(in.Received),
			ProductType:  in.ProductType,
		},
	}
	setWindow(&rec, meta.sent, meta.expires)
	return Result{Alerts: []alert.Alert{rec}}
}

func (b *Builder) resolveIssued(v *alert.VTEC, cleaned string, meta *capMeta, received time.Time) time.Time {
	if v != nil && !v.Start.IsZero() {
		return v.Start
	}
	if t, ok := wx.ParseIssuedTime(cleaned); ok {
		return t
	}
	if !meta.sent.IsZero() {
		return meta.sent
	}
	return received.UTC()
}

func resolveExpiry(v *alert.VTEC, meta *capMeta) time.Time {
	if v != nil && !v.End.IsZero() {
		return v.End
	}
	return meta.expires
}

// setWindow stores issued/expiry, dropping an expiry that precedes
// issued.
func setWindow(rec *alert.Alert, issued, expiry time.Time) {
	if !issued.IsZero() {
		t := issued.UTC()
		rec.Issued = &t
	}
	if expiry.IsZero() {
		return
	}
	e := expiry.UTC()
	if rec.Issued != nil && e.Before(*rec.Issued) {
		return
	}
	rec.Expiry = &e
}

func (b *Builder) resolveAreaDesc(ctx context.Context, ugcIDs []string) string {
	if b.zones == nil || len(ugcIDs) == 0 {
		return ""
	}
	return b.zones.ResolveAll(ctx, ugcIDs)
}

func (b *Builder) countyGeometry(fips []string) []alert.Ring {
	if b.counties == nil {
		return nil
	}
	var rings []alert.Ring
	for _, code := range fips {
		rings = append(rings, b.counties.Rings(code)...)
	}
	return rings
}

func (b *Builder) eventAllowed(event string) bool {
	for _, allowed := range b.opts.AllowedAlerts {
		if strings.EqualFold(allowed, event) {
			return true
		}
	}
	return false
}

// collectUGC merges UGC ids found in product text lines with those the
// CAP block carried, first-seen order.
func collectUGC(text string, meta *capMeta) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	for _, line := range ugcLineRe.FindAllString(text, -1) {
		add(wx.ExpandUGC(line))
	}
	add(meta.ugc)
	return out
}

func ugcToFIPS(ugcIDs []string) []string {
	var out []string
	for _, id := range ugcIDs {
		if fips, ok := wx.UGCToFIPS(id); ok {
			out = append(out, fips)
		}
	}
	return out
}

// toGeometry converts [lat, lon] vertices into a closed [lon, lat]
// ring. Rings with fewer than 3 distinct points are discarded.
func toGeometry(coords [][2]float64) []alert.Ring {
	if len(coords) == 0 {
		return nil
	}

	distinct := make(map[[2]float64]bool)
	ring := make(alert.Ring, 0, len(coords)+1)
	for _, pt := range coords {
		lonLat := [2]float64{pt[1], pt[0]}
		distinct[lonLat] = true
		ring = append(ring, lonLat)
	}
	if len(distinct) < 3 {
		return nil
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return []alert.Ring{ring}
}

func synthesizeID(productType, office string) string {
	parts := []string{}
	if productType != "" {
		parts = append(parts, strings.ReplaceAll(productType, " ", ""))
	}
	if office != "" {
		parts = append(parts, office)
	}
	parts = append(parts, uuid.NewString()[:8])
	return strings.Join(parts, "-")
}

func eventName(a *cap.Alert) string {
	if info := a.PrimaryInfo(); info != nil {
		return info.Event
	}
	return ""
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

