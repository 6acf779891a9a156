package service

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/fal"
	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/imaging"
	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/prompts"
	"github.com/sorapixel/studio/internal/telegram"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	return data
}

type fakeGenerator struct {
	mu      sync.Mutex
	image   []byte
	failOn  map[int]error
	text    string
	prompts []string
	// afterCall runs once an image call has succeeded.
	afterCall func(i int)
}

func (g *fakeGenerator) GenerateImage(_ context.Context, prompt string, _ []gemini.InputImage, _ string) (*gemini.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if err := g.failOn[i]; err != nil {
		return nil, err
	}
	if g.afterCall != nil {
		g.afterCall(i)
	}
	return &gemini.Image{Data: g.image, MIMEType: "image/png", Usage: gemini.Usage{InputTokens: 10, OutputTokens: 100, TotalTokens: 110}}, nil
}

func (g *fakeGenerator) GenerateText(_ context.Context, prompt string, _ []gemini.InputImage) (*gemini.Text, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if err := g.failOn[len(g.prompts)-1]; err != nil {
		return nil, err
	}
	return &gemini.Text{Text: g.text, Usage: gemini.Usage{InputTokens: 5, OutputTokens: 50, TotalTokens: 55}}, nil
}

func (g *fakeGenerator) ImageModel() string { return "image-model" }
func (g *fakeGenerator) TextModel() string  { return "text-model" }

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeLedger struct {
	balance  int
	reserves int
	deducts  []int
	deny     bool
}

func (l *fakeLedger) CheckAndReserve(context.Context, string) (ledger.Reservation, error) {
	l.reserves++
	if l.deny || l.balance < 1 {
		return ledger.Reservation{}, &ledger.InsufficientCreditError{Required: 1, Available: l.balance}
	}
	l.balance--
	return ledger.Reservation{Allowed: true, RemainingBalance: l.balance}, nil
}

func (l *fakeLedger) Deduct(_ context.Context, _ string, amount int) (ledger.Reservation, error) {
	l.deducts = append(l.deducts, amount)
	if l.deny || l.balance < amount {
		return ledger.Reservation{}, &ledger.InsufficientCreditError{Required: amount, Available: l.balance}
	}
	l.balance -= amount
	return ledger.Reservation{Allowed: true, RemainingBalance: l.balance}, nil
}

type fakeUsage struct {
	entries []UsageEntry
	ctxErrs []error
	err     error
}

func (u *fakeUsage) Record(ctx context.Context, e UsageEntry) error {
	u.ctxErrs = append(u.ctxErrs, ctx.Err())
	if u.err != nil {
		return u.err
	}
	u.entries = append(u.entries, e)
	return nil
}

type fakeAlerts struct {
	alerts []telegram.Alert
}

func (a *fakeAlerts) Alert(_ context.Context, al telegram.Alert) {
	a.alerts = append(a.alerts, al)
}

type fakeProjects struct {
	saved []ProjectInput
	err   error
}

func (p *fakeProjects) Save(_ context.Context, in ProjectInput) (*models.Project, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.saved = append(p.saved, in)
	return &models.Project{ID: "proj-1"}, nil
}

type fakeUpscaler struct {
	enabled bool
	data    []byte
	opts    fal.UpscaleOptions
	calls   int
}

func (u *fakeUpscaler) Enabled() bool { return u.enabled }

func (u *fakeUpscaler) Upscale(_ context.Context, _ []byte, _ string, opts fal.UpscaleOptions) (*fal.Image, error) {
	u.calls++
	u.opts = opts
	return &fal.Image{Data: u.data, MIMEType: "image/png"}, nil
}

type harness struct {
	svc      *GenerationService
	gen      *fakeGenerator
	ledger   *fakeLedger
	usage    *fakeUsage
	alerts   *fakeAlerts
	projects *fakeProjects
	upscaler *fakeUpscaler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gen:      &fakeGenerator{image: solidPNG(t, 120, 90, color.RGBA{R: 200, G: 180, B: 40, A: 255}), failOn: map[int]error{}},
		ledger:   &fakeLedger{balance: 100},
		usage:    &fakeUsage{},
		alerts:   &fakeAlerts{},
		projects: &fakeProjects{},
		upscaler: &fakeUpscaler{},
	}
	pricing := models.Pricing{TokensPerImage: 1, CatalogueCostPerImage: 1, PhotoPack: 40, RecolorSingle: 7, HDUpscale: 10, Listing: 5}
	h.svc = NewGenerationService(GenerationDeps{
		Generator: h.gen,
		Upscaler:  h.upscaler,
		Ledger:    h.ledger,
		Usage:     h.usage,
		Projects:  h.projects,
		Alerts:    h.alerts,
	}, pricing, "SoraPixel", zerolog.Nop())
	h.svc.pickOutfit = func() string { return "a plain white kurta" }
	return h
}

func activeAccount() *models.Account {
	return &models.Account{ID: "acc-1", IsActive: true, TokenBalance: 100}
}

var inputImage = gemini.InputImage{Data: []byte("\x89PNG"), MIMEType: "image/png"}

func TestCataloguePartialFailureKeepsGoing(t *testing.T) {
	h := newHarness(t)
	h.gen.failOn[1] = errors.New("blocked by safety settings")

	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindCatalogue,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
		Options: Options{Poses: []string{"standing", "side_view", "back_view", "sitting"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Success || len(res.Images) != 4 {
		t.Fatalf("result = success %v with %d images, want 4", res.Success, len(res.Images))
	}
	wantLabels := []string{"Standing", "Side View (failed)", "Back View", "Sitting"}
	for i, img := range res.Images {
		if img.Label != wantLabels[i] {
			t.Fatalf("image %d label = %q, want %q", i, img.Label, wantLabels[i])
		}
	}
	failed := res.Images[1]
	if failed.Succeeded || failed.Data != nil || !strings.Contains(failed.Error, "safety") {
		t.Fatalf("failed entry = %+v", failed)
	}
	for _, i := range []int{0, 2, 3} {
		if !res.Images[i].Succeeded || len(res.Images[i].Data) == 0 {
			t.Fatalf("image %d missing data", i)
		}
	}

	if len(h.ledger.deducts) != 1 || h.ledger.deducts[0] != 4 || h.ledger.reserves != 0 {
		t.Fatalf("ledger calls: deducts=%v reserves=%d", h.ledger.deducts, h.ledger.reserves)
	}
	if res.CreditsRemaining != 96 {
		t.Fatalf("credits remaining = %d, want 96", res.CreditsRemaining)
	}
	if len(h.usage.entries) != 1 {
		t.Fatalf("usage records = %d, want 1", len(h.usage.entries))
	}
	entry := h.usage.entries[0]
	if entry.Status != models.UsagePartial || entry.Kind != models.KindCatalogue {
		t.Fatalf("usage entry = %+v", entry)
	}
	if entry.Usage.TotalTokens != 330 {
		t.Fatalf("recorded tokens = %d, want three successful calls", entry.Usage.TotalTokens)
	}
	if _, ok := entry.Metadata["failed"]; !ok {
		t.Fatalf("metadata missing failed outputs: %v", entry.Metadata)
	}
}

func TestSingleOutputFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.gen.failOn[0] = errors.New("model is overloaded")

	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindStudio,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
	})
	var genErr *GeneratorError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want GeneratorError", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if len(h.usage.entries) != 0 {
		t.Fatalf("usage recorded on abort: %+v", h.usage.entries)
	}
	if h.ledger.reserves != 1 {
		t.Fatalf("reserves = %d, want 1", h.ledger.reserves)
	}
}

func TestInsufficientCreditNeverCallsGenerator(t *testing.T) {
	h := newHarness(t)
	h.ledger.balance = 3

	_, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindJewelryPack,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
	})
	var insufficient *ledger.InsufficientCreditError
	if !errors.As(err, &insufficient) || insufficient.Required != 40 || insufficient.Available != 3 {
		t.Fatalf("error = %v, want shortfall 40/3", err)
	}
	if h.gen.calls() != 0 {
		t.Fatalf("generator called %d times", h.gen.calls())
	}
	if len(h.usage.entries) != 0 {
		t.Fatalf("usage recorded without generation")
	}
}

func TestRecordingFailureAlertsButSucceeds(t *testing.T) {
	h := newHarness(t)
	h.usage.err = errors.New("connection reset")

	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindJewelryHero,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Success || len(res.Images) != 1 || res.Images[0].Label != "Hero Shot" {
		t.Fatalf("result = %+v", res)
	}
	if len(h.alerts.alerts) != 1 || h.alerts.alerts[0].Kind != "usage_record_failed" {
		t.Fatalf("alerts = %+v", h.alerts.alerts)
	}
}

func TestOutputsAreFinishedToRatio(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindStudio,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
		Options: Options{RatioID: "story-9-16"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	img, _, err := imaging.Decode(res.Images[0].Data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1080 || b.Dy() != 1920 {
		t.Fatalf("output = %dx%d, want 1080x1920", b.Dx(), b.Dy())
	}
}

func TestPhotoPackOrderAndDerivedCloseup(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindJewelryPack,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage, inputImage},
		Options: Options{SaveProject: true},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []string{"Hero Shot", "Alternate Angle", "Close-up Detail"}
	if len(res.Images) != len(want) {
		t.Fatalf("images = %d, want %d", len(res.Images), len(want))
	}
	for i, img := range res.Images {
		if img.Label != want[i] || !img.Succeeded {
			t.Fatalf("image %d = %q succeeded=%v", i, img.Label, img.Succeeded)
		}
	}
	if h.gen.calls() != 2 {
		t.Fatalf("generator calls = %d, close-up should be derived", h.gen.calls())
	}
	if len(h.ledger.deducts) != 1 || h.ledger.deducts[0] != 40 {
		t.Fatalf("deducts = %v", h.ledger.deducts)
	}
	if res.ProjectID != "proj-1" || len(h.projects.saved) != 1 || len(h.projects.saved[0].Images) != 3 {
		t.Fatalf("project save: id=%q saved=%+v", res.ProjectID, h.projects.saved)
	}
}

func TestPhotoPackAngleFailureStillDerivesCloseup(t *testing.T) {
	h := newHarness(t)
	h.gen.failOn[1] = errors.New("no image returned")

	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindJewelryPack,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Images[1].Succeeded || !res.Images[2].Succeeded {
		t.Fatalf("images = %+v", res.Images)
	}
	if h.usage.entries[0].Status != models.UsagePartial {
		t.Fatalf("status = %s, want partial", h.usage.entries[0].Status)
	}
}

func TestProjectSaveFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.projects.err = errors.New("bucket unavailable")

	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindStudio,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
		Options: Options{SaveProject: true},
	})
	if err != nil || !res.Success || res.ProjectID != "" {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
	if len(h.alerts.alerts) != 1 || h.alerts.alerts[0].Kind != "project_save_failed" {
		t.Fatalf("alerts = %+v", h.alerts.alerts)
	}
}

func TestRejectsBadRequestsBeforeReserving(t *testing.T) {
	h := newHarness(t)
	cases := map[string]struct {
		req  Request
		want error
	}{
		"no account":   {Request{Kind: models.KindStudio, Images: []gemini.InputImage{inputImage}}, ledger.ErrAccountNotFound},
		"inactive":     {Request{Kind: models.KindStudio, Account: &models.Account{ID: "x"}, Images: []gemini.InputImage{inputImage}}, ledger.ErrAccountInactive},
		"no images":    {Request{Kind: models.KindStudio, Account: activeAccount()}, ErrInvalidRequest},
		"unknown kind": {Request{Kind: "poster", Account: activeAccount(), Images: []gemini.InputImage{inputImage}}, ErrUnsupportedKind},
		"try-on alone": {Request{Kind: models.KindTryOn, Account: activeAccount(), Images: []gemini.InputImage{inputImage}}, ErrInvalidRequest},
		"hd disabled":  {Request{Kind: models.KindJewelryHD, Account: activeAccount(), Images: []gemini.InputImage{inputImage}}, ErrUpscaleUnavailable},
		"unknown pose": {Request{Kind: models.KindCatalogue, Account: activeAccount(), Images: []gemini.InputImage{inputImage}, Options: Options{Poses: []string{"cartwheel"}}}, ErrInvalidRequest},
		"unknown view": {Request{Kind: models.KindCatalogue, Account: activeAccount(), Images: []gemini.InputImage{inputImage}, Options: Options{StudioViews: []string{"aerial"}}}, ErrInvalidRequest},
	}
	for name, tc := range cases {
		if _, err := h.svc.Generate(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: error = %v, want %v", name, err, tc.want)
		}
	}
	if h.ledger.reserves != 0 || len(h.ledger.deducts) != 0 {
		t.Fatalf("ledger touched: reserves=%d deducts=%v", h.ledger.reserves, h.ledger.deducts)
	}
}

func TestHDUpscaleUsesUpscaler(t *testing.T) {
	h := newHarness(t)
	h.upscaler.enabled = true
	h.upscaler.data = solidPNG(t, 400, 300, color.White)

	src := gemini.InputImage{Data: solidPNG(t, 800, 600, color.Black), MIMEType: "image/png"}
	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindJewelryHD,
		Account: activeAccount(),
		Images:  []gemini.InputImage{src},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if h.upscaler.opts.Width != 2048 || h.upscaler.opts.Height != 1536 {
		t.Fatalf("upscale target = %+v", h.upscaler.opts)
	}
	if h.gen.calls() != 0 {
		t.Fatalf("generator used for hd upscale")
	}
	img, _, err := imaging.Decode(res.Images[0].Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Fatalf("hd output resized to %v", b)
	}
	if h.usage.entries[0].Model != upscalerModel {
		t.Fatalf("model = %q", h.usage.entries[0].Model)
	}
}

func TestBrandingMode(t *testing.T) {
	cases := []struct {
		name    string
		acct    models.Account
		addLogo bool
		want    brandMode
	}{
		{"nothing", models.Account{}, true, brandNone},
		{"company with add logo", models.Account{CompanyName: "Acme"}, true, brandBar},
		{"company with profile flag", models.Account{CompanyName: "Acme", ApplyBranding: true}, false, brandBar},
		{"company without request", models.Account{CompanyName: "Acme", LogoURL: "http://x/logo.png"}, false, brandNone},
		{"logo only", models.Account{LogoURL: "http://x/logo.png"}, true, brandLogo},
	}
	for _, tc := range cases {
		if got := brandingMode(&tc.acct, tc.addLogo); got != tc.want {
			t.Errorf("%s: mode = %v, want %v", tc.name, got, tc.want)
		}
	}
}

type countingLogos struct {
	calls int
	logo  image.Image
}

func (c *countingLogos) Fetch(context.Context, string) image.Image {
	c.calls++
	return c.logo
}

func TestLogoFetchedOncePerRequest(t *testing.T) {
	h := newHarness(t)
	logos := &countingLogos{logo: image.NewRGBA(image.Rect(0, 0, 16, 16))}
	h.svc.logos = logos
	acct := activeAccount()
	acct.LogoURL = "https://cdn.example/logo.png"

	_, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindCatalogue,
		Account: acct,
		Images:  []gemini.InputImage{inputImage},
		Options: Options{Poses: []string{"standing", "sitting"}, AddLogo: true},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if logos.calls != 1 {
		t.Fatalf("logo fetched %d times, want 1", logos.calls)
	}
}

func TestGenerateListingStripsFence(t *testing.T) {
	h := newHarness(t)
	h.gen.text = "```json\n{\"title\": \"Gold Necklace\", \"tags\": [\"gold\"]}\n```"

	res, err := h.svc.GenerateListing(context.Background(), activeAccount(), inputImage, "necklace")
	if err != nil {
		t.Fatalf("GenerateListing: %v", err)
	}
	if res.Listing["title"] != "Gold Necklace" {
		t.Fatalf("listing = %v", res.Listing)
	}
	if len(h.ledger.deducts) != 1 || h.ledger.deducts[0] != 5 || res.CreditsRemaining != 95 {
		t.Fatalf("deducts = %v remaining = %d", h.ledger.deducts, res.CreditsRemaining)
	}
	if len(h.usage.entries) != 1 || h.usage.entries[0].Model != "text-model" {
		t.Fatalf("usage = %+v", h.usage.entries)
	}
}

func TestParseListingFallsBackToRawText(t *testing.T) {
	out := parseListing("Here is a listing: shiny")
	if out["raw_text"] != "Here is a listing: shiny" {
		t.Fatalf("out = %v", out)
	}
}

func TestCancelledCatalogueKeepsFinishedOutputs(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gen.afterCall = func(i int) {
		if i == 0 {
			cancel()
		}
	}

	res, err := h.svc.Generate(ctx, Request{
		Kind:    models.KindCatalogue,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
		Options: Options{Poses: []string{"standing", "sitting"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Success || len(res.Images) != 1 || !res.Images[0].Succeeded {
		t.Fatalf("result = %+v, want the finished first pose", res)
	}
	if h.gen.calls() != 1 {
		t.Fatalf("generator calls = %d, want generation to stop after cancel", h.gen.calls())
	}
	if len(h.usage.entries) != 1 {
		t.Fatalf("usage records = %d, want 1", len(h.usage.entries))
	}
	if h.usage.ctxErrs[0] != nil {
		t.Fatalf("usage recorded on a cancelled context: %v", h.usage.ctxErrs[0])
	}
	if len(h.alerts.alerts) != 0 {
		t.Fatalf("unexpected alerts: %+v", h.alerts.alerts)
	}
}

func TestCancelledBeforeAnyOutputWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Generate(ctx, Request{
		Kind:    models.KindCatalogue,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if h.gen.calls() != 0 || len(h.usage.entries) != 0 {
		t.Fatalf("calls=%d records=%d, want none", h.gen.calls(), len(h.usage.entries))
	}
}

// oversizedPNG is a 1x1 PNG whose header claims w x h.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := solidPNG(t, 1, 1, color.Black)
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestHDUpscaleRejectsOversizedInput(t *testing.T) {
	h := newHarness(t)
	h.upscaler.enabled = true
	h.upscaler.data = solidPNG(t, 10, 10, color.White)

	_, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindJewelryHD,
		Account: activeAccount(),
		Images:  []gemini.InputImage{{Data: oversizedPNG(t, 16000, 16000), MIMEType: "image/png"}},
	})
	var genErr *GeneratorError
	if !errors.As(err, &genErr) || !errors.Is(err, imaging.ErrImageTooLarge) {
		t.Fatalf("error = %v, want GeneratorError wrapping ErrImageTooLarge", err)
	}
	if h.upscaler.calls != 0 {
		t.Fatalf("upscaler called %d times for an oversized input", h.upscaler.calls)
	}
}

func decodeOutput(t *testing.T, out OutputImage) image.Image {
	t.Helper()
	img, _, err := imaging.Decode(out.Data)
	if err != nil {
		t.Fatalf("decode %s: %v", out.Label, err)
	}
	return img
}

// firstDiff returns the first sampled point where a and b differ, or nil.
func firstDiff(a, b image.Image) *image.Point {
	if a.Bounds().Size() != b.Bounds().Size() {
		return &image.Point{-1, -1}
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y += 3 {
		for x := 0; x < ab.Dx(); x += 3 {
			ca := color.RGBAModel.Convert(a.At(ab.Min.X+x, ab.Min.Y+y))
			cb := color.RGBAModel.Convert(b.At(bb.Min.X+x, bb.Min.Y+y))
			if ca != cb {
				return &image.Point{x, y}
			}
		}
	}
	return nil
}

func TestOutputsAreWatermarkedAfterFitting(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindStudio,
		Account: activeAccount(),
		Images:  []gemini.InputImage{inputImage},
		Options: Options{RatioID: "square"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got := decodeOutput(t, res.Images[0])

	raw, _, err := imaging.Decode(h.gen.image)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	ratio := prompts.GetRatio("square")
	fitted, err := imaging.FitRatio(raw, ratio.Width, ratio.Height)
	if err != nil {
		t.Fatalf("FitRatio: %v", err)
	}
	if firstDiff(got, fitted) == nil {
		t.Fatalf("output is identical to the fitted image, watermark missing")
	}
	want, err := imaging.Watermark(fitted, "SoraPixel")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if p := firstDiff(got, want); p != nil {
		t.Fatalf("output differs from fit+watermark at %v", *p)
	}
}

func TestBrandingIsAppliedBeforeWatermark(t *testing.T) {
	h := newHarness(t)
	acct := activeAccount()
	acct.CompanyName = "Acme Jewels"
	acct.ApplyBranding = true

	res, err := h.svc.Generate(context.Background(), Request{
		Kind:    models.KindStudio,
		Account: acct,
		Images:  []gemini.InputImage{inputImage},
		Options: Options{RatioID: "square"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got := decodeOutput(t, res.Images[0])

	raw, _, _ := imaging.Decode(h.gen.image)
	ratio := prompts.GetRatio("square")
	fitted, err := imaging.FitRatio(raw, ratio.Width, ratio.Height)
	if err != nil {
		t.Fatalf("FitRatio: %v", err)
	}
	branding := imaging.Branding{BusinessName: "Acme Jewels"}

	branded, err := imaging.BrandingBar(fitted, branding)
	if err != nil {
		t.Fatalf("BrandingBar: %v", err)
	}
	want, err := imaging.Watermark(branded, "SoraPixel")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if p := firstDiff(got, want); p != nil {
		t.Fatalf("output differs from branding then watermark at %v", *p)
	}

	marked, err := imaging.Watermark(fitted, "SoraPixel")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	reversed, err := imaging.BrandingBar(marked, branding)
	if err != nil {
		t.Fatalf("BrandingBar: %v", err)
	}
	if firstDiff(got, reversed) == nil {
		t.Fatalf("output matches watermark then branding")
	}
}
