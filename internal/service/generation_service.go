package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/fal"
	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/imaging"
	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/prompts"
	"github.com/sorapixel/studio/internal/telegram"
)

const upscalerModel = "fal-ai/flux/dev"

var (
	ErrUnsupportedKind    = errors.New("unsupported generation kind")
	ErrInvalidRequest     = errors.New("invalid generation request")
	ErrUpscaleUnavailable = errors.New("hd upscale is not configured")
)

// GeneratorError means a generation that could not degrade to a partial
// result failed at the provider.
type GeneratorError struct {
	Label string
	Err   error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Label, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

type Generator interface {
	GenerateImage(ctx context.Context, prompt string, images []gemini.InputImage, aspectRatio string) (*gemini.Image, error)
	GenerateText(ctx context.Context, prompt string, images []gemini.InputImage) (*gemini.Text, error)
	ImageModel() string
	TextModel() string
}

type Upscaler interface {
	Enabled() bool
	Upscale(ctx context.Context, data []byte, mimeType string, opts fal.UpscaleOptions) (*fal.Image, error)
}

type CreditLedger interface {
	CheckAndReserve(ctx context.Context, accountID string) (ledger.Reservation, error)
	Deduct(ctx context.Context, accountID string, amount int) (ledger.Reservation, error)
}

type LogoSource interface {
	Fetch(ctx context.Context, url string) image.Image
}

type Alerter interface {
	Alert(ctx context.Context, a telegram.Alert)
}

type UsageRecorder interface {
	Record(ctx context.Context, entry UsageEntry) error
}

type ProjectSaver interface {
	Save(ctx context.Context, in ProjectInput) (*models.Project, error)
}

type Options struct {
	RatioID      string
	Background   string
	Instructions string
	JewelryType  string
	Metal        string
	ModelType    string
	Highlights   string
	Poses        []string
	StudioViews  []string
	AddLogo      bool
	SaveProject  bool
	ProjectTitle string
}

type Request struct {
	Kind    models.GenerationKind
	Account *models.Account
	// Images holds the primary input first, then auxiliary inputs.
	Images  []gemini.InputImage
	Options Options
}

type OutputImage struct {
	Label     string
	Data      []byte
	MIMEType  string
	Succeeded bool
	Error     string
}

type Result struct {
	Success          bool
	Images           []OutputImage
	CreditsRemaining int
	UsedFreeTier     bool
	Usage            gemini.Usage
	ProjectID        string
}

type GenerationDeps struct {
	Generator Generator
	Upscaler  Upscaler
	Ledger    CreditLedger
	Usage     UsageRecorder
	Projects  ProjectSaver
	Logos     LogoSource
	Alerts    Alerter
}

// GenerationService reserves credit, drives the generator, finishes every
// output and records the outcome.
type GenerationService struct {
	gen        Generator
	upscaler   Upscaler
	ledger     CreditLedger
	usage      UsageRecorder
	projects   ProjectSaver
	logos      LogoSource
	alerts     Alerter
	pricing    models.Pricing
	watermark  string
	log        zerolog.Logger
	pickOutfit func() string
}

func NewGenerationService(deps GenerationDeps, pricing models.Pricing, watermarkText string, log zerolog.Logger) *GenerationService {
	if watermarkText == "" {
		watermarkText = "SoraPixel"
	}
	return &GenerationService{
		gen:       deps.Generator,
		upscaler:  deps.Upscaler,
		ledger:    deps.Ledger,
		usage:     deps.Usage,
		projects:  deps.Projects,
		logos:     deps.Logos,
		alerts:    deps.Alerts,
		pricing:   pricing,
		watermark: watermarkText,
		log:       log.With().Str("component", "generation").Logger(),
		pickOutfit: func() string {
			return prompts.Outfits[rand.IntN(len(prompts.Outfits))]
		},
	}
}

// stepOutput is one finished entry. fitted is the image after ratio fitting
// and before branding; derived steps start from it.
type stepOutput struct {
	label    string
	fitted   image.Image
	final    image.Image
	data     []byte
	err      error
	usage    gemini.Usage
	failures []imaging.StageFailure
}

func (s *GenerationService) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Account == nil {
		return nil, ledger.ErrAccountNotFound
	}
	if !req.Account.IsActive {
		return nil, ledger.ErrAccountInactive
	}
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("%w: an input image is required", ErrInvalidRequest)
	}
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}
	if p.kind == models.KindJewelryHD && (s.upscaler == nil || !s.upscaler.Enabled()) {
		return nil, ErrUpscaleUnavailable
	}

	log := s.log.With().Str("account_id", req.Account.ID).Str("kind", string(p.kind)).Logger()

	reservation, err := s.reserve(ctx, req.Account.ID, p)
	if err != nil {
		return nil, err
	}
	log.Info().Bool("free_tier", reservation.UsedFreeTier).Int("cost", p.cost).Int("outputs", len(p.steps)).Msg("credit reserved")

	outputs, err := s.run(ctx, log, req, p)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Images:           make([]OutputImage, len(outputs)),
		CreditsRemaining: reservation.RemainingBalance,
		UsedFreeTier:     reservation.UsedFreeTier,
	}
	succeeded := 0
	for i, out := range outputs {
		res.Usage = res.Usage.Add(out.usage)
		if out.err != nil {
			res.Images[i] = OutputImage{Label: out.label + " (failed)", Error: out.err.Error()}
			continue
		}
		succeeded++
		res.Images[i] = OutputImage{Label: out.label, Data: out.data, MIMEType: "image/png", Succeeded: true}
	}
	res.Success = succeeded > 0
	if !res.Success {
		log.Warn().Msg("no output succeeded")
		return res, nil
	}

	// Persist even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	s.record(persistCtx, log, req.Account.ID, p, reservation, outputs, res.Usage)
	if req.Options.SaveProject && s.projects != nil {
		res.ProjectID = s.saveProject(persistCtx, log, req.Account.ID, p, outputs)
	}
	return res, nil
}

func (s *GenerationService) reserve(ctx context.Context, accountID string, p *plan) (ledger.Reservation, error) {
	if p.cost > 0 {
		return s.ledger.Deduct(ctx, accountID, p.cost)
	}
	return s.ledger.CheckAndReserve(ctx, accountID)
}

func (s *GenerationService) run(ctx context.Context, log zerolog.Logger, req Request, p *plan) ([]stepOutput, error) {
	fin := s.finisher(ctx, req, p)
	outputs := make([]stepOutput, 0, len(p.steps))
	fitted := make([]image.Image, 0, len(p.steps))

	for i, st := range p.steps {
		if err := ctx.Err(); err != nil {
			if !anySucceeded(outputs) {
				return nil, err
			}
			log.Warn().Err(err).Int("produced", len(outputs)).Int("planned", len(p.steps)).Msg("request cancelled, keeping finished outputs")
			break
		}
		start := time.Now()
		out := stepOutput{label: st.label}

		raw, usage, err := s.produce(ctx, p, st, fitted)
		out.usage = usage
		if err == nil {
			if p.fit != fitNone && st.derive == nil {
				rb := raw.Bounds()
				log.Debug().Str("label", st.label).
					Float64("ratio_mismatch", imaging.RatioMismatch(rb.Dx(), rb.Dy(), p.ratio.Width, p.ratio.Height)).
					Msg("fitting output")
			}
			out.fitted, out.final, out.failures = fin.finish(raw, st.derive == nil)
			out.data, err = imaging.EncodePNG(out.final)
		}
		if err != nil {
			if st.required {
				log.Error().Err(err).Int("index", i).Str("label", st.label).Msg("generation failed, aborting")
				return nil, &GeneratorError{Label: st.label, Err: err}
			}
			log.Warn().Err(err).Int("index", i).Str("label", st.label).Msg("output failed, continuing")
			out = stepOutput{label: st.label, err: err, usage: usage}
		}
		for _, f := range out.failures {
			log.Warn().Err(f.Err).Str("stage", f.Stage).Str("label", st.label).Msg("finishing stage skipped")
		}
		log.Debug().Int("index", i).Str("label", st.label).Dur("elapsed", time.Since(start)).Msg("output done")

		outputs = append(outputs, out)
		fitted = append(fitted, out.fitted)
	}
	return outputs, nil
}

func anySucceeded(outputs []stepOutput) bool {
	for _, out := range outputs {
		if out.err == nil {
			return true
		}
	}
	return false
}

// produce returns the raw decoded image for one step.
func (s *GenerationService) produce(ctx context.Context, p *plan, st step, fitted []image.Image) (image.Image, gemini.Usage, error) {
	switch {
	case st.derive != nil:
		img, err := st.derive(fitted)
		return img, gemini.Usage{}, err

	case st.upscale:
		in := st.images[0]
		opts := fal.UpscaleOptions{Width: upscaleLongSide, Height: upscaleLongSide}
		cfg, _, err := imaging.DecodeConfig(in.Data)
		if err != nil {
			return nil, gemini.Usage{}, err
		}
		opts.Width, opts.Height = scaleLongSide(cfg.Width, cfg.Height, upscaleLongSide)
		up, err := s.upscaler.Upscale(ctx, in.Data, in.MIMEType, opts)
		if err != nil {
			return nil, gemini.Usage{}, err
		}
		img, _, err := imaging.Decode(up.Data)
		if err != nil {
			return nil, gemini.Usage{}, fmt.Errorf("decode upscaled image: %w", err)
		}
		return img, gemini.Usage{}, nil

	default:
		gen, err := s.gen.GenerateImage(ctx, st.prompt, st.images, p.ratio.GeminiAspect)
		if err != nil {
			return nil, gemini.Usage{}, err
		}
		img, _, err := imaging.Decode(gen.Data)
		if err != nil {
			return nil, gen.Usage, fmt.Errorf("decode generated image: %w", err)
		}
		return img, gen.Usage, nil
	}
}

func scaleLongSide(w, h, long int) (int, int) {
	if w <= 0 || h <= 0 {
		return long, long
	}
	if w >= h {
		return long, max(1, h*long/w)
	}
	return max(1, w*long/h), long
}

func (s *GenerationService) record(ctx context.Context, log zerolog.Logger, accountID string, p *plan, res ledger.Reservation, outputs []stepOutput, usage gemini.Usage) {
	if s.usage == nil {
		return
	}
	meta := make(map[string]any, len(p.metadata)+4)
	for k, v := range p.metadata {
		meta[k] = v
	}
	var labels []string
	var failed []map[string]string
	var skipped []map[string]string
	for _, out := range outputs {
		labels = append(labels, out.label)
		if out.err != nil {
			failed = append(failed, map[string]string{"label": out.label, "reason": out.err.Error()})
		}
		for _, f := range out.failures {
			skipped = append(skipped, map[string]string{"label": out.label, "stage": f.Stage, "reason": f.Err.Error()})
		}
	}
	meta["labels"] = labels
	meta["used_free_tier"] = res.UsedFreeTier
	meta["cost"] = p.cost
	if len(failed) > 0 {
		meta["failed"] = failed
	}
	if len(skipped) > 0 {
		meta["skipped_stages"] = skipped
	}

	status := models.UsageSuccess
	if len(failed) > 0 {
		status = models.UsagePartial
	}
	entry := UsageEntry{
		AccountID: accountID,
		Kind:      p.kind,
		Model:     p.model,
		Usage:     usage,
		Status:    status,
		Metadata:  meta,
	}
	if err := s.usage.Record(ctx, entry); err != nil {
		s.alert(ctx, telegram.Alert{
			Kind:      "usage_record_failed",
			AccountID: accountID,
			Message:   "generation succeeded but its usage record was not written",
			Err:       err,
			Fields:    map[string]string{"kind": string(p.kind)},
		})
		return
	}
	log.Debug().Str("status", string(status)).Int("total_tokens", usage.TotalTokens).Msg("usage recorded")
}

func (s *GenerationService) saveProject(ctx context.Context, log zerolog.Logger, accountID string, p *plan, outputs []stepOutput) string {
	in := ProjectInput{AccountID: accountID, Kind: p.kind, Title: p.title}
	for _, out := range outputs {
		if out.err == nil {
			in.Images = append(in.Images, ProjectImageInput{Label: out.label, Image: out.final})
		}
	}
	project, err := s.projects.Save(ctx, in)
	if err != nil {
		s.alert(ctx, telegram.Alert{
			Kind:      "project_save_failed",
			AccountID: accountID,
			Message:   "generated images were not saved to the project library",
			Err:       err,
			Fields:    map[string]string{"kind": string(p.kind), "title": p.title},
		})
		return ""
	}
	log.Info().Str("project_id", project.ID).Int("images", len(project.Images)).Msg("project saved")
	return project.ID
}

func (s *GenerationService) alert(ctx context.Context, a telegram.Alert) {
	if s.alerts == nil {
		s.log.Error().Err(a.Err).Str("alert", a.Kind).Str("account_id", a.AccountID).Msg(a.Message)
		return
	}
	s.alerts.Alert(context.WithoutCancel(ctx), a)
}

type ListingResult struct {
	Listing          map[string]any
	CreditsRemaining int
}

// GenerateListing writes marketplace copy for a jewelry photo.
func (s *GenerationService) GenerateListing(ctx context.Context, acct *models.Account, img gemini.InputImage, jewelryType string) (*ListingResult, error) {
	if acct == nil {
		return nil, ledger.ErrAccountNotFound
	}
	if !acct.IsActive {
		return nil, ledger.ErrAccountInactive
	}
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("%w: an input image is required", ErrInvalidRequest)
	}
	log := s.log.With().Str("account_id", acct.ID).Str("kind", string(models.KindJewelryListing)).Logger()

	res, err := s.ledger.Deduct(ctx, acct.ID, s.pricing.Listing)
	if err != nil {
		return nil, err
	}

	text, err := s.gen.GenerateText(ctx, prompts.Listing(jewelryType), []gemini.InputImage{img})
	if err != nil {
		log.Error().Err(err).Msg("listing generation failed")
		return nil, &GeneratorError{Label: "listing", Err: err}
	}
	listing := parseListing(text.Text)

	p := &plan{
		kind:     models.KindJewelryListing,
		cost:     s.pricing.Listing,
		model:    s.gen.TextModel(),
		metadata: map[string]any{"jewelry_type": orDefault(jewelryType, "necklace")},
	}
	s.record(context.WithoutCancel(ctx), log, acct.ID, p, res, []stepOutput{{label: "Listing"}}, text.Usage)
	return &ListingResult{Listing: listing, CreditsRemaining: res.RemainingBalance}, nil
}

func parseListing(text string) map[string]any {
	cleaned := bytes.TrimSpace([]byte(text))
	cleaned = bytes.TrimPrefix(cleaned, []byte("```json"))
	cleaned = bytes.TrimPrefix(cleaned, []byte("```"))
	cleaned = bytes.TrimSuffix(bytes.TrimSpace(cleaned), []byte("```"))
	cleaned = bytes.TrimSpace(cleaned)

	var out map[string]any
	if err := json.Unmarshal(cleaned, &out); err != nil || out == nil {
		return map[string]any{"raw_text": string(cleaned)}
	}
	return out
}
