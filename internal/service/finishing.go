package service

import (
	"context"
	"image"

	"github.com/sorapixel/studio/internal/imaging"
	"github.com/sorapixel/studio/internal/models"
)

const logoMaxSize = 0.15

type finisher struct {
	fit       []imaging.Stage
	brand     func() []imaging.Stage
	watermark imaging.Stage
}

// finisher fixes the stage order for one request: ratio fit, then branding or
// logo, then the watermark last.
func (s *GenerationService) finisher(ctx context.Context, req Request, p *plan) *finisher {
	f := &finisher{watermark: imaging.WatermarkStage(s.watermark)}

	switch p.fit {
	case fitCrop:
		f.fit = []imaging.Stage{imaging.FitStage(p.ratio.Width, p.ratio.Height)}
	case fitContain:
		f.fit = []imaging.Stage{imaging.ContainStage(p.ratio.Width, p.ratio.Height)}
	}

	acct := req.Account
	if !p.branding || acct == nil {
		f.brand = func() []imaging.Stage { return nil }
		return f
	}

	var (
		logo    image.Image
		fetched bool
	)
	loadLogo := func() image.Image {
		if !fetched && s.logos != nil && acct.LogoURL != "" {
			logo = s.logos.Fetch(ctx, acct.LogoURL)
		}
		fetched = true
		return logo
	}

	switch brandingMode(acct, req.Options.AddLogo) {
	case brandBar:
		f.brand = func() []imaging.Stage {
			return []imaging.Stage{imaging.BrandingStage(imaging.Branding{
				BusinessName: acct.CompanyName,
				Phone:        acct.Phone,
				Website:      acct.Website,
				Logo:         loadLogo(),
			})}
		}
	case brandLogo:
		f.brand = func() []imaging.Stage {
			l := loadLogo()
			if l == nil {
				return nil
			}
			return []imaging.Stage{imaging.LogoStage(l, imaging.BottomRight, logoMaxSize)}
		}
	default:
		f.brand = func() []imaging.Stage { return nil }
	}
	return f
}

// finish returns the fitted image (before branding) and the final image.
func (f *finisher) finish(raw image.Image, fit bool) (image.Image, image.Image, []imaging.StageFailure) {
	var failures []imaging.StageFailure
	fitted := raw
	if fit {
		var ff []imaging.StageFailure
		fitted, ff = imaging.Finish(raw, f.fit...)
		failures = append(failures, ff...)
	}
	branded, bf := imaging.Finish(fitted, f.brand()...)
	failures = append(failures, bf...)
	final, wf := imaging.Finish(branded, f.watermark)
	failures = append(failures, wf...)
	return fitted, final, failures
}

type brandMode int

const (
	brandNone brandMode = iota
	brandBar
	brandLogo
)

func brandingMode(acct *models.Account, addLogo bool) brandMode {
	switch {
	case acct.CompanyName != "" && (addLogo || acct.ApplyBranding):
		return brandBar
	case acct.LogoURL != "" && addLogo:
		return brandLogo
	default:
		return brandNone
	}
}
