package service

import (
	"fmt"
	"image"

	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/imaging"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/prompts"
)

const (
	maxCataloguePoses       = 4
	maxCatalogueStudioViews = 3
	maxAdditionalImages     = 3
	closeupZoom             = 0.5
	upscaleLongSide         = 2048
)

type fitMode int

const (
	fitNone fitMode = iota
	fitCrop
	fitContain
)

// plan is everything a generation needs to know before credit is reserved.
type plan struct {
	kind  models.GenerationKind
	ratio prompts.Ratio
	fit   fitMode
	// cost is a flat deduction for the whole request. Zero means one
	// free-tier-or-token reservation.
	cost     int
	steps    []step
	branding bool
	model    string
	title    string
	metadata map[string]any
}

type step struct {
	label  string
	prompt string
	images []gemini.InputImage
	// derive builds the output from earlier fitted outputs instead of calling
	// the generator.
	derive   func(fitted []image.Image) (image.Image, error)
	upscale  bool
	required bool
}

func (s *GenerationService) plan(req Request) (*plan, error) {
	opts := req.Options
	ratio := prompts.GetRatio(opts.RatioID)
	base := req.Images[:1]

	p := &plan{
		kind:     req.Kind,
		ratio:    ratio,
		branding: true,
		model:    s.gen.ImageModel(),
		metadata: map[string]any{"ratio": ratio.ID},
	}

	switch req.Kind {
	case models.KindStudio:
		p.fit = fitCrop
		p.title = "Studio Shot"
		p.metadata["background"] = orDefault(opts.Background, "studio")
		p.steps = []step{{
			label:    "Studio Shot",
			prompt:   prompts.Studio(opts.Background, opts.Instructions, ratio),
			images:   base,
			required: true,
		}}

	case models.KindJewelryHero:
		p.fit = fitContain
		p.title = "Hero Shot"
		p.metadata["jewelry_type"] = orDefault(opts.JewelryType, "necklace")
		p.metadata["background"] = orDefault(opts.Background, "black_velvet")
		p.steps = []step{{
			label:    "Hero Shot",
			prompt:   prompts.Jewelry(opts.JewelryType, opts.Background, prompts.ShotHero, ratio),
			images:   base,
			required: true,
		}}

	case models.KindJewelryPack:
		p.fit = fitContain
		p.cost = s.pricing.PhotoPack
		p.title = "Jewelry Photo Pack"
		p.metadata["jewelry_type"] = orDefault(opts.JewelryType, "necklace")
		p.metadata["background"] = orDefault(opts.Background, "black_velvet")
		angleInput := base
		if len(req.Images) > 1 {
			angleInput = req.Images[1:2]
		}
		p.steps = []step{
			{
				label:    "Hero Shot",
				prompt:   prompts.Jewelry(opts.JewelryType, opts.Background, prompts.ShotHero, ratio),
				images:   base,
				required: true,
			},
			{
				label:  "Alternate Angle",
				prompt: prompts.Jewelry(opts.JewelryType, opts.Background, prompts.ShotAngle, ratio),
				images: angleInput,
			},
			{
				label: "Close-up Detail",
				derive: func(fitted []image.Image) (image.Image, error) {
					if len(fitted) == 0 || fitted[0] == nil {
						return nil, fmt.Errorf("hero shot is not available")
					}
					return imaging.CenterCropZoom(fitted[0], closeupZoom)
				},
			},
		}

	case models.KindJewelryAngle:
		p.fit = fitContain
		p.title = "Alternate Angle"
		p.metadata["jewelry_type"] = orDefault(opts.JewelryType, "necklace")
		p.steps = []step{{
			label:    "Alternate Angle",
			prompt:   prompts.Jewelry(opts.JewelryType, opts.Background, prompts.ShotAngle, ratio),
			images:   base,
			required: true,
		}}

	case models.KindJewelryRecolor:
		metal := orDefault(opts.Metal, "gold")
		p.fit = fitContain
		p.cost = s.pricing.RecolorSingle
		p.title = "Recolor " + prompts.Label(metal)
		p.metadata["target_metal"] = metal
		p.steps = []step{{
			label:    fmt.Sprintf("Recolored (%s)", metal),
			prompt:   prompts.Recolor(opts.JewelryType, metal),
			images:   base,
			required: true,
		}}

	case models.KindJewelryHD:
		p.fit = fitNone
		p.cost = s.pricing.HDUpscale
		p.branding = false
		p.model = upscalerModel
		p.title = "HD Upscale"
		p.steps = []step{{label: "HD Upscale", images: base, upscale: true, required: true}}

	case models.KindCatalogue:
		poses := opts.Poses
		if len(poses) == 0 {
			poses = prompts.DefaultPoses
		}
		if len(poses) > maxCataloguePoses {
			poses = poses[:maxCataloguePoses]
		}
		views := opts.StudioViews
		if len(views) > maxCatalogueStudioViews {
			views = views[:maxCatalogueStudioViews]
		}
		for _, pose := range poses {
			if !prompts.IsPose(pose) {
				return nil, fmt.Errorf("%w: unknown pose %q", ErrInvalidRequest, pose)
			}
		}
		for _, view := range views {
			if !prompts.IsStudioView(view) {
				return nil, fmt.Errorf("%w: unknown studio view %q", ErrInvalidRequest, view)
			}
		}
		inputs := req.Images
		if len(inputs) > 1+maxAdditionalImages {
			inputs = inputs[:1+maxAdditionalImages]
		}

		p.fit = fitCrop
		p.cost = (len(poses) + len(views)) * s.pricing.CatalogueCostPerImage
		p.title = "Catalogue – " + prompts.Label(orDefault(opts.ModelType, "indian_woman"))
		p.metadata["model_type"] = orDefault(opts.ModelType, "indian_woman")
		p.metadata["poses"] = poses
		p.metadata["studio_views"] = views

		shot := prompts.CatalogueShot{
			ModelType:    opts.ModelType,
			Background:   opts.Background,
			Instructions: opts.Instructions,
			Highlights:   opts.Highlights,
			Outfit:       s.pickOutfit(),
			Branding:     opts.AddLogo && req.Account.CompanyName != "",
		}
		for _, pose := range poses {
			shot.Pose = pose
			p.steps = append(p.steps, step{label: prompts.Label(pose), prompt: prompts.Catalogue(shot, ratio), images: inputs})
		}
		for _, view := range views {
			p.steps = append(p.steps, step{label: prompts.Label(view), prompt: prompts.StudioView(view, opts.Instructions, ratio), images: inputs})
		}

	case models.KindTryOn:
		if len(req.Images) < 2 {
			return nil, fmt.Errorf("%w: try-on needs a jewelry image and a person photo", ErrInvalidRequest)
		}
		p.fit = fitCrop
		p.title = "Try-On"
		p.metadata["jewelry_type"] = orDefault(opts.JewelryType, "necklace")
		p.steps = []step{{
			label:    "Try-On",
			prompt:   prompts.TryOn(opts.JewelryType, ratio),
			images:   req.Images[:2],
			required: true,
		}}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, req.Kind)
	}

	if opts.ProjectTitle != "" {
		p.title = opts.ProjectTitle
	}
	return p, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
