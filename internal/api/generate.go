package api

import (
	"encoding/base64"
	"net/http"

	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/service"
)

type baseRequest struct {
	Image            string   `json:"image" validate:"required"`
	AdditionalImages []string `json:"additional_images" validate:"max=3,dive,required"`
	AspectRatio      string   `json:"aspect_ratio" validate:"omitempty,max=32"`
	Background       string   `json:"background" validate:"max=64"`
	Instructions     string   `json:"instructions" validate:"max=1000"`
	AddLogo          bool     `json:"add_logo"`
	SaveProject      bool     `json:"save_project"`
	ProjectTitle     string   `json:"project_title" validate:"max=120"`
}

type jewelryRequest struct {
	baseRequest
	JewelryType string `json:"jewelry_type" validate:"omitempty,oneof=ring necklace earring bracelet bangle pendant brooch anklet chain set"`
	Step        string `json:"step" validate:"omitempty,oneof=hero full_pack"`
}

type recolorRequest struct {
	baseRequest
	JewelryType string `json:"jewelry_type" validate:"omitempty,oneof=ring necklace earring bracelet bangle pendant brooch anklet chain set"`
	Metal       string `json:"target_metal" validate:"required,oneof=gold silver rose_gold"`
}

type tryOnRequest struct {
	baseRequest
	PersonImage string `json:"person_image" validate:"required"`
	JewelryType string `json:"jewelry_type" validate:"omitempty,oneof=ring necklace earring bracelet bangle pendant brooch anklet chain set"`
}

type catalogueRequest struct {
	baseRequest
	ModelType   string   `json:"model_type" validate:"omitempty,oneof=indian_woman indian_man indian_boy indian_girl"`
	Poses       []string `json:"poses" validate:"max=4,dive,required,max=32"`
	StudioViews []string `json:"studio_views" validate:"max=3,dive,oneof=front flat_lay detail"`
	Highlights  string   `json:"highlights" validate:"max=500"`
}

type listingRequest struct {
	Image       string `json:"image" validate:"required"`
	JewelryType string `json:"jewelry_type" validate:"omitempty,oneof=ring necklace earring bracelet bangle pendant brooch anklet chain set"`
}

type imageJSON struct {
	Base64    string `json:"base64"`
	MIMEType  string `json:"mime_type,omitempty"`
	Label     string `json:"label"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

type generationResponse struct {
	Success          bool        `json:"success"`
	Images           []imageJSON `json:"images"`
	CreditsRemaining int         `json:"credits_remaining"`
	UsedFreeTier     bool        `json:"used_free_tier"`
	ProjectID        string      `json:"project_id,omitempty"`
}

func (b baseRequest) inputs(extra ...string) ([]gemini.InputImage, error) {
	raw := append([]string{b.Image}, extra...)
	raw = append(raw, b.AdditionalImages...)
	out := make([]gemini.InputImage, 0, len(raw))
	for _, r := range raw {
		img, err := gemini.DecodeInlineImage(r)
		if err != nil {
			return nil, badRequest("invalid image: " + err.Error())
		}
		out = append(out, img)
	}
	return out, nil
}

func (b baseRequest) options() service.Options {
	return service.Options{
		RatioID:      b.AspectRatio,
		Background:   b.Background,
		Instructions: b.Instructions,
		AddLogo:      b.AddLogo,
		SaveProject:  b.SaveProject,
		ProjectTitle: b.ProjectTitle,
	}
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, kind models.GenerationKind, images []gemini.InputImage, opts service.Options) {
	res, err := s.deps.Generations.Generate(r.Context(), service.Request{
		Kind:    kind,
		Account: accountFrom(r.Context()),
		Images:  images,
		Options: opts,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := generationResponse{
		Success:          res.Success,
		Images:           make([]imageJSON, len(res.Images)),
		CreditsRemaining: res.CreditsRemaining,
		UsedFreeTier:     res.UsedFreeTier,
		ProjectID:        res.ProjectID,
	}
	for i, img := range res.Images {
		body.Images[i] = imageJSON{Label: img.Label, Succeeded: img.Succeeded, Error: img.Error}
		if img.Succeeded {
			body.Images[i].Base64 = encodeBase64(img.Data)
			body.Images[i].MIMEType = img.MIMEType
		}
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, body)
}

func (s *Server) handleStudio(w http.ResponseWriter, r *http.Request) {
	var req baseRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.generate(w, r, models.KindStudio, images[:1], req.options())
}

func (s *Server) handleJewelry(w http.ResponseWriter, r *http.Request) {
	var req jewelryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := models.KindJewelryHero
	if req.Step == "full_pack" {
		kind = models.KindJewelryPack
	}
	opts := req.options()
	opts.JewelryType = req.JewelryType
	s.generate(w, r, kind, images, opts)
}

func (s *Server) handleJewelryAngle(w http.ResponseWriter, r *http.Request) {
	var req jewelryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := req.options()
	opts.JewelryType = req.JewelryType
	s.generate(w, r, models.KindJewelryAngle, images[:1], opts)
}

func (s *Server) handleJewelryRecolor(w http.ResponseWriter, r *http.Request) {
	var req recolorRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := req.options()
	opts.JewelryType = req.JewelryType
	opts.Metal = req.Metal
	s.generate(w, r, models.KindJewelryRecolor, images[:1], opts)
}

func (s *Server) handleJewelryHD(w http.ResponseWriter, r *http.Request) {
	var req baseRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.generate(w, r, models.KindJewelryHD, images[:1], req.options())
}

func (s *Server) handleTryOn(w http.ResponseWriter, r *http.Request) {
	var req tryOnRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs(req.PersonImage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := req.options()
	opts.JewelryType = req.JewelryType
	s.generate(w, r, models.KindTryOn, images[:2], opts)
}

func (s *Server) handleCatalogue(w http.ResponseWriter, r *http.Request) {
	var req catalogueRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := req.inputs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := req.options()
	opts.ModelType = req.ModelType
	opts.Poses = req.Poses
	opts.StudioViews = req.StudioViews
	opts.Highlights = req.Highlights
	s.generate(w, r, models.KindCatalogue, images, opts)
}

func (s *Server) handleJewelryListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	img, err := gemini.DecodeInlineImage(req.Image)
	if err != nil {
		s.writeError(w, r, badRequest("invalid image: "+err.Error()))
		return
	}
	res, err := s.deps.Generations.GenerateListing(r.Context(), accountFrom(r.Context()), img, req.JewelryType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"listing":           res.Listing,
		"credits_remaining": res.CreditsRemaining,
	})
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
