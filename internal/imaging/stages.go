package imaging

import (
	"fmt"
	"image"
)

// Stage is one finishing step of the pipeline.
type Stage struct {
	Name  string
	Apply func(image.Image) (image.Image, error)
}

// StageFailure records a stage that was skipped.
type StageFailure struct {
	Stage string
	Err   error
}

// Finish runs stages in order. A stage that errors or panics is skipped and
// the image from the previous stage carries on.
func Finish(img image.Image, stages ...Stage) (image.Image, []StageFailure) {
	var failures []StageFailure
	for _, st := range stages {
		if st.Apply == nil {
			continue
		}
		out, err := runStage(st, img)
		if err != nil {
			failures = append(failures, StageFailure{Stage: st.Name, Err: err})
			continue
		}
		img = out
	}
	return img, failures
}

func runStage(st Stage, img image.Image) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &TransformError{Op: st.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = st.Apply(img)
	if err == nil && out == nil {
		err = &TransformError{Op: st.Name, Err: fmt.Errorf("stage returned no image")}
	}
	return out, err
}

func FitStage(w, h int) Stage {
	return Stage{Name: "fit", Apply: func(img image.Image) (image.Image, error) { return FitRatio(img, w, h) }}
}

func ContainStage(w, h int) Stage {
	return Stage{Name: "contain", Apply: func(img image.Image) (image.Image, error) { return ContainRatio(img, w, h, nil) }}
}

func BrandingStage(br Branding) Stage {
	return Stage{Name: "branding", Apply: func(img image.Image) (image.Image, error) { return BrandingBar(img, br) }}
}

func LogoStage(logo image.Image, anchor Anchor, maxSizePct float64) Stage {
	return Stage{Name: "logo", Apply: func(img image.Image) (image.Image, error) { return OverlayLogo(img, logo, anchor, maxSizePct) }}
}

func WatermarkStage(text string) Stage {
	return Stage{Name: "watermark", Apply: func(img image.Image) (image.Image, error) { return Watermark(img, text) }}
}
