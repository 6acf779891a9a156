// Package prompts builds the generator instructions for every generation kind.
// Everything here is pure string assembly.
package prompts

import (
	"fmt"
	"strings"
)

const productIsolation = "CRITICAL RULES:\n" +
	"1. The product must be the EXACT same product from the input image: same shape, design, color, details\n" +
	"2. Do NOT redesign, modify, or reimagine the product\n" +
	"3. The product must be pixel-perfect preserved\n" +
	"4. Only change the BACKGROUND and LIGHTING, never the product itself"

var studioBackgrounds = map[string]string{
	"studio":      "Professional product photo in a clean photography studio, soft even lighting, commercial quality, centered composition",
	"clean_white": "Professional product photo on pure white background, studio lighting, commercial quality, centered composition",
	"lifestyle":   "Lifestyle product photography, natural setting, warm ambient lighting, editorial style",
	"luxury":      "Luxury product photography, dark moody background, dramatic lighting, premium feel, high-end commercial",
	"nature":      "Product on natural surface, botanical elements, soft daylight, organic aesthetic",
	"minimal":     "Minimalist product shot, clean gradient background, single light source, modern aesthetic",
	"festive":     "Festive product photography, warm golden tones, bokeh lights, celebration mood",
}

// StudioBackgrounds lists the accepted studio background ids.
func StudioBackgrounds() []string {
	return []string{"studio", "clean_white", "lifestyle", "luxury", "nature", "minimal", "festive"}
}

func Studio(background, instructions string, r Ratio) string {
	base, ok := studioBackgrounds[background]
	if !ok {
		base = studioBackgrounds["studio"]
	}
	parts := []string{base}
	if s := strings.TrimSpace(instructions); s != "" {
		parts = append(parts, "SPECIAL INSTRUCTIONS: "+s)
	}
	parts = append(parts, productIsolation, r.Hint)
	return join(parts...)
}

type Shot string

const (
	ShotHero    Shot = "hero"
	ShotAngle   Shot = "angle"
	ShotCloseup Shot = "closeup"
)

var shotInstructions = map[Shot]string{
	ShotHero:    "HERO SHOT: Front-facing, perfectly centered, showing the full piece in its best light",
	ShotAngle:   "ALTERNATE ANGLE: Slight angle showing depth, dimension, and how light plays on the metal",
	ShotCloseup: "CLOSE-UP: Macro detail shot showing stone settings, metalwork, and craftsmanship",
}

var jewelryBackgrounds = map[string]string{
	"black_velvet":    "Rich black velvet background with subtle texture, dramatic studio lighting",
	"white_marble":    "Polished white marble surface, clean bright lighting, luxury feel",
	"pure_white":      "Pure white seamless background, soft even lighting, e-commerce ready",
	"burgundy_velvet": "Deep burgundy velvet background, warm golden lighting, royal aesthetic",
	"gold_gradient":   "Warm gold gradient background, soft metallic sheen, premium presentation",
}

var JewelryTypes = []string{"ring", "necklace", "earring", "bracelet", "bangle", "pendant", "brooch", "anklet", "chain", "set"}

func Jewelry(jewelryType, background string, shot Shot, r Ratio) string {
	bg, ok := jewelryBackgrounds[background]
	if !ok {
		bg = jewelryBackgrounds["black_velvet"]
	}
	instr, ok := shotInstructions[shot]
	if !ok {
		instr = shotInstructions[ShotHero]
	}
	return join(
		fmt.Sprintf("Professional jewelry product photography of a %s.\nBackground: %s\n%s", orDefault(jewelryType, "necklace"), bg, instr),
		productIsolation,
		"Additional jewelry rules:\n"+
			"- Preserve exact stone colors, metal finish, and design details\n"+
			"- Lighting should enhance sparkle and reflections naturally\n"+
			"- No props or hands unless specified\n"+
			"- The piece should look like a real photograph, not a render",
		r.Hint,
	)
}

var metals = map[string]string{
	"gold":      "warm yellow gold with rich metallic luster",
	"silver":    "bright polished silver with cool white metallic sheen",
	"rose_gold": "soft warm rose gold with pink-copper metallic tones",
}

func Recolor(jewelryType, metal string) string {
	desc, ok := metals[metal]
	if !ok {
		desc = metals["gold"]
	}
	return fmt.Sprintf("Change the metal color of this %s to %s.\n\n", orDefault(jewelryType, "necklace"), desc) +
		"CRITICAL RULES:\n" +
		"1. ONLY change the metal color and preserve ALL stone colors exactly\n" +
		"2. Keep the exact same design, shape, and details\n" +
		"3. Maintain realistic metallic reflections for the new color\n" +
		"4. Background and lighting must stay identical\n" +
		"5. This should look like the same piece in a different metal, nothing else changed"
}

var tryOn = map[string]string{
	"necklace": "Place this exact necklace on the person. The necklace must be pixel-perfect: same stones, same metalwork, same design. " +
		"It should drape naturally following the neckline. Match lighting and shadows to the person photo.",
	"earring":  "Place these exact earrings on the person. Pixel-perfect preservation of the jewelry. Proper perspective, natural hang from earlobes, matching lighting.",
	"bracelet": "Place this exact bracelet on the person's wrist. Perfect preservation, natural fit.",
	"ring":     "Place this exact ring on the person's finger. Perfect fit, realistic shadows.",
}

// TryOn expects the jewelry image first and the person photo second.
func TryOn(jewelryType string, r Ratio) string {
	body, ok := tryOn[jewelryType]
	if !ok {
		body = tryOn["necklace"]
	}
	return join(
		"ULTRA-FIDELITY VIRTUAL TRY-ON:\nThe first image is the jewelry, the second image is the person.\n"+body,
		"Output should be indistinguishable from a real photograph.",
		r.Hint,
	)
}

var (
	modelDescriptions = map[string]string{
		"indian_woman": "a stylish Indian woman in her late 20s",
		"indian_man":   "a well-groomed Indian man in his early 30s",
		"indian_boy":   "an Indian teenage boy, around 14-16 years old",
		"indian_girl":  "an Indian teenage girl, around 14-16 years old",
	}
	poseDescriptions = map[string]string{
		"best_match": "in a natural, confident pose that best showcases the product",
		"standing":   "standing upright in a full-body shot, confident stance",
		"side_view":  "in a side profile pose, showing how the product looks from the side",
		"back_view":  "showing the back view, looking over shoulder slightly",
		"walking":    "in a natural walking pose, mid-stride, dynamic movement",
		"sitting":    "seated comfortably, relaxed posture with the product clearly visible",
	}
	catalogueBackgrounds = map[string]string{
		"best_match": "a professional studio or lifestyle setting that complements the product",
		"studio":     "a clean professional photography studio with soft even lighting",
		"flora":      "a lush green garden or floral setting with natural light",
		"wooden":     "a warm wooden interior with natural textures",
		"indoor":     "a well-decorated modern indoor setting",
		"livingroom": "a stylish modern living room",
	}
	studioViews = map[string]string{
		"front":    "Front-facing product-only shot on a seamless studio backdrop, no model",
		"flat_lay": "Top-down flat lay of the product on a styled surface, no model",
		"detail":   "Close-up detail shot of the product's texture, stitching and finish, no model",
	}
)

var Outfits = []string{
	"a simple elegant navy blue dress with minimal accessories",
	"a classic black fitted dress, clean and professional",
	"a sophisticated maroon/wine-colored outfit, elegant draping",
	"a crisp white blouse with dark formal trousers",
	"a deep emerald green ethnic kurta with subtle gold accents",
}

var DefaultPoses = []string{"standing", "side_view", "back_view", "sitting"}

func IsPose(p string) bool {
	_, ok := poseDescriptions[p]
	return ok
}

func IsStudioView(v string) bool {
	_, ok := studioViews[v]
	return ok
}

type CatalogueShot struct {
	ModelType    string
	Pose         string
	Background   string
	Instructions string
	Highlights   string
	Outfit       string
	// Branding asks for a cleaner frame that leaves room for the branding bar.
	Branding bool
}

func Catalogue(s CatalogueShot, r Ratio) string {
	model, ok := modelDescriptions[s.ModelType]
	if !ok {
		model = modelDescriptions["indian_woman"]
	}
	pose, ok := poseDescriptions[s.Pose]
	if !ok {
		pose = poseDescriptions["best_match"]
	}
	bg, ok := catalogueBackgrounds[s.Background]
	if !ok {
		bg = catalogueBackgrounds["best_match"]
	}

	head := fmt.Sprintf("Professional catalogue photography: %s wearing/holding/using the product from the input image.\nPose: %s\nBackground: %s", model, pose, bg)
	if s.Outfit != "" {
		head += "\nStyling: if the product is not clothing, dress the model in " + s.Outfit
	}
	parts := []string{
		head,
		productIsolation,
		"Additional catalogue rules:\n" +
			"- The model should look natural and authentic\n" +
			"- Product must be clearly visible and well-lit\n" +
			"- Commercial quality, suitable for e-commerce catalogue\n" +
			"- Realistic proportions between model and product",
	}
	if s.Branding {
		parts = append(parts, "Keep the bottom 15% of the frame free of important detail; a brand strip will be placed there.")
	}
	if h := strings.TrimSpace(s.Highlights); h != "" {
		parts = append(parts, "KEY HIGHLIGHTS TO SHOWCASE: "+h)
	}
	if i := strings.TrimSpace(s.Instructions); i != "" {
		parts = append(parts, "SPECIAL INSTRUCTIONS: "+i)
	}
	parts = append(parts, r.Hint)
	return join(parts...)
}

func StudioView(view, instructions string, r Ratio) string {
	desc, ok := studioViews[view]
	if !ok {
		desc = studioViews["front"]
	}
	parts := []string{"Professional e-commerce catalogue image. " + desc + "."}
	if i := strings.TrimSpace(instructions); i != "" {
		parts = append(parts, "SPECIAL INSTRUCTIONS: "+i)
	}
	parts = append(parts, productIsolation, r.Hint)
	return join(parts...)
}

func Listing(jewelryType string) string {
	return fmt.Sprintf("You are a professional jewelry copywriter for an Indian fashion jewelry brand.\n"+
		"Analyze this %s image and generate a complete Shopify product listing.\n\n", orDefault(jewelryType, "necklace")) +
		"Return a JSON object with these fields:\n" +
		"{\n" +
		`  "title": "50-65 chars",` + "\n" +
		`  "description": "HTML with <p> and <ul><li>, 100-160 words, 2 paragraphs + bullet specs",` + "\n" +
		`  "meta_description": "140-155 chars, SEO-optimized",` + "\n" +
		`  "alt_text": "under 125 chars, descriptive",` + "\n" +
		`  "attributes": { "material": "", "stone": "", "color": "", "collection": "", "occasion": "", "style": "", "product_type": "" }` + "\n" +
		"}\n\n" +
		"MATERIAL LANGUAGE RULES:\n" +
		"- Never write 'gold earrings', write 'gold-tone earrings'\n" +
		"- Never write 'silver ring', write 'silver-tone ring'\n" +
		"- Use 'CZ' not 'diamond', 'faux pearls' not 'pearls' for fake stones\n" +
		"- Base metals: brass, alloy with plating description\n\n" +
		"BRAND VOICE: Confident, modern, accessible. Not flowery or salesy.\n" +
		"JSON only, no markdown fences."
}

// Label turns an id like "side_view" into "Side View".
func Label(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
