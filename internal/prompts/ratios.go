package prompts

// Ratio is an output frame. Width and Height are the exact pixel size of the
// finished image; GeminiAspect is the closest aspect the generator accepts.
type Ratio struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Platform     string `json:"platform"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Circular     bool   `json:"circular,omitempty"`
	GeminiAspect string `json:"-"`
	Hint         string `json:"-"`
}

const DefaultRatioID = "square"

var ratios = []Ratio{
	{
		ID: "square", Label: "Square", Platform: "Instagram Post",
		Width: 1080, Height: 1080, GeminiAspect: "1:1",
		Hint: "Compose for a SQUARE (1:1) frame. Center the product with equal space on all sides. The composition must work perfectly as a square image.",
	},
	{
		ID: "circle", Label: "Circle", Platform: "Profile / DP",
		Width: 1080, Height: 1080, Circular: true, GeminiAspect: "1:1",
		Hint: "Compose for a CIRCULAR crop. The product MUST be perfectly centered in a square frame with generous padding on all sides. Keep the product well within the center 70% of the frame so nothing gets clipped when a circular mask is applied. Use a clean, uncluttered background.",
	},
	{
		ID: "portrait-4-5", Label: "Portrait 4:5", Platform: "Instagram Feed",
		Width: 1080, Height: 1350, GeminiAspect: "4:5",
		Hint: "Compose for a VERTICAL PORTRAIT (4:5) frame. Leave slightly more space above and below the product than on the sides. The product should be centered in a tall frame.",
	},
	{
		ID: "story-9-16", Label: "Story 9:16", Platform: "WhatsApp Status / Reels",
		Width: 1080, Height: 1920, GeminiAspect: "9:16",
		Hint: "Compose for a TALL VERTICAL (9:16) frame like a phone screen. Place the product in the center-lower area with generous background space above. The scene should fill a tall narrow frame.",
	},
	{
		ID: "landscape-16-9", Label: "Landscape 16:9", Platform: "YouTube / Facebook",
		Width: 1280, Height: 720, GeminiAspect: "16:9",
		Hint: "Compose for a WIDE LANDSCAPE (16:9) frame. Place the product slightly off-center with the scene extending horizontally. Leave ample space on both sides for a cinematic wide composition.",
	},
	{
		ID: "fb-post", Label: "FB Post", Platform: "Facebook Post",
		Width: 1200, Height: 628, GeminiAspect: "16:9",
		Hint: "Compose for a WIDE LANDSCAPE (1.91:1) frame. The product should be centered in a wide horizontal composition with the background extending to both sides.",
	},
	{
		ID: "pinterest", Label: "Pinterest", Platform: "Pinterest Pin",
		Width: 1000, Height: 1500, GeminiAspect: "2:3",
		Hint: "Compose for a TALL (2:3) frame. The product should be in the center with generous vertical space above and below. The scene should feel elongated vertically.",
	},
}

// Ratios returns the catalogue in display order.
func Ratios() []Ratio {
	out := make([]Ratio, len(ratios))
	copy(out, ratios)
	return out
}

// GetRatio looks up id, falling back to square for empty or unknown ids.
func GetRatio(id string) Ratio {
	for _, r := range ratios {
		if r.ID == id {
			return r
		}
	}
	return ratios[0]
}
