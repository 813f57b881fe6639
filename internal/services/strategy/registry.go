package strategy

import (
	"strings"

	"github.com/ternarybob/obsoleta/internal/models"
)

// ValidationMode selects how a validating probe decides success
type ValidationMode string

const (
	// ValidationNone commits to the strategy without probing
	ValidationNone ValidationMode = "none"
	// ValidationNoResults probes and fails resolution when a "no results"
	// marker appears; on success the probe content is attached to the job
	ValidationNoResults ValidationMode = "no_results"
	// ValidationExtraction probes and extracts a product-detail link; no
	// matching link means resolution failure
	ValidationExtraction ValidationMode = "extraction"
	// ValidationNotFound probes and fails resolution on "not found" markers
	ValidationNotFound ValidationMode = "not_found"
)

// Descriptor is one manufacturer's entry in the hand-maintained strategy
// table. Adding a manufacturer is a data change here, not a control-flow
// change in the resolver.
type Descriptor struct {
	// URLTemplate builds the candidate URL; {model} is replaced with the
	// URL-escaped model identifier
	URLTemplate string
	Method      models.ScrapingMethod
	Validation  ValidationMode
	// NoResultsMarkers / NotFoundMarkers are locale-specific text fragments
	// whose presence in the probe response fails resolution
	NoResultsMarkers []string
	NotFoundMarkers  []string
	// DetailLinkSelector is the goquery selector for extraction mode; the
	// first match's href becomes the strategy URL
	DetailLinkSelector string
	// ModelHint seeds the site_search executor with the model identifier
	ModelHint bool
	// JPURLTemplate / USURLTemplate provide alternate-locale URLs for
	// renderer methods that fall back across regional catalogues
	JPURLTemplate string
	USURLTemplate string
}

// registry is the closed manufacturer table. Keys are normalized with
// normalizeMaker; unknown manufacturers fall back to generic search.
var registry = map[string]Descriptor{
	"omron": {
		URLTemplate:      "https://www.fa.omron.co.jp/products/family/search/?keyword={model}",
		Method:           models.ScrapingMethodRenderer,
		Validation:       ValidationNoResults,
		NoResultsMarkers: []string{"該当する商品がありません", "No products matched"},
	},
	"mitsubishi electric": {
		URLTemplate:     "https://www.mitsubishielectric.co.jp/fa/products/search.html?q={model}",
		Method:          models.ScrapingMethodRenderer,
		Validation:      ValidationNotFound,
		NotFoundMarkers: []string{"お探しのページが見つかりません", "Page Not Found", "404"},
		JPURLTemplate:   "https://www.mitsubishielectric.co.jp/fa/products/search.html?q={model}",
		USURLTemplate:   "https://us.mitsubishielectric.com/fa/en/search?q={model}",
	},
	"keyence": {
		URLTemplate: "https://www.keyence.co.jp/products/",
		Method:      models.ScrapingMethodSiteSearch,
		Validation:  ValidationNone,
		ModelHint:   true,
	},
	"panasonic": {
		URLTemplate:        "https://www3.panasonic.biz/ac/j/search/?keyword={model}",
		Method:             models.ScrapingMethodRenderer,
		Validation:         ValidationExtraction,
		DetailLinkSelector: "a[href*='/ac/j/fasys/']",
	},
	"fuji electric": {
		URLTemplate:   "https://felib.fujielectric.co.jp/download/search.htm?keyword={model}",
		Method:        models.ScrapingMethodRendererCloudflare,
		Validation:    ValidationNone,
		JPURLTemplate: "https://felib.fujielectric.co.jp/download/search.htm?keyword={model}",
		USURLTemplate: "https://americas.fujielectric.com/search?q={model}",
	},
	"idec": {
		URLTemplate:      "https://product.idec.com/?search={model}",
		Method:           models.ScrapingMethodHTTPDirect,
		Validation:       ValidationNoResults,
		NoResultsMarkers: []string{"検索結果は見つかりませんでした", "No results found"},
	},
}

// normalizeMaker canonicalizes a manufacturer name for registry lookup
func normalizeMaker(maker string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(maker))), " ")
}

// Lookup returns the registry descriptor for a manufacturer, if present
func Lookup(maker string) (Descriptor, bool) {
	d, ok := registry[normalizeMaker(maker)]
	return d, ok
}
