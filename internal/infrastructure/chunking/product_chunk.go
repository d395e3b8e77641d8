package chunking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

const (
	standardCaption = "Product information or packaging displayed may not be current or complete. *Actual weight may vary based on seasonality and other factors."
	standardProp65  = "Warning: This product can expose you to chemicals including arsenic, which is known to the State of California to cause cancer. For more information, go to www.P65Warnings.ca.gov"

	minChunkWords = 20
	maxAltTexts   = 3
)

// placeholderDimensions are scraped defaults that carry no information.
var placeholderDimensions = map[string]struct{}{
	`l 1" x w 1" x h 1"`: {},
}

var typeDescriptors = map[string]struct{}{
	"shredded": {}, "sliced": {}, "mild": {}, "sharp": {}, "fancy": {}, "loaf": {},
	"cheddar": {}, "mozzarella": {}, "swiss": {}, "provolone": {}, "parmesan": {},
	"jack": {}, "pepperjack": {},
}

// ProductChunkBuilder renders a ProductRecord as a descriptive paragraph for
// embedding. Unknown attributes are left out instead of being described.
type ProductChunkBuilder struct{}

func NewProductChunkBuilder() *ProductChunkBuilder {
	return &ProductChunkBuilder{}
}

func (b *ProductChunkBuilder) Build(p domain.ProductRecord) string {
	name, _ := p.DisplayName()
	brand := firstText(p.SupplierBrand, p.Brand)
	categories := p.CategoryPath()

	parts := make([]string, 0, 12)
	switch {
	case name != "" && brand != "":
		parts = append(parts, fmt.Sprintf("This featured product is '%s', a quality offering from the distinguished brand %s.", name, brand))
	case name != "":
		parts = append(parts, fmt.Sprintf("Introducing the product: '%s'.", name))
	case brand != "":
		parts = append(parts, fmt.Sprintf("This item is from the brand %s.", brand))
	}

	if len(categories) > 0 {
		parts = append(parts, fmt.Sprintf("It is classified under %s.", strings.Join(categories, ", then ")))
		if strings.Contains(strings.ToLower(categories[0]), "cheese") {
			if desc := describeType(name, categories); desc != "" {
				parts = append(parts, fmt.Sprintf("Specifically, this is a %s cheese product.", desc))
			} else {
				parts = append(parts, "This is a cheese product.")
			}
		}
	}

	physical := make([]string, 0, 3)
	if p.PackageInfo != nil {
		physical = append(physical, "it comes conveniently packaged as "+*p.PackageInfo)
	}
	if p.Weight != nil {
		physical = append(physical, "with a net weight of "+formatNumber(*p.Weight)+" lbs")
	}
	if p.Dimensions != nil {
		if _, placeholder := placeholderDimensions[strings.ToLower(strings.TrimSpace(*p.Dimensions))]; !placeholder {
			physical = append(physical, "and has approximate dimensions of "+*p.Dimensions)
		}
	}
	if len(physical) > 0 {
		parts = append(parts, fmt.Sprintf("Regarding its physical attributes, %s.", strings.Join(physical, ", ")))
	}

	if alts := altTexts(p, name); len(alts) > 0 {
		parts = append(parts, "Visual descriptions and alternative views suggest: "+strings.Join(alts, "; ")+".")
	}

	purchase := make([]string, 0, 3)
	if p.Price != nil {
		purchase = append(purchase, "the current retail price is $"+strconv.FormatFloat(*p.Price, 'f', 2, 64))
	}
	if p.UnitPrice != nil {
		purchase = append(purchase, "which translates to a unit price of $"+strconv.FormatFloat(*p.UnitPrice, 'f', 2, 64)+"/lb")
	}
	if p.Status != nil {
		purchase = append(purchase, fmt.Sprintf("and its current availability status is clearly marked as '%s'", *p.Status))
	}
	if len(purchase) > 0 {
		parts = append(parts, fmt.Sprintf("For prospective buyers, %s.", strings.Join(purchase, ", ")))
	}

	if caption := strings.TrimSpace(deref(p.TableCaption)); caption != "" {
		if caption == standardCaption {
			parts = append(parts, "Please note that product information and packaging may be subject to change, and actual weights can vary.")
		} else {
			parts = append(parts, fmt.Sprintf("An important note regarding the product or packaging: %q", caption))
		}
	}
	if warning := strings.TrimSpace(deref(p.Prop65Warning)); warning != "" {
		if warning == standardProp65 {
			parts = append(parts, "This product is subject to California Proposition 65 chemical exposure warnings.")
		} else {
			parts = append(parts, "Safety Information: "+warning)
		}
	}

	if keywords := searchKeywords(name, brand, categories); len(keywords) > 0 {
		parts = append(parts, fmt.Sprintf("Key characteristics and search terms for this item include: %s.", strings.Join(keywords, ", ")))
	}

	related, similar := len(p.RelatedProducts), len(p.OtherLikeProducts)
	if p.RelatedCount != nil {
		related = *p.RelatedCount
	}
	if p.OtherLikeCount != nil {
		similar = *p.OtherLikeCount
	}
	switch {
	case related > 0 && similar > 0:
		parts = append(parts, fmt.Sprintf("This product is frequently viewed alongside %d other related items and %d similar product alternatives.", related, similar))
	case related > 0:
		parts = append(parts, fmt.Sprintf("There are %d related items that customers often consider with this product.", related))
	case similar > 0:
		parts = append(parts, fmt.Sprintf("Explore %d other similar product options available in our catalog.", similar))
	}

	chunk := strings.TrimSpace(strings.Join(parts, " "))
	if len(strings.Fields(chunk)) < minChunkWords {
		return fallbackChunk(p, name, brand)
	}
	return chunk
}

func describeType(name string, categories []string) string {
	lowered := make([]string, len(categories))
	for i, c := range categories {
		lowered[i] = strings.ToLower(c)
	}

	out := make([]string, 0, 4)
	for _, term := range strings.Split(strings.ReplaceAll(name, "(4)", ""), ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || term == "cheese" || len(term) <= 2 || isNumeric(term) {
			continue
		}
		_, known := typeDescriptors[term]
		if known || containsAny(lowered, term) {
			out = append(out, term)
		}
	}
	return strings.Join(out, " ")
}

func altTexts(p domain.ProductRecord, name string) []string {
	sku := firstText(p.SKU, p.ProductCode)
	candidates := make([]string, 0, len(p.Thumbnails)+1)
	if p.MainImageAlt != nil {
		candidates = append(candidates, *p.MainImageAlt)
	}
	for _, t := range p.Thumbnails {
		candidates = append(candidates, t.Alt)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, maxAltTexts)
	for _, alt := range candidates {
		alt = strings.TrimSpace(alt)
		if sku != "" {
			alt = strings.TrimSpace(strings.TrimSuffix(alt, "- "+sku))
		}
		if alt == "" || strings.EqualFold(alt, name) {
			continue
		}
		if _, dup := seen[alt]; dup {
			continue
		}
		seen[alt] = struct{}{}
		out = append(out, alt)
		if len(out) == maxAltTexts {
			break
		}
	}
	return out
}

func searchKeywords(name, brand string, categories []string) []string {
	set := make(map[string]struct{})
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if len(term) > 2 && !isNumeric(term) {
			set[term] = struct{}{}
		}
	}

	cleaned := strings.ReplaceAll(strings.ReplaceAll(name, "(4)", ""), "-", " ")
	for _, term := range strings.Split(cleaned, ",") {
		add(term)
	}
	for _, c := range categories {
		for _, term := range strings.Split(c, ",") {
			add(term)
		}
	}
	if brand != "" {
		set[strings.ToLower(brand)] = struct{}{}
	}
	if len(set) > 1 {
		delete(set, "cheese")
	}

	out := make([]string, 0, len(set))
	for term := range set {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

func fallbackChunk(p domain.ProductRecord, name, brand string) string {
	fields := []string{name, brand, deref(p.Categories)}
	if p.Weight != nil {
		fields = append(fields, formatNumber(*p.Weight)+" lbs")
	}
	fields = append(fields, deref(p.PackageInfo), deref(p.Status))

	kept := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return "General cheese product. Further details unavailable."
	}
	return strings.Join(kept, ". ") + "."
}

func firstText(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func containsAny(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
