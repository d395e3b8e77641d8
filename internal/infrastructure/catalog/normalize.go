package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

var leadingNumber = regexp.MustCompile(`^-?\d+(?:\.\d+)?`)

// normalize converts one scraped listing into a product record. position is
// the listing's index in the file and only feeds the fallback id.
func normalize(l listing, position int) domain.ProductRecord {
	p := domain.ProductRecord{
		SKU:           text(l.SKU),
		UPC:           text(l.UPC),
		ProductCode:   text(l.ProductCode),
		ItemNumber:    text(l.ItemNumber),
		Name:          text(l.Name),
		NameDetail:    text(l.NameDetail),
		Brand:         text(l.Brand),
		SupplierBrand: text(l.SupplierBrand),
		Categories:    text(l.Categories),
		Price:         ParsePrice(l.Price.String()),
		UnitPrice:     ParsePrice(l.UnitPrice.String()),
		Weight:        ParseWeight(l.Weight.String()),
		PackageInfo:   text(l.PackageInfo),
		Dimensions:    text(l.Dimensions),
		Status:        text(l.Status),
		ImageURL:      text(l.ImageURL),
		DetailURL:     text(l.DetailURL),
		MainImageURL:  text(l.MainImageURL),
		MainImageAlt:  text(l.MainImageAlt),
		Prop65Warning: text(l.Prop65),
		TableCaption:  text(l.TableCaption),
	}

	switch {
	case p.SKU != nil:
		p.ID = *p.SKU
	case p.ProductCode != nil:
		p.ID = *p.ProductCode
	default:
		p.ID = fmt.Sprintf("item_%d", position)
	}

	for _, t := range l.Thumbnails {
		if url := strings.TrimSpace(t.URL); url != "" {
			p.Thumbnails = append(p.Thumbnails, domain.ImageRef{URL: url, Alt: strings.TrimSpace(t.Alt)})
		}
	}

	if l.Related != nil {
		p.RelatedCount = domain.Int(len(l.Related))
		p.RelatedProducts = capReferences(l.Related)
	}
	if l.OtherLike != nil {
		p.OtherLikeCount = domain.Int(len(l.OtherLike))
		p.OtherLikeProducts = capReferences(l.OtherLike)
	}
	return p
}

// ParsePrice reads "$12.34" and "$3.21/lb" style values. Unparseable or
// "N/A" values are unknown.
func ParsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if isUnknown(raw) {
		return nil
	}
	if slash := strings.Index(raw, "/"); slash >= 0 {
		raw = raw[:slash]
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "$"))
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseWeight reads the leading number of values like "5 lbs".
func ParseWeight(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if isUnknown(raw) {
		return nil
	}
	m := leadingNumber.FindString(raw)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

func text(v flexString) *string {
	s := v.String()
	if isUnknown(s) {
		return nil
	}
	return domain.Text(s)
}

func isUnknown(s string) bool {
	return s == "" || strings.EqualFold(s, "N/A")
}

func capReferences(refs []string) []string {
	out := make([]string, 0, min(len(refs), domain.MaxProductReferences))
	for _, r := range refs {
		if len(out) == domain.MaxProductReferences {
			break
		}
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
