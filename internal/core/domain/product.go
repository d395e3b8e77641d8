package domain

import "strings"

// MaxProductReferences bounds the related/similar product url lists kept per record.
const MaxProductReferences = 20

type ImageRef struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// ProductRecord is one catalog item as stored in the index payload.
//
// Every attribute except ID is optional. A nil pointer (or nil slice) means
// the value is unknown; callers must not substitute defaults for it.
type ProductRecord struct {
	ID string `json:"id"`

	SKU         *string `json:"sku,omitempty"`
	UPC         *string `json:"upc,omitempty"`
	ProductCode *string `json:"product_code_from_url,omitempty"`
	ItemNumber  *string `json:"item_number_from_name,omitempty"`

	Name          *string `json:"product_name,omitempty"`
	NameDetail    *string `json:"product_name_detail,omitempty"`
	Brand         *string `json:"brand,omitempty"`
	SupplierBrand *string `json:"brand_supplier_detail,omitempty"`
	Categories    *string `json:"categories,omitempty"`

	Price     *float64 `json:"price,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`

	PackageInfo *string `json:"quantity_package_info,omitempty"`
	Dimensions  *string `json:"dimensions,omitempty"`
	Status      *string `json:"status,omitempty"`

	ImageURL     *string    `json:"image_url,omitempty"`
	DetailURL    *string    `json:"product_detail_url,omitempty"`
	MainImageURL *string    `json:"detail_page_main_image_url,omitempty"`
	MainImageAlt *string    `json:"detail_page_main_image_alt,omitempty"`
	Thumbnails   []ImageRef `json:"detail_page_thumbnail_images,omitempty"`

	RelatedProducts   []string `json:"related_products,omitempty"`
	OtherLikeProducts []string `json:"other_like_products,omitempty"`
	RelatedCount      *int     `json:"related_products_count,omitempty"`
	OtherLikeCount    *int     `json:"other_like_products_count,omitempty"`

	Prop65Warning *string `json:"proposition_65_warning,omitempty"`
	TableCaption  *string `json:"table_caption,omitempty"`

	ChunkText *string `json:"chunk_text,omitempty"`
}

// CategoryPath splits the slash-delimited category string, keeping order.
func (p ProductRecord) CategoryPath() []string {
	if p.Categories == nil {
		return nil
	}
	parts := strings.Split(*p.Categories, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DisplayName prefers the detail page name over the listing name.
func (p ProductRecord) DisplayName() (string, bool) {
	if p.NameDetail != nil {
		return *p.NameDetail, true
	}
	if p.Name != nil {
		return *p.Name, true
	}
	return "", false
}

// Field looks a stored attribute up by its payload name. Numeric attributes
// are returned as float64. The second result is false when the attribute is
// unknown or not a filterable scalar.
func (p ProductRecord) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, p.ID != ""
	case "price":
		return floatField(p.Price)
	case "unit_price":
		return floatField(p.UnitPrice)
	case "weight":
		return floatField(p.Weight)
	case "related_products_count":
		return intField(p.RelatedCount)
	case "other_like_products_count":
		return intField(p.OtherLikeCount)
	}

	if s := p.stringField(name); s != nil {
		return *s, true
	}
	return nil, false
}

// TextField returns a string attribute by payload name.
func (p ProductRecord) TextField(name string) (string, bool) {
	s := p.stringField(name)
	if s == nil {
		return "", false
	}
	return *s, true
}

func (p ProductRecord) stringField(name string) *string {
	switch name {
	case "sku":
		return p.SKU
	case "upc":
		return p.UPC
	case "product_code_from_url":
		return p.ProductCode
	case "item_number_from_name":
		return p.ItemNumber
	case "product_name":
		return p.Name
	case "product_name_detail":
		return p.NameDetail
	case "brand":
		return p.Brand
	case "brand_supplier_detail":
		return p.SupplierBrand
	case "categories":
		return p.Categories
	case "quantity_package_info":
		return p.PackageInfo
	case "dimensions":
		return p.Dimensions
	case "status":
		return p.Status
	case "image_url":
		return p.ImageURL
	case "product_detail_url":
		return p.DetailURL
	case "detail_page_main_image_url":
		return p.MainImageURL
	case "detail_page_main_image_alt":
		return p.MainImageAlt
	case "proposition_65_warning":
		return p.Prop65Warning
	case "table_caption":
		return p.TableCaption
	case "chunk_text":
		return p.ChunkText
	default:
		return nil
	}
}

func floatField(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

func intField(v *int) (any, bool) {
	if v == nil {
		return nil, false
	}
	return float64(*v), true
}

// Text returns nil for blank strings so that empty scraped values stay unknown.
func Text(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func Deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
