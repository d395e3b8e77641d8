package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// listing mirrors one scraped product as produced by the scraper. All values
// are kept as raw text until normalization.
type listing struct {
	SKU           flexString  `json:"sku"`
	UPC           flexString  `json:"upc"`
	ProductCode   flexString  `json:"product_code_from_url"`
	ItemNumber    flexString  `json:"item_number_from_name"`
	Name          flexString  `json:"product_name"`
	NameDetail    flexString  `json:"product_name_detail"`
	Brand         flexString  `json:"brand"`
	SupplierBrand flexString  `json:"brand_supplier_detail"`
	Categories    flexString  `json:"categories"`
	Price         flexString  `json:"price"`
	UnitPrice     flexString  `json:"unit_price"`
	Weight        flexString  `json:"weight"`
	PackageInfo   flexString  `json:"quantity_package_info"`
	Dimensions    flexString  `json:"dimensions"`
	Status        flexString  `json:"status"`
	ImageURL      flexString  `json:"image_url"`
	DetailURL     flexString  `json:"product_detail_url"`
	MainImageURL  flexString  `json:"detail_page_main_image_url"`
	MainImageAlt  flexString  `json:"detail_page_main_image_alt"`
	Thumbnails    []thumbnail `json:"detail_page_thumbnail_images"`
	Related       []string    `json:"related_products"`
	OtherLike     []string    `json:"other_like_products"`
	Prop65        flexString  `json:"proposition_65_warning"`
	TableCaption  flexString  `json:"table_caption"`
}

type thumbnail struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// flexString accepts JSON strings, numbers and null. Scraped sku/upc values
// show up as either.
type flexString string

func (s *flexString) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*s = ""
		return nil
	}
	if raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func (s flexString) String() string {
	return strings.TrimSpace(string(s))
}

// setField assigns a spreadsheet cell to the listing field with the same
// JSON name. List columns hold JSON arrays or newline separated values.
func (l *listing) setField(column, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch column {
	case "sku":
		l.SKU = flexString(trimIntegralFloat(value))
	case "upc":
		l.UPC = flexString(trimIntegralFloat(value))
	case "product_code_from_url":
		l.ProductCode = flexString(value)
	case "item_number_from_name":
		l.ItemNumber = flexString(value)
	case "product_name":
		l.Name = flexString(value)
	case "product_name_detail":
		l.NameDetail = flexString(value)
	case "brand":
		l.Brand = flexString(value)
	case "brand_supplier_detail":
		l.SupplierBrand = flexString(value)
	case "categories":
		l.Categories = flexString(value)
	case "price":
		l.Price = flexString(value)
	case "unit_price":
		l.UnitPrice = flexString(value)
	case "weight":
		l.Weight = flexString(value)
	case "quantity_package_info":
		l.PackageInfo = flexString(value)
	case "dimensions":
		l.Dimensions = flexString(value)
	case "status":
		l.Status = flexString(value)
	case "image_url":
		l.ImageURL = flexString(value)
	case "product_detail_url":
		l.DetailURL = flexString(value)
	case "detail_page_main_image_url":
		l.MainImageURL = flexString(value)
	case "detail_page_main_image_alt":
		l.MainImageAlt = flexString(value)
	case "detail_page_thumbnail_images":
		_ = json.Unmarshal([]byte(value), &l.Thumbnails)
	case "related_products":
		l.Related = splitList(value)
	case "other_like_products":
		l.OtherLike = splitList(value)
	case "proposition_65_warning":
		l.Prop65 = flexString(value)
	case "table_caption":
		l.TableCaption = flexString(value)
	}
}

func splitList(value string) []string {
	var out []string
	if strings.HasPrefix(value, "[") && json.Unmarshal([]byte(value), &out) == nil {
		return out
	}
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == '\n' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// trimIntegralFloat turns spreadsheet renderings like "103728.0" back into "103728".
func trimIntegralFloat(value string) string {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != float64(int64(f)) || !strings.Contains(value, ".") {
		return value
	}
	return strconv.FormatInt(int64(f), 10)
}
