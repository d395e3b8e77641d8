package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

// ImageSectionDelimiter separates prose from the image list in composed answers.
const ImageSectionDelimiter = "******"

// URLs may carry one level of balanced parentheses, as in "img(1).jpg".
var (
	inlineImagePattern = regexp.MustCompile(`!\[[^\]]*\]\((?:[^()\s]|\([^()\s]*\))*\)`)
	imageURLPattern    = regexp.MustCompile(`\((https?://(?:[^()\s]|\([^()\s]*\))+)\)`)
	blankLinesPattern  = regexp.MustCompile(`\n{3,}`)
)

// ParseComposedAnswer splits a composed answer into display prose and image
// cards.
//
// Grammar: the text is split on the first ImageSectionDelimiter. Everything
// before it is prose with inline image markdown removed. Each line after it
// that holds a parenthesized http(s) URL names one image; the URL must equal
// the image_url or detail_page_main_image_url of one of the results, other
// lines and unknown URLs are ignored. Repeated URLs yield one card.
func ParseComposedAnswer(text string, results []domain.ProductResult) domain.ComposedAnswer {
	prose, imageSection, _ := strings.Cut(text, ImageSectionDelimiter)

	answer := domain.ComposedAnswer{
		Prose:  cleanProse(prose),
		Images: []domain.ImageCard{},
	}
	if strings.TrimSpace(imageSection) == "" {
		return answer
	}

	seen := make(map[string]struct{})
	for _, line := range strings.Split(imageSection, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := imageURLPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		url := strings.TrimSpace(m[1])
		if _, dup := seen[url]; dup {
			continue
		}
		product, ok := findImageOwner(url, results)
		if !ok {
			continue
		}
		seen[url] = struct{}{}
		answer.Images = append(answer.Images, imageCard(url, product))
	}
	return answer
}

func cleanProse(prose string) string {
	prose = inlineImagePattern.ReplaceAllString(prose, "")
	prose = blankLinesPattern.ReplaceAllString(prose, "\n\n")
	return strings.TrimSpace(prose)
}

func findImageOwner(url string, results []domain.ProductResult) (domain.ProductRecord, bool) {
	for _, r := range results {
		if r.ImageURL != nil && *r.ImageURL == url {
			return r.ProductRecord, true
		}
		if r.MainImageURL != nil && *r.MainImageURL == url {
			return r.ProductRecord, true
		}
	}
	return domain.ProductRecord{}, false
}

func imageCard(url string, p domain.ProductRecord) domain.ImageCard {
	caption := "Product"
	if p.Name != nil {
		caption = *p.Name
	} else if name, ok := p.DisplayName(); ok {
		caption = name
	}
	detail := "#"
	if p.DetailURL != nil {
		detail = *p.DetailURL
	}
	return domain.ImageCard{URL: url, Caption: caption, DetailURL: detail}
}
